package client

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"omniture-reporter/internal/config"
	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/wsse"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

const testEndpoint = "https://api.example.test/admin/1.4/rest/"

func testConfig(endpoint string) config.ClientConfig {
	return config.ClientConfig{
		Username:     "bob:acme",
		Secret:       "s3cret",
		Endpoint:     endpoint,
		PollInterval: time.Millisecond,
		PollTimeout:  5 * time.Second,
		Logging:      true,
	}
}

type reply struct {
	status int
	body   string
}

// scriptedAPI answers each API method from its own queue of replies; the
// last reply of a queue repeats once the queue is drained.
type scriptedAPI struct {
	t       *testing.T
	mu      sync.Mutex
	replies map[string][]reply
	calls   []recordedCall
}

type recordedCall struct {
	Method string
	Body   string
	Token  wsse.Token
}

func newScriptedAPI(t *testing.T, replies map[string][]reply) *scriptedAPI {
	return &scriptedAPI{t: t, replies: replies}
}

func (s *scriptedAPI) httpClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(s.roundTrip)}
}

func (s *scriptedAPI) roundTrip(r *http.Request) (*http.Response, error) {
	method := r.URL.Query().Get("method")
	body, _ := io.ReadAll(r.Body)
	token, err := wsse.Parse(r.Header.Get(wsse.HeaderName))
	if err != nil {
		s.t.Errorf("%s: invalid %s header: %v", method, wsse.HeaderName, err)
	}

	s.mu.Lock()
	s.calls = append(s.calls, recordedCall{Method: method, Body: string(body), Token: token})
	queue := s.replies[method]
	if len(queue) == 0 {
		s.mu.Unlock()
		s.t.Errorf("unexpected call to %s", method)
		return textResponse(r, http.StatusNotFound, `{"error":"unexpected"}`), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		s.replies[method] = queue[1:]
	}
	s.mu.Unlock()
	return textResponse(r, next.status, next.body), nil
}

func (s *scriptedAPI) callsTo(method string) []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedCall
	for _, call := range s.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func textResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func recordedLogger() (*logging.Logger, *eventRecorder) {
	logger := logging.New(true)
	logger.SetOutput(io.Discard)
	rec := &eventRecorder{}
	logger.Subscribe(func(e logging.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
	})
	return logger, rec
}

func (r *eventRecorder) find(level slog.Level, substr string) (logging.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return e, true
		}
	}
	return logging.Event{}, false
}
