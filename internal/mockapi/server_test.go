package mockapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"omniture-reporter/internal/wsse"
)

func post(t *testing.T, srv *httptest.Server, method string, header string, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rest/?method="+method, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if header != "" {
		req.Header.Set(wsse.HeaderName, header)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var doc map[string]any
	_ = json.Unmarshal(data, &doc)
	return resp.StatusCode, doc
}

func signed() string {
	return wsse.Signer{}.Sign("bob:acme", "s3cret").HeaderValue()
}

func TestServer_QueueThenPoll(t *testing.T) {
	s := New(Options{Username: "bob:acme", Secret: "s3cret", ReadyAfter: 1, MaxSkew: time.Minute})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	status, doc := post(t, srv, "Report.Queue", signed(), `{"reportDescription":{"reportSuiteID":"acme"}}`)
	if status != http.StatusOK {
		t.Fatalf("Report.Queue status = %d", status)
	}
	id, _ := doc["reportID"].(string)
	if id == "" {
		t.Fatalf("Report.Queue returned %v", doc)
	}

	body := `{"reportID":"` + id + `"}`
	status, doc = post(t, srv, "Report.Get", signed(), body)
	if status != http.StatusBadRequest || doc["error"] != "report_not_ready" {
		t.Fatalf("first Report.Get = %d %v", status, doc)
	}
	status, doc = post(t, srv, "Report.Get", signed(), body)
	if status != http.StatusOK {
		t.Fatalf("second Report.Get = %d %v", status, doc)
	}
	report, _ := doc["report"].(map[string]any)
	if report["reportID"] != id {
		t.Fatalf("report = %v", report)
	}
	if s.Calls("Report.Get") != 2 || s.Calls("Report.Queue") != 1 {
		t.Fatalf("calls = %d/%d", s.Calls("Report.Queue"), s.Calls("Report.Get"))
	}
}

func TestServer_Errors(t *testing.T) {
	s := New(Options{Username: "bob:acme", Secret: "s3cret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	tests := []struct {
		name       string
		method     string
		header     string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "no method", method: "", header: signed(), body: `{}`, wantStatus: http.StatusBadRequest, wantError: "method_required"},
		{name: "no header", method: "Company.GetTokenCount", body: `{}`, wantStatus: http.StatusUnauthorized, wantError: "Bad Request"},
		{name: "wrong secret", method: "Company.GetTokenCount", header: wsse.Signer{}.Sign("bob:acme", "nope").HeaderValue(), body: `{}`, wantStatus: http.StatusUnauthorized, wantError: "Bad Password"},
		{name: "wrong user", method: "Company.GetTokenCount", header: wsse.Signer{}.Sign("eve:acme", "s3cret").HeaderValue(), body: `{}`, wantStatus: http.StatusUnauthorized, wantError: "Bad Password"},
		{name: "bad json", method: "Company.GetTokenCount", header: signed(), body: `{`, wantStatus: http.StatusBadRequest, wantError: "invalid_json"},
		{name: "queue without description", method: "Report.Queue", header: signed(), body: `{}`, wantStatus: http.StatusBadRequest, wantError: "missing_report_description"},
		{name: "unknown report", method: "Report.Get", header: signed(), body: `{"reportID":"nope"}`, wantStatus: http.StatusBadRequest, wantError: "report_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, doc := post(t, srv, tt.method, tt.header, tt.body)
			if status != tt.wantStatus || doc["error"] != tt.wantError {
				t.Fatalf("%s = %d %v, want %d %q", tt.method, status, doc, tt.wantStatus, tt.wantError)
			}
		})
	}
}

func TestServer_RejectsReplayedNonce(t *testing.T) {
	s := New(Options{Username: "bob:acme", Secret: "s3cret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	header := signed()
	if status, _ := post(t, srv, "Company.GetTokenCount", header, `{}`); status != http.StatusOK {
		t.Fatalf("first call status = %d", status)
	}
	status, doc := post(t, srv, "Company.GetTokenCount", header, `{}`)
	if status != http.StatusUnauthorized || doc["error"] != "nonce_reused" {
		t.Fatalf("replay = %d %v", status, doc)
	}
	if len(s.Nonces()) != 1 {
		t.Fatalf("Nonces() = %v", s.Nonces())
	}
}

func TestServer_ScriptedFailureAndEcho(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	id := s.QueueJob(map[string]any{"fail": "invalid_metric"})
	status, doc := post(t, srv, "Report.Get", "", `{"reportID":"`+id+`"}`)
	if status != http.StatusBadRequest || doc["error"] != "invalid_metric" {
		t.Fatalf("Report.Get = %d %v", status, doc)
	}

	status, doc = post(t, srv, "Company.GetReportSuites", "", `{"types":["standard"]}`)
	if status != http.StatusOK || doc["method"] != "Company.GetReportSuites" {
		t.Fatalf("echo = %d %v", status, doc)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/?method=Echo.Raw", strings.NewReader(`{}`))
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "OK" {
		t.Fatalf("Echo.Raw body = %q", data)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestServer_ForgetsExpiredNonces(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(Options{Username: "bob:acme", Secret: "s3cret", MaxSkew: time.Minute, Now: clock.Now})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	signer := wsse.Signer{Now: clock.Now}

	first := signer.Sign("bob:acme", "s3cret").HeaderValue()
	if status, _ := post(t, srv, "Company.GetTokenCount", first, `{}`); status != http.StatusOK {
		t.Fatalf("first call status = %d", status)
	}

	clock.Advance(2 * time.Minute)
	if status, _ := post(t, srv, "Company.GetTokenCount", signer.Sign("bob:acme", "s3cret").HeaderValue(), `{}`); status != http.StatusOK {
		t.Fatalf("second call status = %d", status)
	}
	if got := len(s.Nonces()); got != 1 {
		t.Fatalf("remembered nonces = %d, want 1 after expiry", got)
	}

	status, doc := post(t, srv, "Company.GetTokenCount", first, `{}`)
	if status != http.StatusUnauthorized || doc["error"] != "Bad Password" {
		t.Fatalf("replay of expired token = %d %v, want stale-token rejection", status, doc)
	}
}

func TestServer_CapsRememberedNonces(t *testing.T) {
	s := New(Options{Username: "bob:acme", Secret: "s3cret", MaxNonces: 3})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	var last string
	for i := 0; i < 5; i++ {
		last = signed()
		if status, _ := post(t, srv, "Company.GetTokenCount", last, `{}`); status != http.StatusOK {
			t.Fatalf("call %d status = %d", i, status)
		}
	}
	if got := len(s.Nonces()); got != 3 {
		t.Fatalf("remembered nonces = %d, want 3", got)
	}
	status, doc := post(t, srv, "Company.GetTokenCount", last, `{}`)
	if status != http.StatusUnauthorized || doc["error"] != "nonce_reused" {
		t.Fatalf("replay of recent nonce = %d %v", status, doc)
	}
}
