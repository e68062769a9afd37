// Package mockapi is an in-process fake of the analytics reporting API. It
// checks WSSE tokens, queues report jobs and answers Report.Get with
// report_not_ready a configurable number of times before returning data.
package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/wsse"
)

type Options struct {
	// Username and Secret are the accepted credentials. An empty Secret
	// disables authentication.
	Username string
	Secret   string
	// ReadyAfter is how many Report.Get calls per job are answered with
	// report_not_ready before the data is returned.
	ReadyAfter int
	// MaxSkew bounds the token Created time; zero skips the check.
	MaxSkew time.Duration
	// NonceTTL is how long a used nonce is remembered. It defaults to
	// MaxSkew, or 15 minutes when MaxSkew is zero.
	NonceTTL time.Duration
	// MaxNonces caps the remembered nonces; the oldest are forgotten first.
	// Zero means 100000.
	MaxNonces int
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *logging.Logger
}

const (
	defaultNonceTTL  = 15 * time.Minute
	defaultMaxNonces = 100000
)

type Server struct {
	opts   Options
	logger *logging.Logger
	router chi.Router

	mu     sync.Mutex
	jobs   map[string]*job
	nonces map[string]time.Time
	order  []seenNonce
	calls  map[string]int
}

type job struct {
	id          string
	description any
	polls       int
	failCode    string
	failDetail  string
}

type seenNonce struct {
	nonce string
	at    time.Time
}

type apiError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NonceTTL <= 0 {
		opts.NonceTTL = opts.MaxSkew
	}
	if opts.NonceTTL <= 0 {
		opts.NonceTTL = defaultNonceTTL
	}
	if opts.MaxNonces <= 0 {
		opts.MaxNonces = defaultMaxNonces
	}
	s := &Server{
		opts:   opts,
		logger: logger,
		jobs:   map[string]*job{},
		nonces: map[string]time.Time{},
		calls:  map[string]int{},
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/*", s.dispatch)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Calls returns how many authenticated requests reached method.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Nonces returns the accepted nonces still remembered for replay checks.
func (s *Server) Nonces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nonces))
	for nonce := range s.nonces {
		out = append(out, nonce)
	}
	return out
}

// QueueJob registers a job directly, bypassing Report.Queue.
func (s *Server) QueueJob(description any) string {
	return s.queue(description)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimSpace(r.URL.Query().Get("method"))
	if method == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "method_required", Description: "The method query parameter is required"})
		return
	}
	if status, apiErr, ok := s.authenticate(r); !ok {
		s.logger.Warn("mock api rejected credentials", logging.Field("method", method), logging.Field("error", apiErr.Error))
		writeJSON(w, status, apiErr)
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_json", Description: err.Error()})
		return
	}

	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()
	s.logger.Debug("mock api call", logging.Field("method", method), logging.Field("params", params))

	switch {
	case method == "Report.Get":
		s.reportGet(w, params)
	case strings.HasPrefix(method, "Report.Queue") || method == "Report.Run":
		s.reportQueue(w, params)
	case method == "Echo.Raw":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"method": method, "params": params})
	}
}

func (s *Server) authenticate(r *http.Request) (int, apiError, bool) {
	if s.opts.Secret == "" {
		return 0, apiError{}, true
	}
	token, err := wsse.Parse(r.Header.Get(wsse.HeaderName))
	if err != nil {
		return http.StatusUnauthorized, apiError{Error: "Bad Request", Description: err.Error()}, false
	}
	if token.Username != s.opts.Username {
		return http.StatusUnauthorized, apiError{Error: "Bad Password", Description: "Unknown username"}, false
	}
	now := s.opts.Now()
	if err := wsse.Verify(token, s.opts.Secret, now, s.opts.MaxSkew); err != nil {
		return http.StatusUnauthorized, apiError{Error: "Bad Password", Description: err.Error()}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetNoncesLocked(now)
	if _, seen := s.nonces[token.Nonce]; seen {
		return http.StatusUnauthorized, apiError{Error: "nonce_reused", Description: "Nonce has already been used"}, false
	}
	s.nonces[token.Nonce] = now
	s.order = append(s.order, seenNonce{nonce: token.Nonce, at: now})
	return 0, apiError{}, true
}

// forgetNoncesLocked drops nonces older than NonceTTL and, past MaxNonces,
// the oldest ones. order is kept in acceptance order.
func (s *Server) forgetNoncesLocked(now time.Time) {
	cutoff := now.Add(-s.opts.NonceTTL)
	drop := 0
	for drop < len(s.order) && (!s.order[drop].at.After(cutoff) || len(s.order)-drop >= s.opts.MaxNonces) {
		delete(s.nonces, s.order[drop].nonce)
		drop++
	}
	if drop > 0 {
		s.order = append(s.order[:0:0], s.order[drop:]...)
	}
}

func (s *Server) reportQueue(w http.ResponseWriter, params map[string]any) {
	description, ok := params["reportDescription"]
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing_report_description", Description: "reportDescription is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reportID": s.queue(description)})
}

func (s *Server) queue(description any) string {
	j := &job{id: uuid.NewString(), description: description}
	if fields, ok := description.(map[string]any); ok {
		if code, ok := fields["fail"].(string); ok && code != "" {
			j.failCode = code
			j.failDetail = fmt.Sprintf("Scripted failure %s", code)
		}
	}
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	return j.id
}

func (s *Server) reportGet(w http.ResponseWriter, params map[string]any) {
	id, _ := params["reportID"].(string)
	s.mu.Lock()
	var j job
	stored, ok := s.jobs[id]
	if ok {
		stored.polls++
		j = *stored
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusBadRequest, apiError{Error: "report_not_found", Description: fmt.Sprintf("Report %q does not exist", id)})
	case j.failCode != "":
		writeJSON(w, http.StatusBadRequest, apiError{Error: j.failCode, Description: j.failDetail})
	case j.polls <= s.opts.ReadyAfter:
		writeJSON(w, http.StatusBadRequest, apiError{Error: "report_not_ready", Description: "Report not ready"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"report": map[string]any{
				"reportID":    j.id,
				"description": j.description,
				"data":        []map[string]any{{"name": "Mon. 1 Jan. 2024", "counts": []string{"42"}}},
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
