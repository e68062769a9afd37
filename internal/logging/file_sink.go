package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogFileMaxBytes = 5 << 20
	defaultLogFilePrefix   = "reporter"
)

// FileOptions configures JSON-lines persistence. Every run writes its own
// series of files named <command>-<run>-<part>.jsonl.
type FileOptions struct {
	// Dir defaults to DefaultLogDirPath.
	Dir string
	// MaxBytes is the size at which a new part is started; zero means 5 MiB.
	MaxBytes int64
	// Command prefixes the file names, e.g. "report".
	Command string
}

// Fields lifted out of an event into top-level keys of the JSON line, so
// one report or job can be followed with a plain grep.
var liftedFieldKeys = []string{"report_id", "job", "method"}

type fileSink struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	runID    string
	maxBytes int64
	part     int
	file     *os.File
	path     string
	size     int64
	closed   bool
}

type jsonLogLine struct {
	Time     string         `json:"time"`
	Level    string         `json:"level"`
	Run      string         `json:"run"`
	ReportID string         `json:"report_id,omitempty"`
	Job      string         `json:"job,omitempty"`
	Method   string         `json:"method,omitempty"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

func DefaultLogDirPath() (string, error) {
	root, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "omniture-reporter", "logs"), nil
}

func newFileSink(opts FileOptions) (*fileSink, error) {
	if opts.MaxBytes < 0 {
		return nil, errors.New("log file size limit must not be negative")
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = defaultLogFileMaxBytes
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		var err error
		if dir, err = DefaultLogDirPath(); err != nil {
			return nil, err
		}
	}
	sink := &fileSink{
		dir:      dir,
		prefix:   logFilePrefix(opts.Command),
		runID:    fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102-150405"), os.Getpid()),
		maxBytes: opts.MaxBytes,
	}
	if err := sink.rotateLocked(); err != nil {
		return nil, err
	}
	return sink, nil
}

func logFilePrefix(command string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(command)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	prefix := strings.Trim(b.String(), "-")
	if prefix == "" {
		return defaultLogFilePrefix
	}
	return prefix
}

func (s *fileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *fileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.size = 0
	return err
}

func (s *fileSink) WriteEvent(event Event) error {
	if s == nil {
		return nil
	}
	line, err := s.encode(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if s.file == nil || (s.size > 0 && s.size+int64(len(line)) > s.maxBytes) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	n, writeErr := s.file.Write(line)
	s.size += int64(n)
	return writeErr
}

func (s *fileSink) encode(event Event) ([]byte, error) {
	entry := jsonLogLine{
		Time:    event.Time.UTC().Format(time.RFC3339Nano),
		Level:   strings.ToUpper(event.Level.String()),
		Run:     s.runID,
		Message: event.Message,
	}
	fields := make(map[string]any, len(event.Fields))
	for key, value := range event.Fields {
		fields[key] = normalizeLogFieldValue(value)
	}
	for _, key := range liftedFieldKeys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		text := fmt.Sprint(value)
		switch key {
		case "report_id":
			entry.ReportID = text
		case "job":
			entry.Job = text
		case "method":
			entry.Method = text
		}
		delete(fields, key)
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}

func (s *fileSink) rotateLocked() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
		s.size = 0
	}
	s.part++
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s-%03d.jsonl", s.prefix, s.runID, s.part))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.file = f
	s.path = path
	return nil
}

// normalizeLogFieldValue flattens values that encode badly as JSON: errors
// and Stringers (durations, json.Number) become their text.
func normalizeLogFieldValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case error:
		return v.Error()
	case slog.Level:
		return v.String()
	case []byte:
		return FormatHTTPPayload(v)
	case fmt.Stringer:
		return v.String()
	default:
		return value
	}
}
