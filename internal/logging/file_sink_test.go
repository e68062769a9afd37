package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func readLogLines(t *testing.T, path string) []jsonLogLine {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	defer f.Close()

	var lines []jsonLogLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line jsonLogLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid json line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %q: %v", path, err)
	}
	return lines
}

func TestDefaultLogDirPathSuffix(t *testing.T) {
	path, err := DefaultLogDirPath()
	if err != nil {
		t.Fatalf("DefaultLogDirPath() error = %v", err)
	}
	if got, want := path, filepath.Join("omniture-reporter", "logs"); !strings.HasSuffix(got, want) {
		t.Fatalf("DefaultLogDirPath() = %q, want suffix %q", got, want)
	}
}

func TestFileSink_TagsLinesWithRunAndReport(t *testing.T) {
	tmp := t.TempDir()
	sink, err := newFileSink(FileOptions{Dir: tmp, Command: "report"})
	if err != nil {
		t.Fatalf("newFileSink() error = %v", err)
	}

	events := []Event{
		{Time: time.Unix(1700000000, 0), Level: slog.LevelInfo, Message: "Report with ID (4242) queued.  Now fetching report...",
			Fields: map[string]any{"report_id": "4242"}},
		{Time: time.Unix(1700000001, 0), Level: slog.LevelWarn, Message: "report_not_ready: Report not ready",
			Fields: map[string]any{"report_id": "4242", "status": 400, "next_poll": 250 * time.Millisecond}},
		{Time: time.Unix(1700000002, 0), Level: slog.LevelDebug, Message: "report job status transition",
			Fields: map[string]any{"job": "visits.yaml", "to": "Ready"}},
		{Time: time.Unix(1700000003, 0), Level: slog.LevelError, Message: "request failed",
			Fields: map[string]any{"method": "Report.Get", "error": errors.New("dial tcp: refused")}},
	}
	for _, event := range events {
		if err := sink.WriteEvent(event); err != nil {
			t.Fatalf("WriteEvent() error = %v", err)
		}
	}
	path := sink.Path()
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !regexp.MustCompile(`^report-\d{8}-\d{6}-\d+-001\.jsonl$`).MatchString(filepath.Base(path)) {
		t.Fatalf("log file name = %q", filepath.Base(path))
	}
	lines := readLogLines(t, path)
	if len(lines) != len(events) {
		t.Fatalf("lines = %d, want %d", len(lines), len(events))
	}
	for _, line := range lines {
		if line.Run != sink.runID {
			t.Fatalf("run = %q, want %q", line.Run, sink.runID)
		}
	}
	if lines[0].ReportID != "4242" || lines[0].Fields != nil {
		t.Fatalf("queued line = %#v", lines[0])
	}
	if lines[1].ReportID != "4242" || lines[1].Fields["next_poll"] != "250ms" || lines[1].Fields["status"] != float64(400) {
		t.Fatalf("poll line = %#v", lines[1])
	}
	if _, ok := lines[1].Fields["report_id"]; ok {
		t.Fatalf("report_id should be lifted out of fields")
	}
	if lines[2].Job != "visits.yaml" || lines[2].Level != "DEBUG" {
		t.Fatalf("job line = %#v", lines[2])
	}
	if lines[3].Method != "Report.Get" || lines[3].Fields["error"] != "dial tcp: refused" {
		t.Fatalf("error line = %#v", lines[3])
	}
}

func TestFileSink_RotatesAtConfiguredSize(t *testing.T) {
	tmp := t.TempDir()
	sink, err := newFileSink(FileOptions{Dir: tmp, MaxBytes: 300, Command: "Mock Server!"})
	if err != nil {
		t.Fatalf("newFileSink() error = %v", err)
	}
	event := Event{
		Time:    time.Unix(1700000000, 123456789),
		Level:   slog.LevelInfo,
		Message: "mock api call",
		Fields:  map[string]any{"method": "Report.Get", "report_id": "4242"},
	}
	for i := 0; i < 6; i++ {
		if err := sink.WriteEvent(event); err != nil {
			t.Fatalf("WriteEvent() error = %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotation to create multiple files, got %d", len(entries))
	}
	total := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "mock-server-"+sink.runID+"-") {
			t.Fatalf("unexpected log filename %q", entry.Name())
		}
		info, err := entry.Info()
		if err != nil {
			t.Fatalf("Info() error = %v", err)
		}
		if info.Size() > 300 {
			t.Fatalf("%s is %d bytes, over the 300 byte limit", entry.Name(), info.Size())
		}
		total += len(readLogLines(t, filepath.Join(tmp, entry.Name())))
	}
	if total != 6 {
		t.Fatalf("lines across parts = %d, want 6", total)
	}
}

func TestFileSink_RejectsNegativeLimit(t *testing.T) {
	if _, err := newFileSink(FileOptions{Dir: t.TempDir(), MaxBytes: -1}); err == nil {
		t.Fatalf("expected error for negative size limit")
	}
}

func TestLogFilePrefix(t *testing.T) {
	tests := map[string]string{
		"report":       "report",
		"mock-server":  "mock-server",
		" Mock Server": "mock-server",
		"":             "reporter",
		"!!!":          "reporter",
	}
	for in, want := range tests {
		if got := logFilePrefix(in); got != want {
			t.Fatalf("logFilePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggerFilePersistence_KeepsHiddenDebugAndStopsOnClose(t *testing.T) {
	tmp := t.TempDir()
	logger := New(false)
	logger.SetTerminalOutputEnabled(false)

	path, err := logger.EnableFilePersistence(FileOptions{Dir: tmp, Command: "request"})
	if err != nil {
		t.Fatalf("EnableFilePersistence() error = %v", err)
	}
	if filepath.Dir(path) != tmp {
		t.Fatalf("path = %q, want inside %q", path, tmp)
	}

	logger.Debug("created new nonce", Field("method", "Company.GetTokenCount"), Field("secret", "s3cret"))
	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	logger.Info("after close")

	lines := readLogLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("lines = %#v, want debug and pre-close lines only", lines)
	}
	if lines[0].Message != "created new nonce" || lines[0].Method != "Company.GetTokenCount" || lines[0].Fields["secret"] != redacted {
		t.Fatalf("debug line = %#v", lines[0])
	}
	if lines[1].Message != "before close" {
		t.Fatalf("second line = %#v", lines[1])
	}
}
