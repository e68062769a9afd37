package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Logger struct {
	enabled      atomic.Bool
	debugEnabled atomic.Bool
	terminalOut  atomic.Bool
	mu           sync.RWMutex
	out          io.Writer
	pretty       bool
	fileSink     *fileSink
	nextID       int
	subscribers  map[int]func(Event)
}

type Event struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Fields  map[string]any
}

// New returns an enabled logger writing to standard output.
func New(debug bool) *Logger {
	logger := &Logger{
		out:         os.Stdout,
		pretty:      shouldPrettyPrint(),
		subscribers: map[int]func(Event){},
	}
	logger.enabled.Store(true)
	logger.debugEnabled.Store(debug)
	logger.terminalOut.Store(true)
	return logger
}

// Discard returns a logger that drops every event. Clients fall back to it
// when no logger is supplied.
func Discard() *Logger {
	logger := New(false)
	logger.enabled.Store(false)
	return logger
}

func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

func (l *Logger) Enabled() bool {
	return l != nil && l.enabled.Load()
}

func (l *Logger) SetEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.enabled.Store(enabled)
}

func (l *Logger) SetDebugEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.debugEnabled.Store(enabled)
}

func (l *Logger) SetTerminalOutputEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.terminalOut.Store(enabled)
}

// SetOutput redirects terminal output. ANSI rendering stays on only for the
// process's own stdout/stderr.
func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	if w == nil {
		w = io.Discard
	}
	l.mu.Lock()
	l.out = w
	l.pretty = (w == os.Stdout || w == os.Stderr) && shouldPrettyPrint()
	l.mu.Unlock()
}

// EnableFilePersistence mirrors every event, debug included, into JSON-lines
// files and returns the path of the first file.
func (l *Logger) EnableFilePersistence(opts FileOptions) (string, error) {
	if l == nil {
		return "", nil
	}
	sink, err := newFileSink(opts)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	old := l.fileSink
	l.fileSink = sink
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return sink.Path(), nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	sink := l.fileSink
	l.fileSink = nil
	l.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	if !l.Enabled() {
		return
	}
	if !l.debugEnabled.Load() {
		// Debug telemetry still reaches the file sink when hidden from the terminal.
		l.log(slog.LevelDebug, msg, fields, false)
		return
	}
	l.log(slog.LevelDebug, msg, fields, true)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	if !l.Enabled() {
		return
	}
	l.log(slog.LevelInfo, msg, fields, true)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	if !l.Enabled() {
		return
	}
	l.log(slog.LevelWarn, msg, fields, true)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	if !l.Enabled() {
		return
	}
	l.log(slog.LevelError, msg, fields, true)
}

func (l *Logger) Subscribe(fn func(Event)) func() {
	if l == nil {
		panic("logging.Logger.Subscribe: logger must not be nil")
	}
	if fn == nil {
		panic("logging.Logger.Subscribe: callback must not be nil")
	}
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subscribers[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subscribers, id)
		l.mu.Unlock()
	}
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr, publish bool) {
	event := Event{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  attrsToMap(attrs),
	}
	l.mu.RLock()
	sink := l.fileSink
	l.mu.RUnlock()
	if sink != nil {
		_ = sink.WriteEvent(event)
	}
	if publish && l.terminalOut.Load() {
		l.emit(event)
	}
	if publish {
		l.publishEvent(event)
	}
}

func (l *Logger) emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pretty {
		_, _ = io.WriteString(l.out, FormatEventANSI(event))
		return
	}
	_, _ = io.WriteString(l.out, FormatEventLine(event))
}

func (l *Logger) publishEvent(event Event) {
	l.mu.RLock()
	if len(l.subscribers) == 0 {
		l.mu.RUnlock()
		return
	}
	callbacks := make([]func(Event), 0, len(l.subscribers))
	for _, cb := range l.subscribers {
		callbacks = append(callbacks, cb)
	}
	l.mu.RUnlock()

	for _, cb := range callbacks {
		cb(event)
	}
}
