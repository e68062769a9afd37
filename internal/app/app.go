package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"omniture-reporter/internal/client"
	"omniture-reporter/internal/config"
	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/reportdesc"
	"omniture-reporter/internal/runctx"
	"omniture-reporter/internal/runstatus"
)

// ReporterApp runs the request and report commands against one client.
type ReporterApp struct {
	client  *client.AnalyticsClient
	logger  *logging.Logger
	streams Streams
	hooks   Callbacks
	status  jobStatusState
}

type Streams struct {
	In  io.Reader
	Out io.Writer
}

type Callbacks struct {
	// OnStatusChange is called from job goroutines and must be safe for
	// concurrent use.
	OnStatusChange func(job string, status string)
}

func New(apiClient *client.AnalyticsClient, logger *logging.Logger, streams Streams, hooks Callbacks) *ReporterApp {
	if apiClient == nil {
		panic("app.New: client must not be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if streams.In == nil {
		streams.In = os.Stdin
	}
	if streams.Out == nil {
		streams.Out = os.Stdout
	}
	return &ReporterApp{client: apiClient, logger: logger, streams: streams, hooks: hooks}
}

// RunRequest calls one API method and prints the response.
func (a *ReporterApp) RunRequest(ctx context.Context, cmd config.RequestCommand) error {
	var params any
	if strings.TrimSpace(cmd.Params) != "" {
		doc, err := reportdesc.Load(cmd.Params, a.streams.In)
		if err != nil {
			return err
		}
		params = doc.Value
	}

	result, err := a.client.Request(ctx, cmd.Method, params)
	if err != nil {
		return err
	}
	if err := a.writeResult(result); err != nil {
		return err
	}
	if result.StatusCode >= 400 {
		return fmt.Errorf("%s returned HTTP %d: %w", cmd.Method, result.StatusCode, ErrRequestRejected)
	}
	return nil
}

func (a *ReporterApp) writeResult(result client.Result) error {
	if !result.Decoded {
		_, err := fmt.Fprintln(a.streams.Out, result.String())
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(result.Raw), "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := a.streams.Out.Write(buf.Bytes())
	return err
}

type jobResult struct {
	index  int
	doc    reportdesc.Document
	report client.Report
	err    error
}

type reportOutput struct {
	Source    string          `json:"source"`
	ReportID  string          `json:"reportID"`
	Attempts  int             `json:"attempts"`
	ElapsedMS int64           `json:"elapsedMs"`
	Report    json.RawMessage `json:"report"`
}

// RunReport submits every description concurrently and prints the finished
// reports in input order. It fails if any job failed.
func (a *ReporterApp) RunReport(ctx context.Context, cmd config.ReportCommand) error {
	docs, err := reportdesc.LoadAll(cmd.Args.Descriptions, a.streams.In)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		a.setJobStatus(doc.Name(), runstatus.Loading)
	}

	results := make(chan jobResult, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.setJobStatus(doc.Name(), runstatus.Polling)
			report, err := a.client.GetReport(ctx, cmd.Method, doc.Value)
			a.setJobStatus(doc.Name(), statusForResult(err))
			runctx.SendOrDone(ctx, "report job "+doc.Name(), a.logger, results, jobResult{index: i, doc: doc, report: report, err: err})
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]jobResult, len(docs))
	received := 0
	for received < len(docs) {
		res, ok := runctx.RecvOrDone(ctx, "report collector", a.logger, results)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			break
		}
		collected[res.index] = res
		received++
	}

	var failures []error
	for _, res := range collected {
		if res.err != nil {
			a.logger.Error("report failed", logging.Field("source", res.doc.Name()), logging.Field("error", res.err))
			failures = append(failures, fmt.Errorf("%s: %w", res.doc.Name(), res.err))
			continue
		}
		if err := a.writeReport(res); err != nil {
			return err
		}
	}
	if len(failures) > 0 {
		return errors.Join(append([]error{ErrReportsFailed}, failures...)...)
	}
	return nil
}

func (a *ReporterApp) writeReport(res jobResult) error {
	out := reportOutput{
		Source:    res.doc.Name(),
		ReportID:  res.report.ID,
		Attempts:  res.report.Attempts,
		ElapsedMS: res.report.Elapsed.Milliseconds(),
		Report:    res.report.Raw,
	}
	enc := json.NewEncoder(a.streams.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func statusForResult(err error) string {
	switch {
	case err == nil:
		return runstatus.Ready
	case client.IsTimeout(err):
		return runstatus.TimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return runstatus.Cancelled
	default:
		return runstatus.Failed
	}
}

type jobStatusState struct {
	mu      sync.Mutex
	current map[string]string
}

func (s *jobStatusState) update(job string, status string) (string, string, bool) {
	trimmed := strings.TrimSpace(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = map[string]string{}
	}
	if s.current[job] == trimmed {
		return trimmed, trimmed, false
	}
	previous := s.current[job]
	s.current[job] = trimmed
	return previous, trimmed, true
}

func (a *ReporterApp) setJobStatus(job string, status string) {
	previous, next, changed := a.status.update(job, status)
	if !changed {
		return
	}
	a.logger.Debug("report job status transition",
		logging.Field("job", job),
		logging.Field("from", previous),
		logging.Field("to", next),
	)
	if a.hooks.OnStatusChange != nil {
		a.hooks.OnStatusChange(job, next)
	}
}
