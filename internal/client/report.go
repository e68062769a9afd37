package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"omniture-reporter/internal/logging"
)

// Report is the data of a finished report job.
type Report struct {
	ID       string
	Raw      json.RawMessage
	Value    any
	Attempts int
	// Elapsed runs from submission (or from the first poll for
	// GetQueuedReport) until the data arrived.
	Elapsed time.Duration
}

func (r Report) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// GetReport queues a report with method (for example "Report.Queue") and the
// caller's description, then polls until its data is ready. The description
// is sent as-is.
func (c *AnalyticsClient) GetReport(ctx context.Context, method string, description any) (Report, error) {
	started := c.now()
	result, err := c.Request(ctx, method, description)
	if err != nil {
		return Report{}, err
	}
	reportID, ok := extractReportID(result)
	if !ok {
		c.logger.Error("Could not queue report.  Omniture returned with error",
			logging.Field("method", method),
			logging.Field("status", result.StatusCode),
			logging.Field("response", logging.FormatHTTPPayload(result.Raw)),
		)
		return Report{}, &ReportQueueError{Method: method, StatusCode: result.StatusCode, Body: result.Raw}
	}
	c.logger.Info(fmt.Sprintf("Report with ID (%s) queued.  Now fetching report...", reportID), logging.Field("report_id", reportID))
	return c.pollReport(ctx, reportID, started)
}

// GetQueuedReport polls an already queued report until its data is ready.
func (c *AnalyticsClient) GetQueuedReport(ctx context.Context, reportID string) (Report, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return Report{}, errors.New("report id is required")
	}
	return c.pollReport(ctx, reportID, c.now())
}

func (c *AnalyticsClient) pollReport(ctx context.Context, reportID string, started time.Time) (Report, error) {
	body, err := json.Marshal(map[string]string{"reportID": reportID})
	if err != nil {
		return Report{}, err
	}

	attempts := 0
	var last PollOutcome
	poll := func() (PollOutcome, error) {
		attempts++
		resp, err := c.Post(ctx, reportGetMethod, body)
		if err != nil {
			return PollOutcome{}, backoff.Permanent(err)
		}
		outcome, err := ClassifyPoll(resp.StatusCode, resp.Body)
		if err != nil {
			return PollOutcome{}, backoff.Permanent(c.decodeFailure(reportGetMethod, resp, err))
		}
		last = outcome
		switch outcome.State {
		case PollReady:
			return outcome, nil
		case PollPending:
			c.logPollFailure(reportID, outcome)
			return outcome, ErrReportNotReady
		default:
			c.logPollFailure(reportID, outcome)
			return outcome, backoff.Permanent(c.reportFailed(reportID, outcome))
		}
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.PollInterval)),
		backoff.WithMaxElapsedTime(c.cfg.PollTimeout),
		backoff.WithNotify(func(_ error, next time.Duration) {
			c.logger.Debug("report not ready; polling again",
				logging.Field("report_id", reportID),
				logging.Field("attempt", attempts),
				logging.Field("next_poll", next.String()),
			)
		}),
	}
	if c.cfg.MaxPollAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(c.cfg.MaxPollAttempts))
	}

	outcome, err := backoff.Retry(ctx, poll, retryOpts...)
	elapsed := c.now().Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}
	if err != nil {
		return Report{}, c.pollError(ctx, reportID, err, attempts, elapsed, last)
	}

	c.logger.Info(fmt.Sprintf("Report with ID %s has finished processing in %d ms", reportID, elapsed.Milliseconds()),
		logging.Field("report_id", reportID),
		logging.Field("attempts", attempts),
	)
	return Report{
		ID:       reportID,
		Raw:      json.RawMessage(outcome.Raw),
		Value:    outcome.Value,
		Attempts: attempts,
		Elapsed:  elapsed,
	}, nil
}

func (c *AnalyticsClient) pollError(ctx context.Context, reportID string, err error, attempts int, elapsed time.Duration, last PollOutcome) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, ctxErr) || !isTypedClientError(err)) {
		return fmt.Errorf("poll report %s: %w", reportID, ctxErr)
	}
	if errors.Is(err, ErrReportNotReady) {
		timeoutErr := &PollTimeoutError{
			ReportID:        reportID,
			Attempts:        attempts,
			Elapsed:         elapsed,
			LastCode:        last.ErrorCode,
			LastDescription: last.ErrorDescription,
		}
		c.logger.Error(timeoutErr.Error(), logging.Field("report_id", reportID))
		return timeoutErr
	}
	return err
}

func (c *AnalyticsClient) logPollFailure(reportID string, outcome PollOutcome) {
	c.logger.Warn(fmt.Sprintf("%s: %s", outcome.ErrorCode, outcome.ErrorDescription),
		logging.Field("report_id", reportID),
		logging.Field("status", outcome.StatusCode),
	)
}

func (c *AnalyticsClient) reportFailed(reportID string, outcome PollOutcome) error {
	reportErr := &OmnitureReportError{
		ReportID:    reportID,
		StatusCode:  outcome.StatusCode,
		Code:        outcome.ErrorCode,
		Description: outcome.ErrorDescription,
		Details:     outcome.Value,
		Body:        outcome.Raw,
	}
	c.logger.Error(reportErr.Error(),
		logging.Field("report_id", reportID),
		logging.Field("response", logging.FormatHTTPPayload(outcome.Raw)),
	)
	return reportErr
}

func isTypedClientError(err error) bool {
	var transportErr *TransportError
	var decodeErr *ResponseDecodeError
	var reportErr *OmnitureReportError
	return errors.As(err, &transportErr) || errors.As(err, &decodeErr) || errors.As(err, &reportErr)
}

// extractReportID accepts the id as a JSON string or number. A missing,
// null, false or empty value means the report was not queued.
func extractReportID(result Result) (string, bool) {
	if !result.Decoded {
		return "", false
	}
	doc, ok := result.Value.(map[string]any)
	if !ok {
		return "", false
	}
	switch id := doc["reportID"].(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}
