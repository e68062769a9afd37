package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrReportNotReady is matched by errors.Is on a *PollTimeoutError.
var ErrReportNotReady = errors.New("report not ready")

// TransportError reports a request that never produced an HTTP response
// (connection, DNS, TLS or timeout failure). It is not retried.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseDecodeError carries the raw body of a response that could not be
// used, for diagnostics.
type ResponseDecodeError struct {
	Method     string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ResponseDecodeError) Error() string {
	return fmt.Sprintf("Error in %s response (status %d): %v", e.Method, e.StatusCode, e.Err)
}

func (e *ResponseDecodeError) Unwrap() error { return e.Err }

// ReportQueueError means the submission was answered without a report id.
type ReportQueueError struct {
	Method     string
	StatusCode int
	Body       []byte
}

func (e *ReportQueueError) Error() string {
	return "Could not queue report.  Omniture returned with error:\n" + string(e.Body)
}

// OmnitureReportError is a terminal, non-retryable Report.Get failure.
type OmnitureReportError struct {
	ReportID    string
	StatusCode  int
	Code        string
	Description string
	// Details is the decoded error document returned by the server.
	Details any
	Body    []byte
}

func (e *OmnitureReportError) Error() string {
	return fmt.Sprintf("Unable to get data for report %s. Error Code: %s.", e.ReportID, e.Code)
}

// PollTimeoutError means the report was still not ready when the configured
// attempt count or poll deadline ran out.
type PollTimeoutError struct {
	ReportID        string
	Attempts        int
	Elapsed         time.Duration
	LastCode        string
	LastDescription string
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("report %s still not ready after %d attempts in %s", e.ReportID, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *PollTimeoutError) Unwrap() error { return ErrReportNotReady }

func IsTimeout(err error) bool {
	var timeoutErr *PollTimeoutError
	return errors.As(err, &timeoutErr)
}

// IsReportFailure reports whether err is a terminal report error carrying the
// given server error code. An empty code matches any report failure.
func IsReportFailure(err error, code string) bool {
	var reportErr *OmnitureReportError
	if !errors.As(err, &reportErr) {
		return false
	}
	return code == "" || reportErr.Code == code
}
