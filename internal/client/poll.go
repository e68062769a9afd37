package client

import (
	"fmt"
	"net/http"
)

type PollState int

const (
	PollPending PollState = iota
	PollReady
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollReady:
		return "ready"
	case PollFailed:
		return "failed"
	default:
		return fmt.Sprintf("PollState(%d)", int(s))
	}
}

const reportNotReadyCode = "report_not_ready"

// PollOutcome is one classified Report.Get response.
type PollOutcome struct {
	State            PollState
	StatusCode       int
	ErrorCode        string
	ErrorDescription string
	Raw              []byte
	Value            any
}

// Retry reports whether the loop should sleep and ask again.
func (o PollOutcome) Retry() bool {
	return o.State == PollPending
}

// ClassifyPoll maps a Report.Get response to an outcome. 200 is ready; only
// 400 with error "report_not_ready" is pending; anything else is failed.
// The body must be JSON whatever the status.
func ClassifyPoll(statusCode int, body []byte) (PollOutcome, error) {
	value, err := decodeJSON(body)
	if err != nil {
		return PollOutcome{}, err
	}
	outcome := PollOutcome{StatusCode: statusCode, Raw: body, Value: value}
	if statusCode == http.StatusOK {
		outcome.State = PollReady
		return outcome, nil
	}
	if doc, ok := value.(map[string]any); ok {
		outcome.ErrorCode = textField(doc["error"])
		outcome.ErrorDescription = textField(doc["error_description"])
	}
	if statusCode == http.StatusBadRequest && outcome.ErrorCode == reportNotReadyCode {
		outcome.State = PollPending
	} else {
		outcome.State = PollFailed
	}
	return outcome, nil
}

func textField(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
