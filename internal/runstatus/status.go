// Package runstatus names the states a report job moves through.
package runstatus

import "strings"

const (
	Loading   = "Loading"
	Queued    = "Queued"
	Polling   = "Polling"
	Ready     = "Ready"
	Failed    = "Failed"
	TimedOut  = "Timed out"
	Cancelled = "Cancelled"
)

// Terminal reports whether status ends a job.
func Terminal(status string) bool {
	switch Key(status) {
	case Key(Ready), Key(Failed), Key(TimedOut), Key(Cancelled):
		return true
	default:
		return false
	}
}

func Key(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
