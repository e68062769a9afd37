package app

import "errors"

var (
	ErrReportsFailed   = errors.New("one or more reports failed")
	ErrRequestRejected = errors.New("api rejected the request")
)
