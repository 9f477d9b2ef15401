package netlinkdev

import "errors"

var (
	errNotConfigured = errors.New("no station configuration")
	errNotStarted    = errors.New("radio not started")
)
