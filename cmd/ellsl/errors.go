package main

import (
	"errors"

	"github.com/srg/ellsl/internal/elapi"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the service closed the connection while streaming.
	ErrConnectionLost = errors.New("connection to the service lost")

	// errQuit ends the console loop
	errQuit = errors.New("quit")
)

// FormatUserError renders err for the terminal. Service result codes get
// the same message the console prints for them.
func FormatUserError(err error) string {
	var re *elapi.ResultError
	if errors.As(err, &re) {
		return resultMessage(re.Op, re.Code)
	}
	return err.Error()
}
