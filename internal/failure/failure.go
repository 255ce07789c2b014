// Package failure defines the error kinds shared by the ASR session and the
// suggestion pipeline.
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means a binary, model or URL is missing. No session starts.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection means the transport failed before the engine was ready.
	ErrConnection = errors.New("connection error")
	// ErrProtocol means a malformed or unknown message arrived. Non-fatal.
	ErrProtocol = errors.New("protocol error")
	// ErrUpstream means the engine reported an error itself.
	ErrUpstream = errors.New("upstream error")
	// ErrParse means an LLM response lacked the required JSON shape.
	ErrParse = errors.New("parse error")
	// ErrProcessExit means the engine process or socket closed unexpectedly.
	ErrProcessExit = errors.New("process exit")
)

// Errorf wraps kind with a formatted message so errors.Is(err, kind) holds.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{kind}, args...)...)
}

var labels = []struct {
	kind  error
	label string
}{
	{ErrConfiguration, "configuration"},
	{ErrConnection, "connection"},
	{ErrProtocol, "protocol"},
	{ErrUpstream, "upstream"},
	{ErrParse, "parse"},
	{ErrProcessExit, "process_exit"},
}

// Label maps err to a short metrics label.
func Label(err error) string {
	if err == nil {
		return ""
	}
	for _, l := range labels {
		if errors.Is(err, l.kind) {
			return l.label
		}
	}
	return "other"
}
