// Package testlogger adapts testing.T.Log into an io.Writer, the shape
// most of this tree's constructors (WithStderr, log.New) take.
package testlogger

import (
	"strings"
	"testing"
)

type writer struct {
	t *testing.T
}

func (w *writer) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// New returns an io.Writer that logs each write via t.Log, so output only
// appears when the test fails or -v is passed.
func New(t *testing.T) *writer {
	return &writer{t: t}
}
