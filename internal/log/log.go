// Package log defines the small logging interface every long-running
// component (the daemon Server, receiver.Transfer, sender.Transfer) takes
// explicitly instead of calling the standard log package directly.
package log

import (
	"io"
	stdlog "log"
	"os"
	"sync"
)

// Logger is satisfied by *log.Logger and by test doubles.
type Logger interface {
	Printf(format string, args ...any)
	Print(args ...any)
	Println(args ...any)
}

// New wraps w in a Logger with no prefix and no timestamp, matching the
// terse style the daemon uses for per-connection messages.
func New(w io.Writer) Logger {
	return stdlog.New(w, "", 0)
}

var (
	mu      sync.Mutex
	current Logger = New(os.Stderr)
)

// SetLogger replaces the package-level default logger used by code that
// has no connection-scoped Logger of its own (popt parsing, early startup
// messages before a Server exists).
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func get() Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

func Printf(format string, args ...any) { get().Printf(format, args...) }
func Print(args ...any)                 { get().Print(args...) }
func Println(args ...any)               { get().Println(args...) }
