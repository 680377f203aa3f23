// Package rsynctest provides test fixtures for spinning up a real
// daemon instance of this module's own server and locating a system
// rsync(1) binary for interop tests.
package rsynctest

import (
	"context"
	"net"
	"os/exec"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub026/rsyncd"
)

// AnyRsync returns the path to an rsync(1) binary on PATH, skipping the
// test if none is installed.
func AnyRsync(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("rsync")
	if err != nil {
		t.Skipf("rsync(1) not found on PATH: %v", err)
	}
	return path
}

// Server is a running daemon instance bound to an ephemeral port, torn
// down automatically when the test ends.
type Server struct {
	Port string
}

// Option configures New the way rsyncdconfig.Listener entries configure
// a real daemon deployment.
type Option func(*config)

type config struct {
	modules   []rsyncd.Module
	listeners []rsyncdconfig.Listener
}

// InteropModule registers a module named "interop" rooted at path, the
// module name every test in this package's interop suite expects.
func InteropModule(path string) Option {
	return func(c *config) {
		c.modules = append(c.modules, rsyncd.Module{Name: "interop", Path: path})
	}
}

// Listeners appends additional listener configuration; unused by the
// plain TCP daemon fixture but accepted so callers exercising
// rsyncdconfig wiring don't need a separate fixture constructor.
func Listeners(ls []rsyncdconfig.Listener) Option {
	return func(c *config) {
		c.listeners = append(c.listeners, ls...)
	}
}

// New starts a daemon on 127.0.0.1 with an ephemeral port, serving until
// the test completes.
func New(t *testing.T, opts ...Option) *Server {
	t.Helper()
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := rsyncd.NewServer(cfg.modules)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		ln.Close()
		<-done
	})

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Server{Port: port}
}
