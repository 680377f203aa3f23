package rsyncclient_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/rsyncopts"
	"github.com/oferchen/rsync-sub026/internal/rsynctest"
	"github.com/oferchen/rsync-sub026/internal/testlogger"
	"github.com/oferchen/rsync-sub026/rsyncclient"
	"github.com/oferchen/rsync-sub026/rsyncd"
	"github.com/google/go-cmp/cmp"
)

// ExampleClient_Run_sendToGoroutine shows driving this package's Client
// against a server running in an in-process goroutine, connected over a
// pair of io.Pipes instead of a real socket.
func ExampleClient_Run_sendToGoroutine() {
	tmp, err := os.MkdirTemp("", "rsyncclient-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	src := filepath.Join(tmp, "src")
	dest := filepath.Join(tmp, "dest")
	if err := os.MkdirAll(src, 0755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello"), []byte("world"), 0644); err != nil {
		panic(err)
	}

	args := []string{"-av"}

	rsync, err := rsyncd.NewServer(nil)
	if err != nil {
		panic(err)
	}
	stdinrd, stdinwr := io.Pipe()
	stdoutrd, stdoutwr := io.Pipe()
	go func() {
		conn := rsync.NewConnection(stdinrd, stdoutwr)
		serverArgs := append([]string{"--server"}, args...)
		serverArgs = append(serverArgs, ".", dest)
		pc, err := rsyncopts.ParseArguments(serverArgs)
		if err != nil {
			panic(err)
		}
		if err := rsync.HandleConn(nil, conn, pc.RemainingArgs[1:], pc.Options, true); err != nil {
			panic(err)
		}
	}()

	rw := &struct {
		io.Reader
		io.Writer
	}{
		Reader: stdoutrd,
		Writer: stdinwr,
	}

	client, err := rsyncclient.New(args, rsyncclient.WithSender())
	if err != nil {
		panic(err)
	}
	if err := client.Run(context.Background(), rw, []string{src}); err != nil {
		panic(err)
	}
}

func TestClientCommand(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello"), []byte("world"), 0644); err != nil {
		t.Fatal(err)
	}

	rsync := exec.Command(rsynctest.AnyRsync(t),
		"--server",
		"--sender",
		"-nlogDtpr",
		".",
		src)
	wc, err := rsync.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	rc, err := rsync.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	rw := &struct {
		io.Reader
		io.Writer
	}{Reader: rc, Writer: wc}
	if err := rsync.Start(); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(tmp, "dest")
	client, err := rsyncclient.New([]string{"-av"})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Run(t.Context(), rw, []string{dest}); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("world"), got); diff != "" {
		t.Errorf("unexpected file contents: diff (-want +got):\n%s", diff)
	}
}

// runServerConn starts rsync.HandleConn in a goroutine against one end of
// an in-process pipe pair and returns the other end plus a WaitGroup the
// caller should wait on after the client side completes, so any server
// error surfaces as a test failure.
func runServerConn(t *testing.T, rsync *rsyncd.Server, mod *rsyncd.Module, serverArgs []string) (rw io.ReadWriter, wait func()) {
	t.Helper()
	pc, err := rsyncopts.ParseArguments(serverArgs)
	if err != nil {
		t.Fatalf("parsing server args: %v", err)
	}

	stdinrd, stdinwr := io.Pipe()
	stdoutrd, stdoutwr := io.Pipe()
	conn := rsync.NewConnection(stdinrd, stdoutwr)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rsync.HandleConn(mod, conn, pc.RemainingArgs[1:], pc.Options, true); err != nil {
			t.Error(err)
		}
	}()

	return &struct {
		io.Reader
		io.Writer
	}{Reader: stdoutrd, Writer: stdinwr}, wg.Wait
}

// TestClientServerRoundTrip exercises this package's Client against this
// module's own rsyncd.Server, both directions (receive/send) and both
// calling conventions (module name vs. bare path), covering the
// asymmetry documented in DESIGN.md: every HandleConn call exchanges a
// filter list regardless of which side acts as sender.
func TestClientServerRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name      string
		useModule bool
		clientIsSender bool
	}{
		{name: "module receive", useModule: true, clientIsSender: false},
		{name: "command receive", useModule: false, clientIsSender: false},
		{name: "command send", useModule: false, clientIsSender: true},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stderr := testlogger.New(t)
			tmp := t.TempDir()
			src := filepath.Join(tmp, "src") + "/"
			dest := filepath.Join(tmp, "dest")
			const content = "round trip payload"
			if err := os.MkdirAll(src, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(src, "payload"), []byte(content), 0644); err != nil {
				t.Fatal(err)
			}

			var mod *rsyncd.Module
			var modules []rsyncd.Module
			if tt.useModule {
				m := rsyncd.Module{Name: "tmp", Path: src}
				modules = []rsyncd.Module{m}
				mod = &m
			}
			rsync, err := rsyncd.NewServer(modules, rsyncd.WithStderr(stderr))
			if err != nil {
				t.Fatal(err)
			}

			args := []string{"-av"}
			serverArgs := []string{"--server", "--sender"}
			serverArgs = append(serverArgs, args...)
			if tt.useModule {
				serverArgs = append(serverArgs, ".", "./")
			} else if tt.clientIsSender {
				serverArgs = []string{"--server"}
				serverArgs = append(serverArgs, args...)
				serverArgs = append(serverArgs, ".", dest)
			} else {
				serverArgs = append(serverArgs, ".", src)
			}

			rw, wait := runServerConn(t, rsync, mod, serverArgs)

			var clientOpts []rsyncclient.Option
			var clientPaths []string
			if tt.clientIsSender {
				clientOpts = append(clientOpts, rsyncclient.WithSender())
				clientPaths = []string{src}
			} else {
				clientPaths = []string{dest}
			}
			client, err := rsyncclient.New(args, clientOpts...)
			if err != nil {
				t.Fatal(err)
			}
			if err := client.Run(t.Context(), rw, clientPaths); err != nil {
				t.Fatal(err)
			}

			got, err := os.ReadFile(filepath.Join(dest, "payload"))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, []byte(content)) {
				t.Errorf("payload: unexpected contents: diff (-want +got):\n%s", cmp.Diff([]byte(content), got))
			}

			wait()
		})
	}
}
