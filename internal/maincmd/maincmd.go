// Package maincmd implements the subset of the rsync(1) CLI surface this
// module supports: acting as a remote-shell server ("--server"), a
// standalone TCP daemon ("--daemon"), or a client driving either role
// against a peer (see clientmaincmd.go). Remote-shell transport spawning
// (ssh(1) subprocesses), anonymous-SSH listeners, and mount-namespace
// sandboxing are external collaborators this module does not reimplement
// (spec.md §"Out of scope"): callers that need a remote shell invoke this
// binary themselves as the remote command, the way rsync -e does.
package maincmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub026/internal/restrict"
	"github.com/oferchen/rsync-sub026/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub026/internal/rsyncopts"
	"github.com/oferchen/rsync-sub026/internal/rsyncos"
	"github.com/oferchen/rsync-sub026/internal/rsyncstats"
	"github.com/oferchen/rsync-sub026/rsyncd"

	_ "net/http/pprof"
)

// readWriter pairs an independent reader and writer half into one
// io.ReadWriter, the shape HandleDaemonConn expects for a connection that
// is really two separate process streams (stdin/stdout).
type readWriter struct {
	r io.Reader
	w io.Writer
}

func (rw *readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw *readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// Main dispatches on the parsed options the way rsync/main.c's
// start_server/start_daemon/client path does, minus the namespace and
// SSH-listener machinery this module leaves to external tooling.
func Main(ctx context.Context, osenv *rsyncos.Env, args []string, cfg *rsyncdconfig.Config) (*rsyncstats.TransferStats, error) {
	pc, err := rsyncopts.ParseArguments(args[1:])
	if err != nil {
		if pe, ok := err.(*rsyncopts.PoptError); ok && strings.HasPrefix(pe.Option, "--x.") {
			return nil, fmt.Errorf("%v (you need to specify --daemon before flags starting with --x are available)", pe)
		}
		return nil, err
	}
	opts := pc.Options
	remaining := pc.RemainingArgs

	if !osenv.DontRestrict {
		osenv.DontRestrict = opts.ExtraClient.DontRestrict == 1
	}

	switch {
	case opts.Daemon() && opts.Server():
		return nil, daemonOverRemoteShell(ctx, osenv, cfg)
	case opts.Server():
		return nil, serverCommand(ctx, osenv, opts, remaining)
	case !opts.Daemon():
		return clientMain(ctx, osenv, opts, remaining)
	default:
		return nil, standaloneDaemon(ctx, osenv, opts, cfg)
	}
}

// daemonOverRemoteShell implements "--server --daemon ." the way a remote
// shell transport invokes the binary it spawned: the connection is
// osenv's own stdin/stdout, already connected to the client.
func daemonOverRemoteShell(ctx context.Context, osenv *rsyncos.Env, cfg *rsyncdconfig.Config) error {
	if cfg == nil {
		var err error
		cfg, _, err = rsyncdconfig.FromDefaultFiles()
		if err != nil {
			return err
		}
	}
	rsyncdOpts := []rsyncd.Option{rsyncd.WithStderr(osenv.Stderr)}
	if osenv.DontRestrict {
		rsyncdOpts = append(rsyncdOpts, rsyncd.DontRestrict())
	}
	srv, err := rsyncd.NewServer(cfg.Modules, rsyncdOpts...)
	if err != nil {
		return err
	}
	return srv.HandleDaemonConn(ctx, rsyncos.Std{Stdin: osenv.Stdin, Stdout: osenv.Stdout, Stderr: osenv.Stderr}, &readWriter{r: osenv.Stdin, w: osenv.Stdout}, nil)
}

// serverCommand implements "--server [--sender] DIR..." over whatever
// transport osenv's stdin/stdout already represent (a remote-shell
// session or a local io.Pipe half from clientmaincmd.go).
func serverCommand(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, remaining []string) error {
	srv, err := rsyncd.NewServer(nil, rsyncd.WithStderr(osenv.Stderr))
	if err != nil {
		return err
	}
	if len(remaining) < 2 {
		return fmt.Errorf("invalid args: at least one directory required")
	}
	if got, want := remaining[0], "."; got != want {
		return fmt.Errorf("protocol error: got %q, expected %q", got, want)
	}
	paths := remaining[1:]

	var roDirs, rwDirs []string
	if opts.Sender() {
		roDirs = append(roDirs, paths...)
	} else {
		for _, path := range paths {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
		}
		rwDirs = append(rwDirs, paths...)
	}
	if osenv.Restrict() {
		if err := restrict.MaybeFileSystem(roDirs, rwDirs); err != nil {
			return err
		}
	}

	conn := srv.NewConnection(osenv.Stdin, osenv.Stdout)
	return srv.HandleConn(nil, conn, paths, opts, false)
}

// standaloneDaemon implements "--daemon" without a remote shell: it binds
// a TCP listener directly and serves rsync:// connections until ctx is
// canceled. Systemd socket activation and SSH-wrapped listeners are
// external collaborators (spec.md §"Out of scope") left to a process
// supervisor placed in front of this binary.
func standaloneDaemon(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, cfg *rsyncdconfig.Config) error {
	var cfgfn string
	var cfgErr error
	if cfg == nil {
		if opts.ExtraDaemon.Config != "" {
			cfgfn = opts.ExtraDaemon.Config
			cfg, cfgErr = rsyncdconfig.FromFile(cfgfn)
		} else {
			cfg, cfgfn, cfgErr = rsyncdconfig.FromDefaultFiles()
		}
		if cfgErr != nil {
			if !os.IsNotExist(cfgErr) {
				return cfgErr
			}
			osenv.Logf("config file not found, relying on flags")
			cfg = &rsyncdconfig.Config{
				Listeners: []rsyncdconfig.Listener{{Rsyncd: opts.ExtraDaemon.Listen}},
				Modules:   []rsyncd.Module{},
			}
		} else {
			osenv.Logf("config file %s loaded", cfgfn)
		}
	}

	if moduleMap := opts.ExtraDaemon.ModuleMap; moduleMap != "" {
		parts := strings.SplitN(moduleMap, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed -x.modulemap parameter %q, expected <modulename>=<path>", moduleMap)
		}
		cfg.Modules = append(cfg.Modules, rsyncd.Module{Name: parts[0], Path: parts[1]})
	}

	listenAddr := opts.ExtraDaemon.Listen
	if listenAddr == "" && len(cfg.Listeners) > 0 {
		listenAddr = cfg.Listeners[0].Rsyncd
	}
	if listenAddr == "" {
		return fmt.Errorf("no listen address configured: pass -x.listen or add a [[listener]] to the config file")
	}

	osenv.Logf("%d rsync modules configured", len(cfg.Modules))
	for _, mod := range cfg.Modules {
		osenv.Logf("rsync module %q with path %s configured", mod.Name, mod.Path)
	}

	if monitoringListen := opts.ExtraDaemon.MonitoringListen; monitoringListen != "" {
		go func() {
			osenv.Logf("HTTP server for monitoring listening on http://%s/debug/pprof", monitoringListen)
			if err := http.ListenAndServe(monitoringListen, nil); err != nil {
				osenv.Logf("-monitoring_listen: %v", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	if err := dropPrivileges(osenv); err != nil {
		return err
	}

	srv, err := rsyncd.NewServer(cfg.Modules, rsyncd.WithStderr(osenv.Stderr))
	if err != nil {
		return err
	}
	osenv.Logf("rsync daemon listening on rsync://%s", ln.Addr())
	return srv.Serve(ctx, ln)
}
