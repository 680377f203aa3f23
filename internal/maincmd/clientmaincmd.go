package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/oferchen/rsync-sub026/internal/localcopy"
	"github.com/oferchen/rsync-sub026/internal/log"
	"github.com/oferchen/rsync-sub026/internal/rsyncopts"
	"github.com/oferchen/rsync-sub026/internal/rsyncos"
	"github.com/oferchen/rsync-sub026/internal/rsyncstats"
	"github.com/oferchen/rsync-sub026/rsyncclient"
)

// hostspec is a parsed "host:path", "host::module/path" or
// "rsync://host[:port]/module/path" operand. ok is false for a plain
// local path.
type hostspec struct {
	host string
	port int
	path string
}

// checkForHostspec recognizes the three spellings rsync(1) accepts for a
// remote operand; a bare local path returns ok == false.
func checkForHostspec(arg string) (hostspec, bool) {
	if strings.HasPrefix(arg, "rsync://") {
		rest := strings.TrimPrefix(arg, "rsync://")
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return hostspec{}, false
		}
		hostport := rest[:slash]
		path := rest[slash+1:]
		host, port := splitHostPort(hostport, 873)
		return hostspec{host: host, port: port, path: path}, true
	}
	if idx := strings.Index(arg, "::"); idx >= 0 {
		host, port := splitHostPort(arg[:idx], 873)
		return hostspec{host: host, port: port, path: arg[idx+2:]}, true
	}
	if idx := strings.IndexByte(arg, ':'); idx >= 0 {
		// A single colon is only a hostspec when followed by something
		// other than a Windows-style drive letter path; "C:/x" never
		// appears on the platforms this module targets, so any ':' not
		// part of "::" counts.
		return hostspec{host: arg[:idx], port: 873, path: arg[idx+1:]}, true
	}
	return hostspec{}, false
}

func splitHostPort(s string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return s, defaultPort
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	if port == 0 {
		port = defaultPort
	}
	return host, port
}

// rsyncMain is the client-side equivalent of rsync/main.c:start_client,
// minus the remote-shell transport (spec.md §"Out of scope": this module
// never spawns ssh itself; a caller that needs a remote shell runs this
// binary as the remote command under its own ssh invocation, the same
// way rsync -e does, and ends up in serverCommand via --server instead).
func rsyncMain(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, sources []string, dest string) (*rsyncstats.TransferStats, error) {
	src := sources[0]

	if hs, ok := checkForHostspec(dest); ok {
		opts.SetSender()
		return daemonClient(ctx, osenv, opts, hs, []string{src})
	}
	if hs, ok := checkForHostspec(src); ok {
		return daemonClient(ctx, osenv, opts, hs, []string{dest})
	}

	return localRun(opts, src, dest)
}

// daemonClient dials a standalone rsync daemon over TCP and speaks the
// legacy "@RSYNCD:" greeting (spec.md §4.B "Legacy daemon handshake")
// before handing the connection to rsyncclient for the binary protocol.
func daemonClient(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, hs hostspec, localPaths []string) (*rsyncstats.TransferStats, error) {
	addr := net.JoinHostPort(hs.host, fmt.Sprint(hs.port))
	d := net.Dialer{Timeout: 30 * time.Second}
	if opts.ConnectTimeoutSeconds() > 0 {
		d.Timeout = time.Duration(opts.ConnectTimeoutSeconds()) * time.Second
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing rsync daemon %s: %w", addr, err)
	}
	defer conn.Close()

	_, _, err = greetDaemon(conn, opts, hs.path)
	if err != nil {
		return nil, err
	}

	if len(localPaths) != 1 {
		return nil, fmt.Errorf("rsyncMain: expected exactly one local path, got %q", localPaths)
	}

	clientOpts := []rsyncclient.Option{rsyncclient.WithLogger(log.New(osenv.Stderr))}
	if opts.Sender() {
		clientOpts = append(clientOpts, rsyncclient.WithSender())
	}
	client, err := rsyncclient.New(nil, clientOpts...)
	if err != nil {
		return nil, err
	}

	if err := client.RunDaemon(ctx, conn, localPaths); err != nil {
		return nil, err
	}
	return nil, nil
}

// greetDaemon performs the ASCII handshake: version line, module
// selection, option lines terminated by a blank line (spec.md §6.2
// "Legacy greeting"). It returns the module name and in-module path the
// server will operate on.
func greetDaemon(conn net.Conn, opts *rsyncopts.Options, modulePath string) (module, path string, err error) {
	const protocolLine = "@RSYNCD: 32.0\n"
	if _, err := io.WriteString(conn, protocolLine); err != nil {
		return "", "", err
	}
	rd := bufio.NewReader(conn)
	greeting, err := rd.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	if !strings.HasPrefix(greeting, "@RSYNCD: ") {
		return "", "", fmt.Errorf("invalid daemon greeting: got %q", greeting)
	}

	idx := strings.IndexByte(modulePath, '/')
	if idx < 0 {
		module, path = modulePath, "."
	} else {
		module, path = modulePath[:idx], modulePath[idx+1:]
	}
	if _, err := io.WriteString(conn, module+"\n"); err != nil {
		return "", "", err
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "@ERROR") {
			return "", "", fmt.Errorf("daemon: %s", line)
		}
		if line == "@RSYNCD: OK" {
			break
		}
	}

	for _, flag := range serverOptions(opts) {
		if _, err := io.WriteString(conn, flag+"\n"); err != nil {
			return "", "", err
		}
	}
	if _, err := io.WriteString(conn, "."+"\n"); err != nil {
		return "", "", err
	}
	if _, err := io.WriteString(conn, path+"\n"); err != nil {
		return "", "", err
	}
	if _, err := io.WriteString(conn, "\n"); err != nil {
		return "", "", err
	}
	return module, path, nil
}

// serverOptions reconstructs the argv a "--server" invocation needs from
// opts, the subset rsyncd.go's HandleDaemonConn re-parses on the other
// end.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Recurse() {
		args = append(args, "-r")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.PreserveLinks() {
		args = append(args, "-l")
	}
	if opts.PreservePerms() {
		args = append(args, "-p")
	}
	if opts.PreserveMTimes() {
		args = append(args, "-t")
	}
	if opts.PreserveUid() {
		args = append(args, "-o")
	}
	if opts.PreserveGid() {
		args = append(args, "-g")
	}
	if opts.PreserveDevices() {
		args = append(args, "-D")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.DryRun() {
		args = append(args, "-n")
	}
	return args
}

// localRun implements a purely local transfer (no hostspec on either
// operand) with internal/localcopy instead of looping the wire protocol
// back on itself: there is no transport to economize bytes over, so the
// generator/delta machinery buys nothing (spec.md §4.E).
func localRun(opts *rsyncopts.Options, src, dest string) (*rsyncstats.TransferStats, error) {
	plan, err := localcopy.BuildPlan([][2]string{{src, dest}})
	if err != nil {
		return nil, err
	}
	exec := &localcopy.Executor{
		Opts: &localcopy.Options{
			DryRun:            opts.DryRun(),
			IgnoreExisting:    false,
			UpdateOnly:        opts.UpdateOnly(),
			AlwaysChecksum:    opts.AlwaysChecksum(),
			PreserveUID:       opts.PreserveUid(),
			PreserveGID:       opts.PreserveGid(),
			PreservePerms:     opts.PreservePerms(),
			PreserveTimes:     opts.PreserveMTimes(),
			PreserveDevices:   opts.PreserveDevices(),
			PreserveLinks:     opts.PreserveLinks(),
			PreserveHardlinks: opts.PreserveHardLinks(),
			Delete:            opts.DeleteMode(),
		},
	}
	summary, err := exec.Run(plan)
	if err != nil {
		return nil, err
	}
	return &rsyncstats.TransferStats{
		FileCount:     len(plan.Nodes),
		TotalFileSize: summary.BytesCopied,
		Written:       summary.BytesCopied,
	}, nil
}

func clientMain(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, remaining []string) (*rsyncstats.TransferStats, error) {
	if len(remaining) == 0 {
		fmt.Fprintln(osenv.Stderr, opts.Help())
		return nil, fmt.Errorf("rsync error: syntax or usage error")
	}
	if len(remaining) == 1 {
		return nil, fmt.Errorf("listing a remote source's contents is not supported without a destination")
	}
	dest := remaining[len(remaining)-1]
	sources := remaining[:len(remaining)-1]
	return rsyncMain(ctx, osenv, opts, sources, dest)
}
