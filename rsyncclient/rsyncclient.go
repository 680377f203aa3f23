// Package rsyncclient drives one rsync transfer over an arbitrary
// io.ReadWriter: a subprocess's stdin/stdout, an in-process io.Pipe, or a
// TCP socket already past the legacy daemon greeting. It performs the
// binary protocol-version handshake and then delegates to
// internal/sender or internal/receiver depending on which side of the
// transfer this process plays (spec.md §4.B "Negotiation").
package rsyncclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/rsync-sub026"
	"github.com/oferchen/rsync-sub026/internal/bwlimit"
	"github.com/oferchen/rsync-sub026/internal/log"
	"github.com/oferchen/rsync-sub026/internal/receiver"
	"github.com/oferchen/rsync-sub026/internal/rsyncopts"
	"github.com/oferchen/rsync-sub026/internal/rsyncos"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
	"github.com/oferchen/rsync-sub026/internal/sender"
)

// muxReadBufferSize matches rsync's own read buffer size for the
// post-handshake, multiplexed half of the connection.
const muxReadBufferSize = 256 * 1024

// Option configures a Client at construction time.
type Option interface{ apply(*Client) }

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithSender makes the client the sending side of the transfer (the
// "push" direction); without it, the client receives.
func WithSender() Option {
	return optionFunc(func(c *Client) { c.sender = true })
}

// WithLogger overrides the client's logger, used for its own progress
// messages (not the wire protocol).
func WithLogger(logger log.Logger) Option {
	return optionFunc(func(c *Client) { c.logger = logger })
}

// Client runs one transfer with options parsed the same way the command
// line would (spec.md §4.B, §6 "narrow interfaces").
type Client struct {
	opts   *rsyncopts.Options
	sender bool
	logger log.Logger
}

// New parses args (as rsync(1)'s own flags) and applies opts on top.
func New(args []string, opts ...Option) (*Client, error) {
	pc, err := rsyncopts.ParseArguments(args)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:   pc.Options,
		logger: log.New(os.Stderr),
	}
	for _, o := range opts {
		o.apply(c)
	}
	if c.sender {
		c.opts.SetSender()
	}
	return c, nil
}

// Run executes the transfer over rw. paths must contain exactly one
// entry: the destination directory when receiving, or the source
// file/directory when sending (spec.md §"Out of scope", directory
// walking and filter compilation are not reimplemented as general
// command-line features — this binds directly to the parsed Options).
func (c *Client) Run(ctx context.Context, rw io.ReadWriter, paths []string) error {
	_ = ctx // no mid-transfer cancellation point exists below the handshake yet
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: exactly one path supported, got %q", paths)
	}

	crd, cwr := rsyncwire.CounterPair(rw, rw)
	conn := &rsyncwire.Conn{
		// Unbuffered during the handshake: ReadInt32 only ever pulls the
		// exact byte count it asks for, and a *bufio.Reader here could
		// silently swallow bytes belonging to the multiplexed stream
		// that starts right after the seed.
		Reader: crd,
		Writer: cwr,
	}

	if err := conn.WriteInt32(rsync.ProtocolVersion); err != nil {
		return err
	}
	remoteProtocol, err := conn.ReadInt32()
	if err != nil {
		return err
	}
	if c.opts.Verbose() {
		c.logger.Printf("remote protocol: %d", remoteProtocol)
	}
	version := remoteProtocol
	if rsync.ProtocolVersion < version {
		version = rsync.ProtocolVersion
	}
	conn.ProtocolVersion = version

	seed, err := conn.ReadInt32()
	if err != nil {
		return err
	}

	return c.afterHandshake(conn, crd, cwr, paths[0], seed)
}

// RunDaemon drives a transfer whose protocol-version exchange already
// happened as part of the legacy "@RSYNCD:" ASCII greeting (the daemon
// calling convention, spec.md §4.B "Legacy daemon handshake"): only the
// session checksum seed remains to be read before the binary protocol
// proper starts.
func (c *Client) RunDaemon(ctx context.Context, rw io.ReadWriter, paths []string) error {
	_ = ctx
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: exactly one path supported, got %q", paths)
	}

	crd, cwr := rsyncwire.CounterPair(rw, rw)
	conn := &rsyncwire.Conn{
		Reader:          crd,
		Writer:          cwr,
		ProtocolVersion: rsync.ProtocolVersion,
	}

	seed, err := conn.ReadInt32()
	if err != nil {
		return err
	}

	return c.afterHandshake(conn, crd, cwr, paths[0], seed)
}

func (c *Client) afterHandshake(conn *rsyncwire.Conn, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, path string, seed int32) error {
	if rate := c.opts.BwLimit(); rate > 0 {
		cwr.W = bwlimit.New(cwr.W, rate)
	}

	// The rest of the session is multiplexed in the server->client
	// direction only (spec.md §4.B "Multiplex envelope").
	conn.Reader = bufio.NewReaderSize(&rsyncwire.MultiplexReader{Reader: crd}, muxReadBufferSize)

	if err := sender.SendFilterList(conn, &sender.FilterList{}); err != nil {
		return err
	}

	if c.opts.Sender() {
		return c.runSender(conn, crd, cwr, path, seed)
	}
	return c.runReceiver(conn, path, seed)
}

func (c *Client) runSender(conn *rsyncwire.Conn, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, src string, seed int32) error {
	st := &sender.Transfer{
		Logger: c.logger,
		Opts:   c.opts,
		Conn:   conn,
		Seed:   seed,
	}
	trimmed := filepath.Clean(src)
	if strings.HasSuffix(src, "/") {
		trimmed += "/"
	}
	_, err := st.Do(crd, cwr, "", []string{trimmed}, &sender.FilterList{})
	return err
}

func (c *Client) runReceiver(conn *rsyncwire.Conn, dest string, seed int32) error {
	rt := &receiver.Transfer{
		Logger: c.logger,
		Opts: &receiver.TransferOpts{
			DryRun:            c.opts.DryRun(),
			Server:            c.opts.Server(),
			DeleteMode:        c.opts.DeleteMode(),
			PreserveUid:       c.opts.PreserveUid(),
			PreserveGid:       c.opts.PreserveGid(),
			PreserveLinks:     c.opts.PreserveLinks(),
			PreservePerms:     c.opts.PreservePerms(),
			PreserveDevices:   c.opts.PreserveDevices(),
			PreserveSpecials:  c.opts.PreserveSpecials(),
			PreserveTimes:     c.opts.PreserveMTimes(),
			PreserveHardlinks: c.opts.PreserveHardLinks(),
			Verbose:           c.opts.Verbose(),
		},
		Dest: dest,
		Env:  rsyncos.Std{Stdout: os.Stdout, Stderr: os.Stderr},
		Conn: conn,
		Seed: seed,
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}
	if c.opts.Verbose() {
		c.logger.Printf("received %d names", len(fileList))
	}
	stats, err := rt.Do(conn, fileList, false)
	if err != nil {
		return err
	}
	if c.opts.Verbose() {
		c.logger.Printf("stats: %+v", stats)
	}
	return nil
}
