// Package rsyncwire implements the version-dispatched wire codec shared by
// every rsync role: varint/varlong/longint integers, the NDX file-index
// codec, the post-handshake multiplex envelope, and the legacy ASCII
// daemon greeting.
package rsyncwire

import "io"

// CountingReader wraps an io.Reader and tracks the number of bytes read,
// used for the end-of-session statistics report (rsync/main.c:report).
type CountingReader struct {
	R         io.Reader
	BytesRead int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// CountingWriter wraps an io.Writer and tracks the number of bytes written.
type CountingWriter struct {
	W            io.Writer
	BytesWritten int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.BytesWritten += int64(n)
	return n, err
}

// CounterPair wraps a reader and a writer half of the same transport with
// byte counters, used to compute the statistics rsync reports at the end
// of a transfer.
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}
