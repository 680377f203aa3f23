package negotiate

import (
	"io"
	"testing"

	"github.com/oferchen/rsync-sub026"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
)

func TestSelectVersion(t *testing.T) {
	for _, tt := range []struct {
		name               string
		localNewest, peer  int32
		want               int32
		wantErr            bool
	}{
		{name: "equal", localNewest: 32, peer: 32, want: 32},
		{name: "peer older", localNewest: 32, peer: 29, want: 29},
		{name: "local older", localNewest: 28, peer: 32, want: 28},
		{name: "peer below floor", localNewest: 32, peer: 5, wantErr: true},
		{name: "peer above ceiling", localNewest: 32, peer: 9000, wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectVersion(tt.localNewest, tt.peer)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SelectVersion(%d, %d) = %d, want error", tt.localNewest, tt.peer, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectVersion(%d, %d): %v", tt.localNewest, tt.peer, err)
			}
			if got != tt.want {
				t.Errorf("SelectVersion(%d, %d) = %d, want %d", tt.localNewest, tt.peer, got, tt.want)
			}
		})
	}
}

func TestSelectVersionSymmetric(t *testing.T) {
	for _, a := range []int32{28, 29, 30, 31, 32} {
		for _, b := range []int32{28, 29, 30, 31, 32} {
			got1, err1 := SelectVersion(a, b)
			got2, err2 := SelectVersion(b, a)
			if (err1 == nil) != (err2 == nil) || got1 != got2 {
				t.Errorf("SelectVersion(%d,%d)=(%d,%v) vs SelectVersion(%d,%d)=(%d,%v): not symmetric", a, b, got1, err1, b, a, got2, err2)
			}
		}
	}
}

// pipeConns returns two *rsyncwire.Conn wired to opposite ends of an
// in-process pipe pair, the way rsyncd/rsyncclient connect a real
// transport's two halves.
func pipeConns() (client, server *rsyncwire.Conn, closeAll func()) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	client = &rsyncwire.Conn{Reader: br, Writer: aw}
	server = &rsyncwire.Conn{Reader: ar, Writer: bw}
	return client, server, func() {
		ar.Close()
		aw.Close()
		br.Close()
		bw.Close()
	}
}

func TestNegotiateBinary(t *testing.T) {
	client, server, closeAll := pipeConns()
	defer closeAll()

	type result struct {
		v   int32
		err error
	}
	clientCh := make(chan result, 1)
	go func() {
		v, err := NegotiateBinary(client, 32, true)
		clientCh <- result{v, err}
	}()

	v, err := NegotiateBinary(server, 29, false)
	if err != nil {
		t.Fatal(err)
	}
	cr := <-clientCh
	if cr.err != nil {
		t.Fatal(cr.err)
	}
	if v != 29 || cr.v != 29 {
		t.Errorf("negotiated (client=%d, server=%d), want both 29", cr.v, v)
	}
}

func TestExchangeCompatFlags(t *testing.T) {
	for _, version := range []int32{30, 31, 32} {
		t.Run(versionName(version), func(t *testing.T) {
			client, server, closeAll := pipeConns()
			defer closeAll()

			type result struct {
				flags rsync.CompatFlag
				err   error
			}
			clientCh := make(chan result, 1)
			go func() {
				flags, err := ExchangeCompatFlags(client, version)
				clientCh <- result{flags, err}
			}()

			serverFlags, err := ExchangeCompatFlags(server, version)
			if err != nil {
				t.Fatal(err)
			}
			cr := <-clientCh
			if cr.err != nil {
				t.Fatal(cr.err)
			}
			if cr.flags != serverFlags {
				t.Errorf("client negotiated %v, server negotiated %v; both sides must agree", cr.flags, serverFlags)
			}
			if version >= 31 && cr.flags&rsync.CompatSafeFList == 0 {
				t.Errorf("protocol %d must negotiate SAFE_FLIST", version)
			}
			if version < 32 && cr.flags&rsync.CompatFixedChecksumSeed != 0 {
				t.Errorf("protocol %d must never honor FIXED_CHECKSUM_SEED", version)
			}
		})
	}
}

func versionName(v int32) string {
	switch v {
	case 30:
		return "v30"
	case 31:
		return "v31"
	case 32:
		return "v32"
	}
	return "unknown"
}

func TestNegotiateDigest(t *testing.T) {
	client, server, closeAll := pipeConns()
	defer closeAll()

	clientAvail := []DigestAlgo{DigestMD4, DigestMD5, DigestXXH64}
	serverAvail := []DigestAlgo{DigestMD5, DigestXXH3_128}

	type result struct {
		algo DigestAlgo
		err  error
	}
	clientCh := make(chan result, 1)
	go func() {
		algo, err := NegotiateDigest(client, clientAvail, true)
		clientCh <- result{algo, err}
	}()

	serverAlgo, err := NegotiateDigest(server, serverAvail, false)
	if err != nil {
		t.Fatal(err)
	}
	cr := <-clientCh
	if cr.err != nil {
		t.Fatal(cr.err)
	}
	if cr.algo != serverAlgo {
		t.Fatalf("client got %q, server chose %q", cr.algo, serverAlgo)
	}
	// Of the overlap {md5}, md5 is the only shared algorithm.
	if serverAlgo != DigestMD5 {
		t.Errorf("chosen digest = %q, want %q (only overlap)", serverAlgo, DigestMD5)
	}
}

func TestNegotiateCompressNoOverlap(t *testing.T) {
	client, server, closeAll := pipeConns()
	defer closeAll()

	clientCh := make(chan error, 1)
	go func() {
		_, err := NegotiateCompress(client, []CompressAlgo{CompressZstd}, true)
		clientCh <- err
	}()

	serverAlgo, err := NegotiateCompress(server, []CompressAlgo{CompressZlib}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-clientCh; err != nil {
		t.Fatal(err)
	}
	if serverAlgo != "" {
		t.Errorf("chosen compression = %q, want empty string (no overlap)", serverAlgo)
	}
}

func TestSplitJoinCommasRoundTrip(t *testing.T) {
	for _, ss := range [][]string{
		{""},
		{"a"},
		{"a", "b", "c"},
		{"", "", ""},
	} {
		joined := joinCommas(ss)
		got := splitCommas(joined)
		if len(got) != len(ss) {
			t.Fatalf("splitCommas(joinCommas(%q)) = %q, want %d entries", ss, got, len(ss))
		}
		for i := range ss {
			if got[i] != ss[i] {
				t.Fatalf("splitCommas(joinCommas(%q))[%d] = %q, want %q", ss, i, got[i], ss[i])
			}
		}
	}
}

func FuzzSplitCommasNoPanic(f *testing.F) {
	f.Add("")
	f.Add("a")
	f.Add("a,b,c")
	f.Add(",,,")
	f.Fuzz(func(t *testing.T, s string) {
		parts := splitCommas(s)
		if joinCommas(parts) != s {
			t.Fatalf("splitCommas/joinCommas not inverse for %q: got %q", s, parts)
		}
	})
}
