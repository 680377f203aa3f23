package flist

import "github.com/oferchen/rsync-sub026/internal/rsyncwire"

// IncrementalSender streams a file list as a sequence of per-directory
// chunks instead of one flat list (protocol >=30, INC_RECURSE, spec.md
// §4.C "Incremental file list"). Each chunk covers the entries directly
// under one directory; the directory itself was already sent (and its
// NDX recorded) in an earlier chunk, except for the root chunk.
type IncrementalSender struct {
	Codec *Codec
	State *rsyncwire.NdxState

	nextNdx int32
}

func NewIncrementalSender(codec *Codec) *IncrementalSender {
	return &IncrementalSender{Codec: codec, State: &rsyncwire.NdxState{}}
}

// SendChunk writes one directory's worth of entries, each preceded by its
// assigned file-list index relative to the running NDX delta-coding
// state, then the end-of-chunk terminator. It returns the indexes it
// assigned, in order.
func (s *IncrementalSender) SendChunk(entries []*Entry) ([]int32, error) {
	ndxs := make([]int32, 0, len(entries))
	for _, e := range entries {
		ndx := s.nextNdx
		s.nextNdx++
		if err := rsyncwire.WriteNdx(s.Codec.Conn, s.State, ndx); err != nil {
			return nil, err
		}
		if err := s.Codec.EncodeEntry(e); err != nil {
			return nil, err
		}
		ndxs = append(ndxs, ndx)
	}
	if err := s.Codec.EndOfList(); err != nil {
		return nil, err
	}
	return ndxs, nil
}

// SendFlistEOF writes the FLIST_EOF sentinel marking the end of all
// incremental chunks (no more directories will be expanded).
func (s *IncrementalSender) SendFlistEOF() error {
	return rsyncwire.WriteNdxFlistEOF(s.Codec.Conn, s.State)
}

// IncrementalReceiver is the receive-side counterpart of
// IncrementalSender: it reads chunks of (ndx, entry) pairs until it sees
// either a chunk terminator or the FLIST_EOF sentinel.
type IncrementalReceiver struct {
	Codec *Codec
	State *rsyncwire.NdxState
}

func NewIncrementalReceiver(codec *Codec) *IncrementalReceiver {
	return &IncrementalReceiver{Codec: codec, State: &rsyncwire.NdxState{}}
}

// ChunkEntry pairs a decoded entry with its wire-assigned file-list
// index.
type ChunkEntry struct {
	Ndx   int32
	Entry *Entry
}

// RecvChunk reads entries until the zero-flags end-of-chunk terminator.
// done is true when the NDX read was the FLIST_EOF sentinel instead of a
// real entry index, in which case entries is empty.
func (r *IncrementalReceiver) RecvChunk() (entries []ChunkEntry, done bool, err error) {
	for {
		ndx, err := rsyncwire.ReadNdx(r.Codec.Conn, r.State)
		if err != nil {
			return nil, false, err
		}
		if ndx == rsyncwire.NdxFlistEOF {
			return entries, true, nil
		}
		if ndx == rsyncwire.NdxDone {
			// The zero-flags terminator byte decodes as NDX_DONE.
			return entries, false, nil
		}
		e, ok, err := r.Codec.DecodeEntry()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return entries, false, nil
		}
		entries = append(entries, ChunkEntry{Ndx: ndx, Entry: e})
	}
}
