// Package rsyncstats carries the end-of-transfer summary counters both the
// sender and receiver accumulate and that cmd/ entry points print as
// rsync's familiar "sent X bytes  received Y bytes" footer.
package rsyncstats

import "fmt"

// TransferStats summarizes one completed session.
type TransferStats struct {
	Read    int64 // bytes read from the peer (protocol overhead + data)
	Written int64 // bytes written to the peer

	TotalFileSize int64 // sum of the sizes of all regular files in the file list
	LiteralData   int64 // bytes of literal (non-matched) file data sent
	MatchedData   int64 // bytes reconstructed from basis-file matches

	FileCount int // entries in the file list, including directories
}

func (s *TransferStats) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("sent %d bytes  received %d bytes  total size %d",
		s.Written, s.Read, s.TotalFileSize)
}
