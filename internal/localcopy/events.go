package localcopy

// ProgressEvent is the local-copy analogue of spec.md §6.4's
// on_file_transferred callback; Executor.OnEvent already carries richer
// per-action detail, so this is the trimmed view callers wire up when
// they only care about completed file transfers (a progress bar, say).
type ProgressEvent struct {
	RelPath        string
	FileBytes      int64
	TotalFileBytes int64
	FilesDone      int
	TotalFiles     int
}

// ProgressFunc adapts Executor.OnEvent into the narrower per-file
// callback shape, firing only for committed regular-file copies.
func ProgressFunc(total int, fn func(ProgressEvent)) func(Event) {
	done := 0
	return func(ev Event) {
		if ev.Action != ActionCopied {
			return
		}
		done++
		fn(ProgressEvent{
			RelPath:    ev.Path,
			FileBytes:  ev.Bytes,
			FilesDone:  done,
			TotalFiles: total,
		})
	}
}
