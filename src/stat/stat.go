// Package stat mirrors a file's metadata, grounded on biscuit/src/stat's
// Stat_t; no command-line action or syscall uses it. That struct
// also carried a device id, an rdev, a block count and mtime seconds/
// nanoseconds for its on-disk journaled filesystem; this kernel's fs
// package has no inode numbers, no device-special files and no
// timestamps, so only the fields a flat in-memory file actually has —
// size and mode — survive.
package stat

/// Stat_t holds one file's reportable metadata.
type Stat_t struct {
	_mode uint
	_size uint
}

/// Wmode records the file mode, the equivalent of biscuit/src/stat's Wmode.
func (st *Stat_t) Wmode(v uint) {
	st._mode = v
}

/// Wsize records the file size, the equivalent of biscuit/src/stat's Wsize.
func (st *Stat_t) Wsize(v uint) {
	st._size = v
}

/// Mode returns the stored mode value.
func (st *Stat_t) Mode() uint {
	return st._mode
}

/// Size returns the stored size.
func (st *Stat_t) Size() uint {
	return st._size
}

// File mode bits this kernel distinguishes: plain data files and the
// pseudo-devices exposed through defs.Device (console, /dev/null, stat,
// prof).
const (
	S_IFREG = 1 << iota
	S_IFDEV
)
