package defs

/// Err_t is a kernel internal error code. Zero means success; negative
/// values name a specific failure, mirroring errno but kept negative so a
/// caller can never mistake an error for a valid return value.
type Err_t int

const (
	EPERM        Err_t = -1
	ENOENT       Err_t = -2
	ESRCH        Err_t = -3
	EINTR        Err_t = -4
	EIO          Err_t = -5
	EFAULT       Err_t = -14
	EEXIST       Err_t = -17
	ENOTDIR      Err_t = -20
	EISDIR       Err_t = -21
	EINVAL       Err_t = -22
	EMFILE       Err_t = -24
	ENOSPC       Err_t = -28
	ENAMETOOLONG Err_t = -36
	ENOSYS       Err_t = -38
	ENOMEM       Err_t = -12
	ENOHEAP      Err_t = -100
	EBADF        Err_t = -9
	E2BIG        Err_t = -7
	ENOEXEC      Err_t = -8
	ECHILD       Err_t = -10
)

/// Tid_t identifies a thread/process. The zero value is never valid; the
/// scheduler hands out positive ids starting at 1.
type Tid_t int

/// TID_ERROR is returned in place of a Tid_t when thread creation or
/// process load fails.
const TID_ERROR Tid_t = -1
