// Package defs holds types shared across every subsystem: the errno-style
// error value, process/thread identifiers and credentials.
package defs

import "fmt"

// Err_t is a POSIX-style error code. Zero means success; a non-zero value
// is a positive errno number, and every function in this module returns
// it as is, never negated.
type Err_t int

// Error implements the error interface so Err_t can be used with fmt and
// wrapped by higher-level errors when convenient.
func (e Err_t) Error() string {
	if e == 0 {
		return "success"
	}
	if s, ok := errnames[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// The numeric values match golang.org/x/sys/unix's E* constants for the
// names this module actually uses, so a caller comparing against the
// standard errno table sees familiar numbers rather than invented ones.
const (
	EPERM      Err_t = 1
	ENOENT     Err_t = 2
	EIO        Err_t = 5
	E2BIG      Err_t = 7
	EAGAIN     Err_t = 11
	ENOMEM     Err_t = 12
	EACCES     Err_t = 13
	EFAULT     Err_t = 14
	EEXIST     Err_t = 17
	EINVAL     Err_t = 22
	ENOSPC     Err_t = 28
	ERANGE     Err_t = 34
	ENAMETOOLONG Err_t = 36
	ENOSYS     Err_t = 38
	EIDRM      Err_t = 43
	ENOMSG     Err_t = 42
	EOVERFLOW  Err_t = 75
	ETIMEDOUT  Err_t = 110
	ENOEXEC    Err_t = 8
	EFBIG      Err_t = 27
)

var errnames = map[Err_t]string{
	EPERM:        "operation not permitted",
	ENOENT:       "no such entry",
	EIO:          "i/o error",
	E2BIG:        "argument too large",
	EAGAIN:       "resource temporarily unavailable",
	ENOMEM:       "out of memory",
	EACCES:       "permission denied",
	EFAULT:       "bad address",
	EEXIST:       "already exists",
	EINVAL:       "invalid argument",
	ENOSPC:       "no space left",
	ERANGE:       "result out of range",
	ENAMETOOLONG: "name too long",
	ENOSYS:       "function not implemented",
	EIDRM:        "identifier removed",
	ENOMSG:       "no message of desired type",
	EOVERFLOW:    "value too large",
	ETIMEDOUT:    "timed out",
	ENOEXEC:      "exec format error",
	EFBIG:        "file too large",
}

// Semantic aliases for the error kinds the component design names
// (spec §7); each maps onto the POSIX code a caller would actually see.
const (
	NotExecutable    = ENOEXEC
	OutOfMemory      = ENOMEM
	InvalidArgument  = EINVAL
	PermissionDenied = EACCES
	NotOwner         = EPERM
	NoEntry          = ENOENT
	Exists           = EEXIST
	IdRemoved        = EIDRM
	Again            = EAGAIN
	NoMsg            = ENOMSG
	TooBig           = E2BIG
	RangeErr         = ERANGE
	TimedOut         = ETIMEDOUT
	Fault            = EFAULT
	Overflow         = EOVERFLOW
)

// Pid_t identifies a process; Tid_t identifies a thread within one.
type Pid_t int
type Tid_t int

// Cred_t is the credential pair consulted by every UNIX permission check
// in ipcns, shm, sem and msg.
type Cred_t struct {
	Euid int
	Egid int
}

// IsRoot reports whether the credential bypasses permission checks.
func (c Cred_t) IsRoot() bool {
	return c.Euid == 0
}
