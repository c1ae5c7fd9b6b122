// Package introspect exposes the read-only text streams a running kernel
// core would publish under a sysfs-like node: per-namespace id lists, the
// compiled-in IPC limits, and a physical-memory summary (spec.md §4.8).
//
// Grounded in original_source/kern/ipc.c's shmlist_read/semlist_read/
// msglist_read/limits_read and original_source/mem/space.c's
// pm_dumpinfo/meminfo_read. Those are all `struct file_op.read` callbacks
// writing into a `struct uio`; here each is just a method returning the
// formatted []byte a caller can hand to whatever transport backs its own
// read(2) equivalent.
package introspect

import (
	"bytes"
	"fmt"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/msg"
	"github.com/susmicrosystems/Uwuntu-sub002/sem"
	"github.com/susmicrosystems/Uwuntu-sub002/shm"
)

// Streams bundles the namespaces and allocator a core's introspection node
// reads from. Nothing here mutates IPC or VM state.
type Streams struct {
	Shm    *shm.Namespace
	Sem    *sem.Namespace
	Msg    *msg.Namespace
	Frames *mem.Allocator
	Limits config.Limits
}

func New(shmNs *shm.Namespace, semNs *sem.Namespace, msgNs *msg.Namespace, frames *mem.Allocator, limits config.Limits) *Streams {
	return &Streams{Shm: shmNs, Sem: semNs, Msg: msgNs, Frames: frames, Limits: limits}
}

func idList(ids []int32) []byte {
	var buf bytes.Buffer
	for _, id := range ids {
		fmt.Fprintf(&buf, "%d\n", id)
	}
	return buf.Bytes()
}

// ShmList backs shmlist_read: one shmid per line, filtered to the segments
// cred may read.
func (s *Streams) ShmList(cred defs.Cred_t) []byte { return idList(s.Shm.ListIDs(cred)) }

// SemList backs semlist_read.
func (s *Streams) SemList(cred defs.Cred_t) []byte { return idList(s.Sem.ListIDs(cred)) }

// MsgList backs msglist_read.
func (s *Streams) MsgList(cred defs.Cred_t) []byte { return idList(s.Msg.ListIDs(cred)) }

// LimitsDump backs limits_read: every compiled-in IPC ceiling, one per line as
// "NAME value". Names follow spec.md §4.8's canonical constant list rather
// than the original's SHMMNI/SEMMNS-style names; PAGE_SIZE (mem.PGSIZE)
// is included since every other stream here reports frame-sized quantities.
func (s *Streams) LimitsDump() []byte {
	var buf bytes.Buffer
	l := s.Limits
	line := func(name string, v int) { fmt.Fprintf(&buf, "%s %d\n", name, v) }
	line("SHM_MAX_SEGS", l.Shm.MNI)
	line("SHM_MIN", int(l.Shm.Min))
	line("SHM_MAX", int(l.Shm.Max))
	line("SEM_OPMAX", l.Sem.OPM)
	line("SEM_MAX_PER_SET", l.Sem.MSL)
	line("SEM_MAX_SETS", l.Sem.MNI)
	line("SEM_VMAX", l.Sem.VMX)
	line("MSG_MAX_SETS", l.Msg.MNI)
	line("MSG_MAX", l.Msg.MaxMsgSize)
	line("MSG_QBYTES_DEFAULT", l.Msg.DefaultQBytes)
	line("PAGE_SIZE", mem.PGSIZE)
	return buf.Bytes()
}

// memFmt renders n bytes with a trailing human-readable unit, a reduced
// version of pm_dumpinfo's mem_fmt ladder (binary units, one decimal place,
// no petabyte tier — frame counts in this module never approach one).
func memFmt(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for n/div >= unit && exp < 3 {
		div *= unit
		exp++
	}
	suffix := "KMGT"[exp : exp+1]
	return fmt.Sprintf("%.1f %siB", float64(n)/float64(div), suffix)
}

// MeminfoStream reports the physical frame arena's usage, generalizing
// pm_dumpinfo's pool-walk to this module's single mem.Allocator: there is
// no separate "reserved/admin" pool here (spec.md §9 supplemental), so that
// line always reads zero.
func (s *Streams) MeminfoStream() []byte {
	var buf bytes.Buffer
	total := s.Frames.Total()
	free := s.Frames.Free()
	used := total - free
	usedBytes := uint64(used) * uint64(mem.PGSIZE)
	totalBytes := uint64(total) * uint64(mem.PGSIZE)
	fmt.Fprintf(&buf, "PhysicalUsed:     0x%016x (%s)\n", usedBytes, memFmt(usedBytes))
	fmt.Fprintf(&buf, "PhysicalSize:     0x%016x (%s)\n", totalBytes, memFmt(totalBytes))
	fmt.Fprintf(&buf, "PhysicalReserved: 0x%016x (%s)\n", uint64(0), memFmt(0))
	return buf.Bytes()
}
