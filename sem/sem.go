// Package sem implements SysV semaphore sets (spec.md §4.6): semget/
// semop/semctl over a shared ipcns.Namespace, with transactional semop
// batches that roll back on the first operation that would block and
// goroutine-parked waiters woken by broadcast on every state change.
//
// Grounded in original_source/kern/ipc.c's sysv_sem/sem_alloc/sem_free/
// sys_semget/process_sops/rollback_sops/sys_semtimedop/sys_semctl. The
// original's waitq (a kernel scheduler primitive with ncnt/zcnt counters
// and waitq_wait_tail_mutex) is replaced by a sync.Cond associated with
// the set's own mutex — Go's scheduler plays the role the original's
// waitq_broadcast/waitq_wait_tail_mutex play directly, so parking a
// goroutine under the set's lock and broadcasting on every committed
// change is the idiomatic equivalent.
package sem

import (
	"context"
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/ipcns"
)

// Op mirrors struct sembuf: one operation against one semaphore in a
// set, applied atomically as part of a batch.
type Op struct {
	Num    int
	Delta  int16
	NoWait bool
	Undo   bool // accepted, not tracked (spec.md §11)
}

type semval struct {
	value uint16
	ncnt  int
	zcnt  int
	pid   defs.Pid_t
}

// Set is one semaphore set.
type Set struct {
	mu       sync.Mutex
	cond     *sync.Cond
	id       int32
	perm     defs.Perm
	values   []semval
	removed  bool
	refcount int32
}

func (s *Set) ID() int32        { return s.id }
func (s *Set) Perm() *defs.Perm { return &s.perm }
func (s *Set) Refs() *int32     { return &s.refcount }

// Namespace owns every live semaphore set in the system.
type Namespace struct {
	ns     *ipcns.Namespace
	limits config.SemLimits
}

func NewNamespace(limits config.SemLimits) *Namespace {
	return &Namespace{ns: ipcns.New(limits.MNI, 64), limits: limits}
}

// Get implements semget.
func (n *Namespace) Get(key int32, nsems int, flags int, cred defs.Cred_t) (int32, defs.Err_t) {
	if nsems < 0 || nsems > n.limits.MSL {
		return 0, defs.InvalidArgument
	}
	assign := func(id int32) ipcns.Object {
		s := &Set{
			id:     id,
			values: make([]semval, nsems),
			perm: defs.Perm{
				Key: key, Uid: cred.Euid, Gid: cred.Egid,
				Cuid: cred.Euid, Cgid: cred.Egid, Mode: uint32(flags) & 0777,
			},
			refcount: 1,
		}
		s.cond = sync.NewCond(&s.mu)
		return s
	}
	obj, created, err := n.ns.GetOrCreate(key, flags&IpcCreat != 0, flags&IpcExcl != 0, assign)
	if err != 0 {
		return 0, err
	}
	set := obj.(*Set)
	if !created {
		set.mu.Lock()
		ok := set.perm.HasPerm(cred, defs.PermRead)
		set.mu.Unlock()
		if !ok {
			return 0, defs.PermissionDenied
		}
	}
	return set.ID(), 0
}

func (n *Namespace) lookup(semid int32) (*Set, defs.Err_t) {
	obj, ok := n.ns.Lookup(semid)
	if !ok {
		return nil, defs.InvalidArgument
	}
	return obj.(*Set), 0
}

// processLocked applies every op in the batch, returning the index of
// the first op that would block (and EAGAIN) or the first op whose
// increment would overflow vmx, the configured SEMVMX (and ERANGE).
// Mirrors process_sops.
func processLocked(s *Set, ops []Op, vmx int) (int, defs.Err_t) {
	for i, op := range ops {
		v := &s.values[op.Num]
		switch {
		case op.Delta == 0:
			if v.value != 0 {
				return i, defs.Again
			}
		case op.Delta < 0:
			if int(v.value) < -int(op.Delta) {
				return i, defs.Again
			}
			v.value = uint16(int(v.value) + int(op.Delta))
		default:
			if int(op.Delta) > vmx-int(v.value) {
				return i, defs.RangeErr
			}
			v.value += uint16(op.Delta)
		}
	}
	return -1, 0
}

// rollbackLocked undoes the first n ops of the batch in reverse order,
// mirroring rollback_sops.
func rollbackLocked(s *Set, ops []Op, n int) {
	for i := n - 1; i >= 0; i-- {
		v := &s.values[ops[i].Num]
		v.value = uint16(int(v.value) - int(ops[i].Delta))
	}
}

// Op implements semop/semtimedop: apply ops as one atomic transaction,
// blocking (respecting ctx cancellation/timeout) when an operation
// can't proceed yet, per spec.md §4.6's rollback-on-block contract.
func (n *Namespace) Op(ctx context.Context, semid int32, ops []Op, cred defs.Cred_t, pid defs.Pid_t) defs.Err_t {
	if len(ops) == 0 {
		return defs.InvalidArgument
	}
	if len(ops) > n.limits.OPM {
		return defs.TooBig
	}
	set, err := n.lookup(semid)
	if err != 0 {
		return err
	}
	set.mu.Lock()
	defer set.mu.Unlock()

	if set.removed {
		return defs.IdRemoved
	}
	var want uint32
	for _, op := range ops {
		if op.Num < 0 || op.Num >= len(set.values) {
			return defs.EFBIG
		}
		if op.Delta != 0 {
			want |= defs.PermWrite
		} else {
			want |= defs.PermRead
		}
	}
	if !set.perm.HasPerm(cred, want) {
		return defs.PermissionDenied
	}

	for {
		blockedAt, perr := processLocked(set, ops, n.limits.VMX)
		if perr == 0 {
			for _, op := range ops {
				set.values[op.Num].pid = pid
			}
			set.cond.Broadcast()
			return 0
		}
		rollbackLocked(set, ops, blockedAt)
		if perr != defs.Again {
			return perr
		}
		if ops[blockedAt].NoWait {
			return defs.Again
		}
		if ops[blockedAt].Delta != 0 {
			set.values[ops[blockedAt].Num].ncnt++
		} else {
			set.values[ops[blockedAt].Num].zcnt++
		}
		waitErr := condWaitCtx(ctx, set.cond)
		if ops[blockedAt].Delta != 0 {
			set.values[ops[blockedAt].Num].ncnt--
		} else {
			set.values[ops[blockedAt].Num].zcnt--
		}
		if set.removed {
			return defs.IdRemoved
		}
		if waitErr != 0 {
			return waitErr
		}
	}
}

// condWaitCtx waits on cond (caller holds cond.L) until broadcast or
// ctx is done. On ctx cancellation it re-acquires cond.L (matching
// sync.Cond.Wait's contract) before returning.
func condWaitCtx(ctx context.Context, cond *sync.Cond) defs.Err_t {
	if ctx == nil || ctx.Done() == nil {
		cond.Wait()
		return 0
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-done:
		}
	}()
	cond.Wait()
	close(done)
	select {
	case <-ctx.Done():
		return defs.TimedOut
	default:
		return 0
	}
}

// Stat implements semctl(IPC_STAT).
type Stat struct {
	Perm    defs.Perm
	Nsems   int
	Removed bool
}

func (n *Namespace) Stat(semid int32, cred defs.Cred_t) (Stat, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return Stat{}, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return Stat{}, defs.PermissionDenied
	}
	return Stat{Perm: set.perm, Nsems: len(set.values), Removed: set.removed}, 0
}

// GetVal/GetAll/GetNcnt/GetZcnt/GetPid implement semctl's read commands.
func (n *Namespace) GetVal(semid int32, num int, cred defs.Cred_t) (int, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return 0, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return 0, defs.PermissionDenied
	}
	if num < 0 || num >= len(set.values) {
		return 0, defs.InvalidArgument
	}
	return int(set.values[num].value), 0
}

func (n *Namespace) GetAll(semid int32, cred defs.Cred_t) ([]uint16, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return nil, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return nil, defs.PermissionDenied
	}
	out := make([]uint16, len(set.values))
	for i, v := range set.values {
		out[i] = v.value
	}
	return out, 0
}

func (n *Namespace) GetNcnt(semid int32, num int, cred defs.Cred_t) (int, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return 0, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return 0, defs.PermissionDenied
	}
	if num < 0 || num >= len(set.values) {
		return 0, defs.InvalidArgument
	}
	return set.values[num].ncnt, 0
}

func (n *Namespace) GetZcnt(semid int32, num int, cred defs.Cred_t) (int, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return 0, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return 0, defs.PermissionDenied
	}
	if num < 0 || num >= len(set.values) {
		return 0, defs.InvalidArgument
	}
	return set.values[num].zcnt, 0
}

func (n *Namespace) GetPid(semid int32, num int, cred defs.Cred_t) (defs.Pid_t, defs.Err_t) {
	set, err := n.lookup(semid)
	if err != 0 {
		return 0, err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermRead) {
		return 0, defs.PermissionDenied
	}
	if num < 0 || num >= len(set.values) {
		return 0, defs.InvalidArgument
	}
	return set.values[num].pid, 0
}

// SetVal/SetAll implement semctl's write commands; both broadcast so
// blocked Op callers re-check their condition.
func (n *Namespace) SetVal(semid int32, num, val int, cred defs.Cred_t) defs.Err_t {
	if val < 0 || val > n.limits.VMX {
		return defs.InvalidArgument
	}
	set, err := n.lookup(semid)
	if err != 0 {
		return err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermWrite) {
		return defs.PermissionDenied
	}
	if num < 0 || num >= len(set.values) {
		return defs.InvalidArgument
	}
	set.values[num].value = uint16(val)
	set.cond.Broadcast()
	return 0
}

func (n *Namespace) SetAll(semid int32, vals []uint16, cred defs.Cred_t) defs.Err_t {
	set, err := n.lookup(semid)
	if err != 0 {
		return err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.HasPerm(cred, defs.PermWrite) {
		return defs.PermissionDenied
	}
	if len(vals) != len(set.values) {
		return defs.InvalidArgument
	}
	changed := false
	for i, v := range vals {
		if set.values[i].value != v {
			set.values[i].value = v
			changed = true
		}
	}
	if changed {
		set.cond.Broadcast()
	}
	return 0
}

// SetPerm implements semctl(IPC_SET); the original has the same
// uid-instead-of-mode copy-paste bug noted for shm (spec.md §10),
// corrected here.
func (n *Namespace) SetPerm(semid int32, cred defs.Cred_t, uid, gid int, mode uint32) defs.Err_t {
	set, err := n.lookup(semid)
	if err != 0 {
		return err
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.perm.IsOwner(cred) {
		return defs.NotOwner
	}
	set.perm.Uid = uid
	set.perm.Gid = gid
	set.perm.Mode = (set.perm.Mode &^ 0777) | (mode & 0777)
	return 0
}

// Remove implements semctl(IPC_RMID): wakes every blocked Op with
// IdRemoved and deregisters the set immediately — unlike shm, a
// semaphore set has no outstanding-mapping refcount keeping it alive,
// so removal is synchronous.
func (n *Namespace) Remove(semid int32, cred defs.Cred_t) defs.Err_t {
	set, err := n.lookup(semid)
	if err != 0 {
		return err
	}
	set.mu.Lock()
	if !set.perm.IsOwner(cred) {
		set.mu.Unlock()
		return defs.NotOwner
	}
	set.removed = true
	key := set.perm.Key
	set.cond.Broadcast()
	set.mu.Unlock()

	n.ns.Remove(set, key)
	return 0
}

// ListIDs returns the ids of every set cred may read, in insertion
// order — the introspection stream semlist_read backs (spec.md §4.8).
func (n *Namespace) ListIDs(cred defs.Cred_t) []int32 {
	var ids []int32
	for _, obj := range n.ns.List() {
		if obj.Perm().HasPerm(cred, defs.PermRead) {
			ids = append(ids, obj.ID())
		}
	}
	return ids
}

const (
	IpcCreat = 01000
	IpcExcl  = 02000
)
