// Package msg implements SysV message queues (spec.md §4.7): msgget/
// msgsnd/msgrcv/msgctl over a shared ipcns.Namespace, with a byte-budget
// FIFO and type-based selective receive.
//
// Grounded in original_source/kern/ipc.c's sysv_msg/msg_alloc/msg_free/
// sys_msgget/sys_msgsnd/sys_msgrcv/sys_msgctl. Waitqueues are replaced by
// sync.Cond, as in the sem package.
package msg

import (
	"context"
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/ipcns"
)

const (
	IpcCreat   = 01000
	IpcExcl    = 02000
	IpcNoWait  = 04000
	MsgNoError = 010000
	MsgExcept  = 020000
)

type buffer struct {
	mtype int64
	data  []byte
}

// Queue is one message queue.
type Queue struct {
	mu       sync.Mutex
	rcond    *sync.Cond
	wcond    *sync.Cond
	id       int32
	perm     defs.Perm
	msgs     []*buffer
	cbytes   int
	qbytes   int
	removed  bool
	refcount int32
	lspid    defs.Pid_t
	lrpid    defs.Pid_t
}

func (q *Queue) ID() int32        { return q.id }
func (q *Queue) Perm() *defs.Perm { return &q.perm }
func (q *Queue) Refs() *int32     { return &q.refcount }

// Namespace owns every live message queue in the system.
type Namespace struct {
	ns     *ipcns.Namespace
	limits config.MsgLimits
}

func NewNamespace(limits config.MsgLimits) *Namespace {
	return &Namespace{ns: ipcns.New(limits.MNI, 64), limits: limits}
}

// Get implements msgget.
func (n *Namespace) Get(key int32, flags int, cred defs.Cred_t) (int32, defs.Err_t) {
	assign := func(id int32) ipcns.Object {
		q := &Queue{
			id:     id,
			qbytes: n.limits.DefaultQBytes,
			perm: defs.Perm{
				Key: key, Uid: cred.Euid, Gid: cred.Egid,
				Cuid: cred.Euid, Cgid: cred.Egid, Mode: uint32(flags) & 0777,
			},
			refcount: 1,
		}
		q.rcond = sync.NewCond(&q.mu)
		q.wcond = sync.NewCond(&q.mu)
		return q
	}
	obj, created, err := n.ns.GetOrCreate(key, flags&IpcCreat != 0, flags&IpcExcl != 0, assign)
	if err != 0 {
		return 0, err
	}
	q := obj.(*Queue)
	if !created {
		q.mu.Lock()
		ok := q.perm.HasPerm(cred, defs.PermRead)
		q.mu.Unlock()
		if !ok {
			return 0, defs.PermissionDenied
		}
	}
	return q.ID(), 0
}

func (n *Namespace) lookup(msgid int32) (*Queue, defs.Err_t) {
	obj, ok := n.ns.Lookup(msgid)
	if !ok {
		return nil, defs.InvalidArgument
	}
	return obj.(*Queue), 0
}

// Send implements msgsnd: blocks (unless noWait) while the queue's byte
// budget is exhausted, then appends the message and wakes receivers.
func (n *Namespace) Send(ctx context.Context, msgid int32, mtype int64, data []byte, noWait bool, cred defs.Cred_t, pid defs.Pid_t) defs.Err_t {
	if mtype <= 0 {
		return defs.InvalidArgument
	}
	if len(data) > n.limits.MaxMsgSize {
		return defs.InvalidArgument
	}
	q, err := n.lookup(msgid)
	if err != 0 {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.removed {
		return defs.IdRemoved
	}
	if !q.perm.HasPerm(cred, defs.PermWrite) {
		return defs.PermissionDenied
	}
	for q.qbytes-q.cbytes < len(data) {
		if noWait {
			return defs.Again
		}
		if werr := condWaitCtx(ctx, q.wcond); werr != 0 {
			return werr
		}
		if q.removed {
			return defs.IdRemoved
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	q.msgs = append(q.msgs, &buffer{mtype: mtype, data: buf})
	q.cbytes += len(data)
	q.lspid = pid
	q.rcond.Broadcast()
	return 0
}

// selectBuf implements sys_msgrcv's matching rules, with the original's
// negative-msgtyp bug corrected: the original's `break` inside the
// TAILQ_FOREACH stops at the first candidate <= -msgtyp without ever
// comparing it to `best`, so it does not actually return the
// smallest-typed match it claims to (spec.md §10). This scans the whole
// queue and tracks the minimum.
func selectBuf(msgs []*buffer, msgtyp int64, except bool) int {
	switch {
	case msgtyp == 0:
		if len(msgs) == 0 {
			return -1
		}
		return 0
	case msgtyp > 0:
		for i, b := range msgs {
			if except {
				if b.mtype != msgtyp {
					return i
				}
			} else if b.mtype == msgtyp {
				return i
			}
		}
		return -1
	default:
		want := -msgtyp
		best := -1
		bestType := int64(0)
		for i, b := range msgs {
			if b.mtype <= want && (best == -1 || b.mtype < bestType) {
				best = i
				bestType = b.mtype
			}
		}
		return best
	}
}

// Recv implements msgrcv.
func (n *Namespace) Recv(ctx context.Context, msgid int32, msgtyp int64, maxSize int, noWait, noError, except bool, cred defs.Cred_t, pid defs.Pid_t) ([]byte, int64, defs.Err_t) {
	q, err := n.lookup(msgid)
	if err != 0 {
		return nil, 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.removed {
		return nil, 0, defs.IdRemoved
	}
	if !q.perm.HasPerm(cred, defs.PermRead) {
		return nil, 0, defs.PermissionDenied
	}

	var idx int
	for {
		idx = selectBuf(q.msgs, msgtyp, except)
		if idx >= 0 {
			break
		}
		if noWait {
			return nil, 0, defs.NoMsg
		}
		if werr := condWaitCtx(ctx, q.rcond); werr != 0 {
			return nil, 0, werr
		}
		if q.removed {
			return nil, 0, defs.IdRemoved
		}
	}

	buf := q.msgs[idx]
	data := buf.data
	if len(data) > maxSize {
		if !noError {
			return nil, 0, defs.TooBig
		}
		data = data[:maxSize]
	}
	q.msgs = append(q.msgs[:idx], q.msgs[idx+1:]...)
	q.cbytes -= len(buf.data)
	q.lrpid = pid
	q.wcond.Broadcast()

	out := make([]byte, len(data))
	copy(out, data)
	return out, buf.mtype, 0
}

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

// Stat implements msgctl(IPC_STAT).
type Stat struct {
	Perm    defs.Perm
	Qnum    int
	Cbytes  int
	Qbytes  int
	Lspid   defs.Pid_t
	Lrpid   defs.Pid_t
	Removed bool
}

func (n *Namespace) Stat(msgid int32, cred defs.Cred_t) (Stat, defs.Err_t) {
	q, err := n.lookup(msgid)
	if err != 0 {
		return Stat{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.perm.HasPerm(cred, defs.PermRead) {
		return Stat{}, defs.PermissionDenied
	}
	return Stat{
		Perm: q.perm, Qnum: len(q.msgs), Cbytes: q.cbytes, Qbytes: q.qbytes,
		Lspid: q.lspid, Lrpid: q.lrpid, Removed: q.removed,
	}, 0
}

// SetPerm implements msgctl(IPC_SET)'s uid/gid/mode fields, with the
// shared uid-instead-of-mode copy-paste bug corrected (spec.md §10).
// Unlike the original — whose IPC_SET handler assigns
// `msg->ds.msg_qbytes = msg->ds.msg_qbytes` and never actually applies
// the caller's requested value — qbytes here does propagate, clamped to
// AdminMaxQBytes (spec.md §11): a setter that silently no-ops is less
// useful than a config-bounded one.
func (n *Namespace) SetPerm(msgid int32, cred defs.Cred_t, uid, gid int, mode uint32, qbytes int) defs.Err_t {
	q, err := n.lookup(msgid)
	if err != 0 {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.perm.IsOwner(cred) {
		return defs.NotOwner
	}
	q.perm.Uid = uid
	q.perm.Gid = gid
	q.perm.Mode = (q.perm.Mode &^ 0777) | (mode & 0777)
	if qbytes > 0 {
		if qbytes > n.limits.AdminMaxQBytes {
			qbytes = n.limits.AdminMaxQBytes
		}
		q.qbytes = qbytes
		q.wcond.Broadcast()
	}
	return 0
}

// Remove implements msgctl(IPC_RMID): wakes every blocked sender and
// receiver with IdRemoved and deregisters the queue immediately.
func (n *Namespace) Remove(msgid int32, cred defs.Cred_t) defs.Err_t {
	q, err := n.lookup(msgid)
	if err != 0 {
		return err
	}
	q.mu.Lock()
	if !q.perm.IsOwner(cred) {
		q.mu.Unlock()
		return defs.NotOwner
	}
	q.removed = true
	key := q.perm.Key
	q.rcond.Broadcast()
	q.wcond.Broadcast()
	q.mu.Unlock()

	n.ns.Remove(q, key)
	return 0
}

// ListIDs returns the ids of every queue cred may read, in insertion
// order — the introspection stream msglist_read backs (spec.md §4.8).
func (n *Namespace) ListIDs(cred defs.Cred_t) []int32 {
	var ids []int32
	for _, obj := range n.ns.List() {
		if obj.Perm().HasPerm(cred, defs.PermRead) {
			ids = append(ids, obj.ID())
		}
	}
	return ids
}
