// Package ipcns implements the generic bookkeeping shared by every SysV
// IPC kind (spec.md §4.4): an id-hash table, a key-hash table, an
// insertion-ordered list, a namespace mutex, and the pseudo-random id
// allocator. shm, sem and msg each embed a Namespace and supply the
// per-kind allocation/teardown closures.
//
// Grounded in original_source/kern/ipc.c: shms/shms_keys/shms_list plus
// shms_mutex are exactly this shape for shm (and are duplicated
// verbatim, modulo struct tag, for sem and msg); alloc_ipcid/ipc_hash is
// ported directly. The teacher's hashtable package supplies the
// lock-free-read id/key indexes instead of ipc.c's TAILQ chains, since a
// Go slice-backed list plus two hashtable.Hashtable_t indexes is the
// idiomatic replacement for "array of hash buckets" in this codebase.
package ipcns

import (
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/hashtable"
)

// Object is the contract every SysV IPC object (shm segment, semaphore
// set, message queue) satisfies so Namespace can manage it generically.
type Object interface {
	ID() int32
	Perm() *defs.Perm
	Refs() *int32
}

// Namespace is one SysV IPC kind's registry (all shm segments, all
// semaphore sets, or all message queues in the system).
type Namespace struct {
	mu      sync.Mutex
	ids     *hashtable.Hashtable_t // int32 id -> Object
	keys    *hashtable.Hashtable_t // int32 key -> Object (key != IPC_PRIVATE only)
	list    []Object
	seq     uint32
	maxCnt  int
	htBkts  int
}

// IPCPrivate is the SysV IPC_PRIVATE key: callers requesting it always
// get a freshly allocated object, never a lookup hit.
const IPCPrivate int32 = 0

// New creates an empty namespace. maxCount bounds the number of live
// objects (SHMMNI/SEMMNI/MSGMNI in the original); buckets sizes the two
// hash tables.
func New(maxCount, buckets int) *Namespace {
	return &Namespace{
		ids:    hashtable.MkHash(buckets),
		keys:   hashtable.MkHash(buckets),
		maxCnt: maxCount,
		htBkts: buckets,
	}
}

// ipcHash is alloc_ipcid's mixing function (ipc.c): two rounds of
// Murmur-style xor-shift-multiply and a final xor-shift, masked to 31 bits
// so ids stay representable as a non-negative int.
func ipcHash(seq uint32) uint32 {
	seq = ((seq >> 16) ^ seq) * 0x45D9F3B
	seq = ((seq >> 16) ^ seq) * 0x45D9F3B
	return ((seq >> 16) ^ seq) & 0x7FFFFFFF
}

// Lookup returns the object registered under id, or (nil, false).
func (ns *Namespace) Lookup(id int32) (Object, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	v, ok := ns.ids.Get(id)
	if !ok {
		return nil, false
	}
	return v.(Object), true
}

// LookupKey returns the object registered under a non-private key.
func (ns *Namespace) LookupKey(key int32) (Object, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	v, ok := ns.keys.Get(key)
	if !ok {
		return nil, false
	}
	return v.(Object), true
}

// Count reports the number of live objects.
func (ns *Namespace) Count() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.list)
}

// allocIDLocked draws a fresh id by repeatedly hashing the namespace's
// monotonic sequence counter until a value not already present in the
// id table turns up, mirroring alloc_ipcid. Must be called with the
// namespace already locked by the caller's Insert so the id cannot be
// raced onto twice.
func (ns *Namespace) allocIDLocked() int32 {
	for {
		ns.seq++
		id := int32(ipcHash(ns.seq))
		if _, ok := ns.ids.Get(id); !ok {
			return id
		}
	}
}

// Insert reserves a fresh id for obj, registers it in both hash tables
// (the key table only when key != IPCPrivate) and appends it to the
// list. Returns defs.ENOSPC if the namespace is at maxCount.
func (ns *Namespace) Insert(key int32, assign func(id int32) Object) (Object, defs.Err_t) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.insertLocked(key, assign)
}

func (ns *Namespace) insertLocked(key int32, assign func(id int32) Object) (Object, defs.Err_t) {
	if len(ns.list) >= ns.maxCnt {
		return nil, defs.ENOSPC
	}
	id := ns.allocIDLocked()
	obj := assign(id)
	ns.ids.Set(id, obj)
	if key != IPCPrivate {
		ns.keys.Set(key, obj)
	}
	ns.list = append(ns.list, obj)
	return obj, 0
}

// GetOrCreate implements the shmget/semget/msgget key-resolution table
// (spec.md §4.4 / §9's decision table, grounded in sys_shmget): IPC_PRIVATE
// always creates; a found key returns the existing object unless
// IPC_CREAT|IPC_EXCL were both given (EEXIST); a missing key creates
// only if IPC_CREAT was given, else ENOENT.
func (ns *Namespace) GetOrCreate(key int32, create, excl bool, assign func(id int32) Object) (obj Object, created bool, err defs.Err_t) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if key == IPCPrivate {
		obj, err = ns.insertLocked(key, assign)
		return obj, err == 0, err
	}
	if v, ok := ns.keys.Get(key); ok {
		existing := v.(Object)
		if create && excl {
			return nil, false, defs.Exists
		}
		return existing, false, 0
	}
	if !create {
		return nil, false, defs.NoEntry
	}
	obj, err = ns.insertLocked(key, assign)
	return obj, err == 0, err
}

// Remove deregisters obj from both hash tables and the list. It does
// not free obj's resources — the caller (shm/sem/msg) decides when
// that's safe based on outstanding references (e.g. shm_nattch).
func (ns *Namespace) Remove(obj Object, key int32) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.ids.Del(obj.ID())
	if key != IPCPrivate {
		ns.keys.Del(key)
	}
	for i, o := range ns.list {
		if o == obj {
			ns.list = append(ns.list[:i], ns.list[i+1:]...)
			break
		}
	}
}

// List returns a snapshot of every live object, ordered by insertion —
// used by shmlist/semlist/msglist introspection and by *CTL(IPC_INFO).
func (ns *Namespace) List() []Object {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	out := make([]Object, len(ns.list))
	copy(out, ns.list)
	return out
}

// WithLock runs f with the namespace mutex held, for callers (shm.Get,
// sem.Get, msg.Get) that must check-then-insert atomically across a key
// lookup and an Insert.
func (ns *Namespace) WithLock(f func()) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	f()
}
