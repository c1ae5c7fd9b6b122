package ipcns

import (
	"testing"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
)

type fakeObj struct {
	id   int32
	perm defs.Perm
	refs int32
}

func (f *fakeObj) ID() int32          { return f.id }
func (f *fakeObj) Perm() *defs.Perm   { return &f.perm }
func (f *fakeObj) Refs() *int32       { return &f.refs }

func TestGetOrCreatePrivateAlwaysCreates(t *testing.T) {
	ns := New(8, 4)
	var n int
	mk := func(id int32) Object { n++; return &fakeObj{id: id} }

	o1, created, err := ns.GetOrCreate(IPCPrivate, true, false, mk)
	if err != 0 || !created {
		t.Fatalf("expected created, got created=%v err=%v", created, err)
	}
	o2, created, err := ns.GetOrCreate(IPCPrivate, true, false, mk)
	if err != 0 || !created {
		t.Fatalf("expected second create, got created=%v err=%v", created, err)
	}
	if o1.ID() == o2.ID() {
		t.Fatalf("expected distinct ids for two IPC_PRIVATE creates")
	}
}

func TestGetOrCreateKeyLookupAndExcl(t *testing.T) {
	ns := New(8, 4)
	mk := func(id int32) Object { return &fakeObj{id: id} }

	o1, created, err := ns.GetOrCreate(42, true, false, mk)
	if err != 0 || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	o2, created, err := ns.GetOrCreate(42, true, false, mk)
	if err != 0 || created {
		t.Fatalf("expected lookup hit, got created=%v err=%v", created, err)
	}
	if o1.ID() != o2.ID() {
		t.Fatalf("expected same object for same key")
	}
	if _, _, err := ns.GetOrCreate(42, true, true, mk); err != defs.Exists {
		t.Fatalf("expected EEXIST for CREAT|EXCL on existing key, got %v", err)
	}
	if _, _, err := ns.GetOrCreate(99, false, false, mk); err != defs.NoEntry {
		t.Fatalf("expected ENOENT for missing key without CREAT, got %v", err)
	}
}

func TestInsertRespectsCapacity(t *testing.T) {
	ns := New(1, 4)
	mk := func(id int32) Object { return &fakeObj{id: id} }
	if _, err := ns.Insert(IPCPrivate, mk); err != 0 {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := ns.Insert(IPCPrivate, mk); err != defs.ENOSPC {
		t.Fatalf("expected ENOSPC at capacity, got %v", err)
	}
}

func TestRemoveDropsFromListAndIndexes(t *testing.T) {
	ns := New(8, 4)
	mk := func(id int32) Object { return &fakeObj{id: id} }
	obj, err := ns.Insert(7, mk)
	if err != 0 {
		t.Fatalf("insert: %v", err)
	}
	ns.Remove(obj, 7)
	if _, ok := ns.Lookup(obj.ID()); ok {
		t.Fatalf("expected id removed")
	}
	if _, ok := ns.LookupKey(7); ok {
		t.Fatalf("expected key removed")
	}
	if ns.Count() != 0 {
		t.Fatalf("expected empty list after remove, got %d", ns.Count())
	}
}
