package sem

import (
	"context"
	"testing"
	"time"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
)

func TestGetCreateAndSetVal(t *testing.T) {
	ns := NewNamespace(config.Default().Sem)
	cred := defs.Cred_t{Euid: 1, Egid: 1}

	id, err := ns.Get(1, 3, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if err := ns.SetVal(id, 0, 5, cred); err != 0 {
		t.Fatalf("SetVal: %v", err)
	}
	val, err := ns.GetVal(id, 0, cred)
	if err != 0 || val != 5 {
		t.Fatalf("GetVal: val=%d err=%v", val, err)
	}
}

func TestOpBlocksThenWakesOnSetVal(t *testing.T) {
	ns := NewNamespace(config.Default().Sem)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, 1, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}

	done := make(chan defs.Err_t, 1)
	go func() {
		done <- ns.Op(context.Background(), id, []Op{{Num: 0, Delta: -1}}, cred, 1)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("expected decrement to block on zero-valued semaphore")
	default:
	}

	if err := ns.SetVal(id, 0, 1, cred); err != 0 {
		t.Fatalf("SetVal: %v", err)
	}

	select {
	case err := <-done:
		if err != 0 {
			t.Fatalf("expected Op to succeed after wakeup, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Op did not wake up after SetVal")
	}
}

func TestOpRollsBackOnPartialFailure(t *testing.T) {
	ns := NewNamespace(config.Default().Sem)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, 2, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if err := ns.SetVal(id, 0, 5, cred); err != 0 {
		t.Fatalf("SetVal: %v", err)
	}

	err = ns.Op(context.Background(), id, []Op{
		{Num: 0, Delta: -5, NoWait: true},
		{Num: 1, Delta: -1, NoWait: true},
	}, cred, 1)
	if err != defs.Again {
		t.Fatalf("expected EAGAIN, got %v", err)
	}
	val, _ := ns.GetVal(id, 0, cred)
	if val != 5 {
		t.Fatalf("expected rollback of first op, sem[0]=%d", val)
	}
}

func TestRemoveWakesBlockedOp(t *testing.T) {
	ns := NewNamespace(config.Default().Sem)
	cred := defs.Cred_t{Euid: 0}
	id, err := ns.Get(0, 1, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	done := make(chan defs.Err_t, 1)
	go func() {
		done <- ns.Op(context.Background(), id, []Op{{Num: 0, Delta: -1}}, cred, 1)
	}()
	time.Sleep(20 * time.Millisecond)
	if err := ns.Remove(id, cred); err != 0 {
		t.Fatalf("Remove: %v", err)
	}
	select {
	case err := <-done:
		if err != defs.IdRemoved {
			t.Fatalf("expected IdRemoved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Op did not wake up after Remove")
	}
}
