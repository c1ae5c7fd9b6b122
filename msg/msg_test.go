package msg

import (
	"context"
	"testing"
	"time"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
)

func TestSendRecvFIFO(t *testing.T) {
	ns := NewNamespace(config.Default().Msg)
	cred := defs.Cred_t{Euid: 1, Egid: 1}

	id, err := ns.Get(1, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if err := ns.Send(context.Background(), id, 1, []byte("first"), false, cred, 100); err != 0 {
		t.Fatalf("Send 1: %v", err)
	}
	if err := ns.Send(context.Background(), id, 2, []byte("second"), false, cred, 100); err != 0 {
		t.Fatalf("Send 2: %v", err)
	}

	data, mtype, err := ns.Recv(context.Background(), id, 0, 64, false, false, false, cred, 101)
	if err != 0 {
		t.Fatalf("Recv: %v", err)
	}
	if mtype != 1 || string(data) != "first" {
		t.Fatalf("expected FIFO order, got mtype=%d data=%q", mtype, data)
	}
}

func TestRecvSelectsSmallestMatchingTypeForNegativeMsgtyp(t *testing.T) {
	ns := NewNamespace(config.Default().Msg)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	// Enqueue out of type order: 5, then 2, then 8. A request for
	// msgtyp=-6 should return the smallest type <= 6, i.e. 2, not the
	// first one encountered (which is the original's bug).
	ns.Send(context.Background(), id, 5, []byte("five"), false, cred, 1)
	ns.Send(context.Background(), id, 2, []byte("two"), false, cred, 1)
	ns.Send(context.Background(), id, 8, []byte("eight"), false, cred, 1)

	data, mtype, err := ns.Recv(context.Background(), id, -6, 64, false, false, false, cred, 1)
	if err != 0 {
		t.Fatalf("Recv: %v", err)
	}
	if mtype != 2 || string(data) != "two" {
		t.Fatalf("expected smallest matching type 2, got mtype=%d data=%q", mtype, data)
	}
}

func TestRecvExceptSkipsMatchingType(t *testing.T) {
	ns := NewNamespace(config.Default().Msg)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	ns.Send(context.Background(), id, 3, []byte("three"), false, cred, 1)
	ns.Send(context.Background(), id, 4, []byte("four"), false, cred, 1)

	data, mtype, err := ns.Recv(context.Background(), id, 3, 64, false, false, true, cred, 1)
	if err != 0 {
		t.Fatalf("Recv: %v", err)
	}
	if mtype != 4 || string(data) != "four" {
		t.Fatalf("expected MSG_EXCEPT to skip type 3, got mtype=%d data=%q", mtype, data)
	}
}

func TestSendBlocksOnFullQueueThenWakesOnRecv(t *testing.T) {
	limits := config.Default().Msg
	limits.DefaultQBytes = 4
	ns := NewNamespace(limits)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if err := ns.Send(context.Background(), id, 1, []byte("abcd"), false, cred, 1); err != 0 {
		t.Fatalf("Send 1: %v", err)
	}

	done := make(chan defs.Err_t, 1)
	go func() {
		done <- ns.Send(context.Background(), id, 2, []byte("e"), false, cred, 1)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("expected second send to block on full byte budget")
	default:
	}

	if _, _, err := ns.Recv(context.Background(), id, 0, 64, false, false, false, cred, 1); err != 0 {
		t.Fatalf("Recv: %v", err)
	}

	select {
	case err := <-done:
		if err != 0 {
			t.Fatalf("expected blocked send to succeed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send did not wake up after Recv freed budget")
	}
}

func TestRecvNoWaitReturnsNoMsgOnEmptyQueue(t *testing.T) {
	ns := NewNamespace(config.Default().Msg)
	cred := defs.Cred_t{Euid: 1}
	id, err := ns.Get(0, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if _, _, err := ns.Recv(context.Background(), id, 0, 64, true, false, false, cred, 1); err != defs.NoMsg {
		t.Fatalf("expected ENOMSG, got %v", err)
	}
}

func TestRemoveWakesBlockedRecv(t *testing.T) {
	limits := config.Default().Msg
	limits.DefaultQBytes = 1
	ns := NewNamespace(limits)
	cred := defs.Cred_t{Euid: 0}
	id, err := ns.Get(0, IpcCreat|0600, cred)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}

	recvDone := make(chan defs.Err_t, 1)
	go func() {
		_, _, err := ns.Recv(context.Background(), id, 0, 64, false, false, false, cred, 1)
		recvDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := ns.Remove(id, cred); err != 0 {
		t.Fatalf("Remove: %v", err)
	}

	select {
	case err := <-recvDone:
		if err != defs.IdRemoved {
			t.Fatalf("expected IdRemoved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Recv did not wake up after Remove")
	}
}

func TestGetExclOnExistingKeyFails(t *testing.T) {
	ns := NewNamespace(config.Default().Msg)
	cred := defs.Cred_t{Euid: 1}

	if _, err := ns.Get(9, IpcCreat|0600, cred); err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if _, err := ns.Get(9, IpcCreat|IpcExcl|0600, cred); err != defs.Exists {
		t.Fatalf("expected EEXIST, got %v", err)
	}
}
