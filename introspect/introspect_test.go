package introspect

import (
	"strconv"
	"strings"
	"testing"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/msg"
	"github.com/susmicrosystems/Uwuntu-sub002/sem"
	"github.com/susmicrosystems/Uwuntu-sub002/shm"
)

func newTestStreams(t *testing.T) (*Streams, defs.Cred_t) {
	t.Helper()
	limits := config.Default()
	frames := mem.NewAllocator(64)
	streams := New(
		shm.NewNamespace(frames, limits.Shm),
		sem.NewNamespace(limits.Sem),
		msg.NewNamespace(limits.Msg),
		frames,
		limits,
	)
	return streams, defs.Cred_t{Euid: 1000, Egid: 1000}
}

func TestShmListFiltersByReadPermission(t *testing.T) {
	streams, owner := newTestStreams(t)
	id, err := streams.Shm.Get(42, 4096, shm.IpcCreat|0600, owner, 1)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	out := string(streams.ShmList(owner))
	wantLine := itoa(id) + "\n"
	if !strings.Contains(out, wantLine) {
		t.Fatalf("ShmList(owner) = %q, want to contain %q", out, wantLine)
	}

	stranger := defs.Cred_t{Euid: 2000, Egid: 2000}
	out = string(streams.ShmList(stranger))
	if strings.Contains(out, wantLine) {
		t.Fatalf("ShmList(stranger) = %q, should not contain owner-only segment %q", out, wantLine)
	}
}

func TestSemListAndMsgListReportCreatedIDs(t *testing.T) {
	streams, cred := newTestStreams(t)
	semID, err := streams.Sem.Get(7, 3, sem.IpcCreat|0666, cred)
	if err != 0 {
		t.Fatalf("sem Get: %v", err)
	}
	msgID, err := streams.Msg.Get(8, msg.IpcCreat|0666, cred)
	if err != 0 {
		t.Fatalf("msg Get: %v", err)
	}
	if !strings.Contains(string(streams.SemList(cred)), itoa(semID)) {
		t.Fatalf("SemList missing id %d", semID)
	}
	if !strings.Contains(string(streams.MsgList(cred)), itoa(msgID)) {
		t.Fatalf("MsgList missing id %d", msgID)
	}
}

func TestLimitsDumpReportsConfiguredValues(t *testing.T) {
	streams, _ := newTestStreams(t)
	out := string(streams.LimitsDump())
	for _, want := range []string{
		"SHM_MAX_SEGS 128",
		"SHM_MIN 1",
		"SEM_OPMAX 32",
		"SEM_MAX_SETS 128",
		"MSG_MAX 8192",
		"PAGE_SIZE 4096",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("LimitsDump() missing line %q, got:\n%s", want, out)
		}
	}
}

func TestMeminfoStreamReflectsAllocatorUsage(t *testing.T) {
	streams, _ := newTestStreams(t)
	before := string(streams.MeminfoStream())
	if !strings.Contains(before, "PhysicalUsed:     0x0000000000000000") {
		t.Fatalf("expected zero used frames before allocation, got:\n%s", before)
	}

	if _, ok := streams.Frames.RefpgNew(); !ok {
		t.Fatal("RefpgNew failed")
	}
	after := string(streams.MeminfoStream())
	if strings.Contains(after, "PhysicalUsed:     0x0000000000000000") {
		t.Fatalf("expected nonzero used frames after allocation, got:\n%s", after)
	}
	if !strings.Contains(after, "PhysicalSize:     0x0000000000040000") {
		t.Fatalf("expected total of 64 pages (0x40000 bytes), got:\n%s", after)
	}
}

func itoa(id int32) string { return strconv.Itoa(int(id)) }
