package memfile

import "testing"

func TestReadseqReturnsBytesAtOffset(t *testing.T) {
	f := New([]byte("hello world"))
	buf := make([]byte, 5)

	n, err := f.Readseq(buf, 6)
	if err != 0 {
		t.Fatalf("Readseq: %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Fatalf("Readseq(off=6) = %q, want %q", got, "world")
	}
}

func TestReadseqShortReadNearEOF(t *testing.T) {
	f := New([]byte("hello"))
	buf := make([]byte, 10)

	n, err := f.Readseq(buf, 3)
	if err != 0 {
		t.Fatalf("Readseq: %v", err)
	}
	if n != 2 || string(buf[:n]) != "lo" {
		t.Fatalf("Readseq(off=3) = %q (n=%d), want %q (n=2)", buf[:n], n, "lo")
	}
}

func TestReadseqAtExactEOFReturnsZero(t *testing.T) {
	f := New([]byte("hi"))
	buf := make([]byte, 4)

	n, err := f.Readseq(buf, 2)
	if err != 0 {
		t.Fatalf("Readseq: %v", err)
	}
	if n != 0 {
		t.Fatalf("Readseq(off=len) = %d bytes, want 0", n)
	}
}

func TestFreeClearsDataOnLastRef(t *testing.T) {
	f := New([]byte("data"))
	f.Ref()
	f.Free()
	if f.data == nil {
		t.Fatal("data cleared while a reference is still outstanding")
	}
	f.Free()
	if f.data != nil {
		t.Fatal("data not cleared after the last reference was dropped")
	}
}

func TestSizeReportsLength(t *testing.T) {
	f := New([]byte("0123456789"))
	if f.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", f.Size())
	}
}
