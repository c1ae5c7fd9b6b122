// Package memfile provides a minimal in-memory vm.File, standing in for
// the real filesystem module spec.md §1 places out of scope. It is the
// narrow Filesystem external interface implementation (spec.md §6) the
// ELF loader and file-backed zones need to run without a real
// filesystem.
package memfile

import (
	"sync/atomic"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
)

// File is a byte slice addressed by positioned sequential reads, with
// vm.File's reference counting.
type File struct {
	data []byte
	refs int32
}

// New wraps data (not copied) as a vm.File.
func New(data []byte) *File {
	return &File{data: data, refs: 1}
}

func (f *File) Readseq(buf []byte, off int64) (int, defs.Err_t) {
	if off < 0 || off > int64(len(f.data)) {
		return 0, 0
	}
	n := copy(buf, f.data[off:])
	return n, 0
}

func (f *File) Ref() { atomic.AddInt32(&f.refs, 1) }

func (f *File) Free() {
	if atomic.AddInt32(&f.refs, -1) == 0 {
		f.data = nil
	}
}

// Size reports the file's length, for loaders that need to bound reads.
func (f *File) Size() int64 { return int64(len(f.data)) }
