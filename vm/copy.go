package vm

import (
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
)

// Peek and Poke cross the user/kernel boundary a syscall argument or the
// ELF loader's relocation pass needs: a positioned read/write against an
// AddressSpace's mapped pages, faulting each page in as it goes. Mirrors
// original_source/mem/space.c's vm_copyin/vm_copyout.
func (as *AddressSpace) Peek(addr uintptr, buf []byte) defs.Err_t {
	return as.walk(addr, len(buf), ProtRead, func(frame mem.Pa_t, faddr uintptr, dst []byte) {
		copy(dst, as.frames.Bytes(frame)[faddr:])
	}, buf)
}

func (as *AddressSpace) Poke(addr uintptr, data []byte) defs.Err_t {
	return as.walk(addr, len(data), ProtWrite, func(frame mem.Pa_t, faddr uintptr, src []byte) {
		copy(as.frames.Bytes(frame)[faddr:], src)
	}, data)
}

// walk splits [addr, addr+len(buf)) across page boundaries, faulting in
// and translating each page, and invokes xfer with the frame, the
// within-page offset to start at, and the slice of buf covered by that
// page.
func (as *AddressSpace) walk(addr uintptr, n int, access Prot, xfer func(frame mem.Pa_t, faddr uintptr, chunk []byte), buf []byte) defs.Err_t {
	remaining := n
	cur := addr
	off := 0
	for remaining > 0 {
		pa := pageAlign(cur)
		if err := as.HandlePageFault(pa, access); err != 0 {
			return err
		}
		as.LockSpace()
		frame, err := as.mmu.Translate(as, pa)
		as.UnlockSpace()
		if err != 0 {
			return err
		}
		faddr := cur - pa
		chunk := uintptr(mem.PGSIZE) - faddr
		if chunk > uintptr(remaining) {
			chunk = uintptr(remaining)
		}
		xfer(frame, faddr, buf[off:off+int(chunk)])
		cur += chunk
		off += int(chunk)
		remaining -= int(chunk)
	}
	return 0
}
