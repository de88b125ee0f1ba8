//go:build linux

package pager

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix's Mmap wrapper always lets the kernel choose the
// address (it passes addr=0), which cannot express either "reserve this
// exact range" or "commit exactly this page within an existing
// reservation". Both require MAP_FIXED with a caller-supplied address, so
// this file drops to the raw syscalls directly, the same style
// dsmmcken-dh-cli's uffd_linux.go uses for ioctls the higher-level
// wrapper doesn't cover.

func mmapFixed(addr uintptr, size int, prot, flags int) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(size),
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}

// reservePool reserves size bytes of address space with PROT_NONE and lets
// the kernel choose the base address, rather than hard-coding a fixed
// address the way virtualmem.c does (VIRTUALMEM_ADDR_START). Hard-coding an
// address is unsafe inside a Go process, which does not control where its
// own heap and goroutine stacks land. The reservation is never grown or
// shrunk; individual pages within it are committed and decommitted with
// MAP_FIXED mappings anchored to this base, the same reserve-then-commit
// idiom the Go runtime's own heap arena allocator uses.
func reservePool(size int) (base uintptr, err error) {
	ret, errno := mmapFixed(0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if errno != nil {
		return 0, fmt.Errorf("%w: reserve %d bytes: %v", ErrMapFailed, size, errno)
	}
	return ret, nil
}

// releasePool releases the entire reservation at teardown.
func releasePool(base uintptr, size int) error {
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, base, uintptr(size), 0); errno != 0 {
		return fmt.Errorf("%w: release pool at %#x: %v", ErrMapFailed, base, errno)
	}
	return nil
}

// commitPage replaces the PROT_NONE placeholder at addr with a fresh
// read-write anonymous mapping, landing at exactly addr (MAP_FIXED). Any
// deviation from the requested address is a mapping failure, matching
// map_page's "the mapping must land at the requested address; any
// deviation is fatal".
func commitPage(addr uintptr, size int) error {
	got, errno := mmapFixed(addr, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED)
	if errno != nil {
		return fmt.Errorf("%w: commit page at %#x: %v", ErrMapFailed, addr, errno)
	}
	if got != addr {
		return fmt.Errorf("%w: commit page landed at %#x, wanted %#x", ErrMapFailed, got, addr)
	}
	return nil
}

// decommitPage re-establishes the PROT_NONE placeholder over a single
// page, the MAP_FIXED counterpart to commitPage. This is the Go analogue
// of unmap_page's "remove the mapping": the virtual range stays reserved
// against reuse by the rest of the process, but any touch faults again.
func decommitPage(addr uintptr, size int) error {
	got, errno := mmapFixed(addr, size, unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED)
	if errno != nil {
		return fmt.Errorf("%w: decommit page at %#x: %v", ErrMapFailed, addr, errno)
	}
	if got != addr {
		return fmt.Errorf("%w: decommit page landed at %#x, wanted %#x", ErrMapFailed, got, addr)
	}
	return nil
}

// protectPage changes the protection of a single already-mapped page,
// backing Pager.setPermissionLocked's real-memory half.
func protectPage(addr uintptr, size int, perm Permission) error {
	var prot int
	switch perm {
	case PermNone:
		prot = unix.PROT_NONE
	case PermRead:
		prot = unix.PROT_READ
	case PermRDWR:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		panic(fmt.Sprintf("pager: invalid permission %d", perm))
	}
	if err := unix.Mprotect(poolSlice(addr, size), prot); err != nil {
		return fmt.Errorf("%w: mprotect %#x to %s: %v", ErrProtectFailed, addr, perm, err)
	}
	return nil
}

// poolSlice exposes the committed range [addr, addr+size) as a byte slice.
// The pager uses it for swap load/writeback and as protectPage's mprotect
// argument; the notify package touches the pool through its own pointer.
func poolSlice(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
