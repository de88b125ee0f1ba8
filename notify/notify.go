// Package notify is the Go-native substitute for virtualmem.c's
// sigaction(SIGSEGV)/setitimer glue (§4.5 and §1 of the expanded spec).
// Go cannot resume a faulting instruction after an arbitrary synchronous
// signal the way the original's SA_SIGINFO handler does, so instead of a
// raw trap this package turns a real memory touch against the pager's
// mmap'd pool into a recoverable panic, translates it into exactly one
// Pager.HandleFault call, and retries — mirroring, e2b-dev-infra's
// userfaultfd handler recovers from a panic mid-copy and signals failure
// rather than letting it escape the goroutine.
package notify

import (
	"runtime/debug"
	"unsafe"

	"go.uber.org/zap"

	"uvmpager/pager"
)

// Dispatcher is the single entry point a host calls to touch the pool.
// It has no state of its own beyond a reference to the Pager and a
// logger; every other piece of state lives in the Pager.
type Dispatcher struct {
	p      *pager.Pager
	logger *zap.SugaredLogger
}

// New wraps p. logger may be nil, in which case diagnostics are dropped.
func New(p *pager.Pager, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{p: p, logger: logger.Sugar()}
}

// Access performs a single byte read or write at addr, resolving however
// many access faults are required first. It is the Go analogue of the
// host dereferencing a pointer into the reserved range and having the
// kernel, rather than this package, deliver SIGSEGV: here the fault is
// predicted from the pager's bookkeeping, and a touch that still traps is
// caught by recovering from the runtime's own panic for touching
// PROT_NONE/PROT_READ memory the wrong way, the same mechanism that turns
// a nil-pointer dereference into "invalid memory address".
//
// An address outside the pool's bounds is re-panicked after the bounds
// check fails, so it surfaces as a genuine process crash rather than
// being absorbed as an ordinary fault (§4.5, §7 "Out-of-bounds fault").
func (d *Dispatcher) Access(addr uintptr, write bool, val byte) (read byte, err error) {
	if addr < d.p.Start() || addr >= d.p.End() {
		panic("notify: address outside reserved virtual pool")
	}

	for {
		kind, done, touchErr := d.touch(addr, write, val, &read)
		if touchErr != nil {
			return 0, touchErr
		}
		if done {
			return read, nil
		}
		d.logger.Debugw("resolving fault", "addr", addr, "kind", kind)
		if err := d.p.HandleFault(addr, kind); err != nil {
			return 0, err
		}
	}
}

// touch attempts the real memory access once. done is true if the access
// completed without faulting (recover() saw nothing). The FaultKind comes
// from the pager's own bookkeeping — not from any siginfo_t, which Go does
// not expose: a page that is not resident, or whose permission forbids the
// access, is reported as a fault without touching memory at all. Only if
// the touch itself still traps (the bookkeeping changed in between) is the
// kind derived in the recover() handler.
func (d *Dispatcher) touch(addr uintptr, write bool, val byte, read *byte) (kind pager.FaultKind, done bool, err error) {
	page, perr := d.p.AddrToPage(addr)
	if perr != nil {
		return 0, false, perr
	}

	if !d.p.Resident(page) {
		return pager.FaultNotMapped, false, nil
	}
	perm := d.p.Permission(page)
	if perm == pager.PermNone || (write && perm == pager.PermRead) {
		return pager.FaultForbidden, false, nil
	}

	// Without this the runtime treats a fault at a non-nil address as a
	// fatal error rather than a recoverable panic.
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warnw("caught trap touching pool", "addr", addr, "panic", r)
			if !d.p.Resident(page) {
				kind, done = pager.FaultNotMapped, false
				return
			}
			kind, done = pager.FaultForbidden, false
		}
	}()

	cell := (*byte)(unsafe.Pointer(addr))
	if write {
		*cell = val
	} else {
		*read = *cell
	}
	return 0, true, nil
}
