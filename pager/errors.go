package pager

import "errors"

// Every error below is fatal by design (§7): the pager has no recovery
// path for any of them. Close()/HandleFault() return them so a caller can
// log and abort; nothing in this package attempts to recover from them.
var (
	// ErrMapFailed: cannot create or remove a page-sized mapping at the
	// required address.
	ErrMapFailed = errors.New("pager: mapping failure")

	// ErrProtectFailed: cannot change the protection of a page's address
	// range.
	ErrProtectFailed = errors.New("pager: protection change failure")

	// ErrSwapIO: a swap read or write was short or failed outright.
	ErrSwapIO = errors.New("pager: swap I/O failure")

	// ErrOutOfBounds: a faulting address fell outside [Start, End). The
	// caller should treat this as a genuine segmentation fault.
	ErrOutOfBounds = errors.New("pager: address outside virtual pool")

	// ErrPolicyInit: the replacement policy failed to allocate its
	// bookkeeping state.
	ErrPolicyInit = errors.New("pager: policy initialization failure")

	// ErrResidencyExceeded: num_resident would exceed max_resident.
	// Callers must evict before mapping; reaching this means the pager's
	// own invariant was violated.
	ErrResidencyExceeded = errors.New("pager: residency cap exceeded")

	// ErrUnsupportedConfig: e.g. max_resident == 0, which the reference
	// design also leaves unsupported (§9, Open Question).
	ErrUnsupportedConfig = errors.New("pager: unsupported configuration")
)
