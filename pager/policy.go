package pager

// PageAccess is the narrow contract a Policy uses to read and narrow a
// page's state during TimerTick. It is the Go substitute for the
// original's direct manipulation of the page_table global: a Policy never
// sees the Pager itself, only this slice of it.
type PageAccess interface {
	Accessed(Page) bool
	ClearAccessed(Page)
	SetPermission(Page, Permission) error
}

// Policy is the replacement-policy hook set (§4.3). Exactly one Policy
// instance is owned by a Pager for its lifetime. Every PageMapped is
// paired with exactly one later ChooseAndEvictVictim returning that page,
// or a terminal Cleanup.
type Policy interface {
	// Init allocates policy bookkeeping for up to maxResident resident
	// pages. A non-nil error is fatal to pager startup.
	Init(maxResident int) error

	// Cleanup releases policy bookkeeping. Called once during teardown.
	Cleanup()

	// PageMapped records that page has just joined the resident set.
	// Called immediately after a successful mapPageLocked.
	PageMapped(Page)

	// TimerTick gives the policy an opportunity to age its bookkeeping,
	// using access narrows only through PageAccess.
	TimerTick(PageAccess)

	// ChooseAndEvictVictim returns a currently-resident page to evict and
	// removes it from the policy's own bookkeeping. ok is false only if
	// the policy has nothing resident to offer, which the Pager treats as
	// an invariant violation (it is only called when num_resident ==
	// max_resident).
	ChooseAndEvictVictim() (page Page, ok bool)
}
