// Package fifo implements the FIFO replacement policy (§4.3.1): resident
// pages are evicted in the order they were mapped, with no aging step.
// It is grounded on original_source/vmpolicy_fifo.c's singly-linked
// queue, translated to a Go slice-backed queue since there is no pointer
// aliasing to preserve.
package fifo

import "uvmpager/pager"

// Policy is a FIFO replacement policy. The zero value is not usable;
// construct with New.
type Policy struct {
	queue []pager.Page
}

// New returns an unInitialized FIFO policy; call Init before use.
func New() *Policy {
	return &Policy{}
}

func (f *Policy) Init(maxResident int) error {
	f.queue = make([]pager.Page, 0, maxResident)
	return nil
}

func (f *Policy) Cleanup() {
	f.queue = nil
}

// PageMapped appends the newly resident page to the tail of the queue.
func (f *Policy) PageMapped(p pager.Page) {
	f.queue = append(f.queue, p)
}

// TimerTick is a no-op for FIFO: it carries no aging state (§4.3.1).
func (f *Policy) TimerTick(pager.PageAccess) {}

// ChooseAndEvictVictim removes and returns the head of the queue, the
// page that has been resident the longest.
func (f *Policy) ChooseAndEvictVictim() (pager.Page, bool) {
	if len(f.queue) == 0 {
		return 0, false
	}
	victim := f.queue[0]
	f.queue = f.queue[1:]
	return victim, true
}
