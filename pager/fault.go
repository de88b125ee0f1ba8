package pager

import "fmt"

// HandleFault resolves a single access-fault notification (§4.4 "Fault
// resolution"). addr is the faulting address as reported by the caller
// (the notify package, in the real mmap'd case, or a test driving the
// pager directly); kind distinguishes "no page mapped there at all" from
// "a resident page whose current permission forbids this access".
//
// HandleFault holds p.mu for its entire body: this is the literal
// implementation of "timer notifications are masked during access-fault
// handling" (§5) — Tick blocks on the same mutex until this returns.
func (p *Pager) HandleFault(addr uintptr, kind FaultKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	page, err := p.addrToPageLocked(addr)
	if err != nil {
		// Out-of-bounds is a genuine segmentation fault, not a pager
		// failure: propagate as a panic so the process actually crashes.
		panic(fmt.Sprintf("pager: %v", err))
	}

	p.faults++
	p.logger.Debugw("fault", "page", page, "kind", kind)

	switch kind {
	case FaultNotMapped:
		if p.resident == p.maxResident {
			victim, ok := p.policy.ChooseAndEvictVictim()
			if !ok {
				panic("pager: policy has nothing to evict at residency cap")
			}
			if !p.table.resident(victim) {
				panic(fmt.Sprintf("pager: policy chose non-resident victim %d", victim))
			}
			if err := p.unmapPageLocked(victim); err != nil {
				return err
			}
		}
		return p.mapPageLocked(page, PermNone)

	case FaultForbidden:
		switch p.table.permission(page) {
		case PermNone:
			if err := p.setPermissionLocked(page, PermRead); err != nil {
				return err
			}
			p.table.setAccessed(page)
			return nil
		case PermRead:
			if err := p.setPermissionLocked(page, PermRDWR); err != nil {
				return err
			}
			p.table.setAccessed(page)
			p.table.setDirty(page)
			return nil
		default:
			panic(fmt.Sprintf("pager: access-forbidden fault on page %d already at RDWR", page))
		}

	default:
		panic(fmt.Sprintf("pager: unknown fault kind %d", kind))
	}
}

// Tick drives one periodic timer notification into the Policy (§4.3.2).
// It holds the same mutex as HandleFault, so a tick and a fault can never
// interleave — the mutual-exclusion property spec.md §5 requires.
func (p *Pager) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy.TimerTick(p)
}
