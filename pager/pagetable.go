package pager

import "fmt"

// pageTable is a fixed-size array of page table entries. It is pure data:
// no allocation and no I/O beyond bit-level get/set, matching
// virtualmem.c's page_table[] and its clear/set/test helpers. Every
// operation validates its page argument and panics on violation, per the
// "invariant violation" category in the error taxonomy (fatal, no
// recovery path).
type pageTable struct {
	entries []pte
}

func newPageTable(numPages int) pageTable {
	return pageTable{entries: make([]pte, numPages)}
}

func (t *pageTable) check(p Page) {
	if p < 0 || int(p) >= len(t.entries) {
		panic(fmt.Sprintf("pager: page %d out of range [0, %d)", p, len(t.entries)))
	}
}

// clear resets a page's entry to all-zero: not resident, not accessed, not
// dirty, permission NONE. Used when a page is unmapped.
func (t *pageTable) clear(p Page) {
	t.check(p)
	t.entries[p] = 0
}

func (t *pageTable) resident(p Page) bool {
	t.check(p)
	return t.entries[p].resident()
}

func (t *pageTable) setResident(p Page) {
	t.check(p)
	t.entries[p] |= pteResident
}

func (t *pageTable) accessed(p Page) bool {
	t.check(p)
	return t.entries[p].accessed()
}

func (t *pageTable) setAccessed(p Page) {
	t.check(p)
	t.entries[p] |= pteAccessed
}

func (t *pageTable) clearAccessed(p Page) {
	t.check(p)
	t.entries[p] &^= pteAccessed
}

func (t *pageTable) dirty(p Page) bool {
	t.check(p)
	return t.entries[p].dirty()
}

func (t *pageTable) setDirty(p Page) {
	t.check(p)
	t.entries[p] |= pteDirty
}

func (t *pageTable) permission(p Page) Permission {
	t.check(p)
	return t.entries[p].permission()
}

// setPermissionBits updates only the permission field of the PTE, leaving
// resident/accessed/dirty untouched. It does not touch real memory
// protection — that coupling lives in Pager.setPermissionLocked (§4.4), which
// calls this only after the underlying mprotect succeeds.
func (t *pageTable) setPermissionBits(p Page, perm Permission) {
	t.check(p)
	if !perm.valid() {
		panic(fmt.Sprintf("pager: invalid permission %d", perm))
	}
	t.entries[p] = (t.entries[p] &^ ptePermMask) | pte(perm)
}

func (t *pageTable) numPages() int { return len(t.entries) }
