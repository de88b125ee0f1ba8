// Package clock implements the CLOCK/LRU approximation policy (§4.3.2):
// a doubly-linked queue of resident pages, aged by a periodic tick that
// demotes recently-accessed pages back to NONE and moves them to the
// tail, and evicts from the head. It is grounded on
// original_source/vmpolicy_clru.c, translated from an intrusive C
// doubly-linked list to container/list; TimerTick still snapshots each
// element's Next() before relinking, as the C version does by hand.
package clock

import (
	"container/list"

	"uvmpager/pager"
)

// Policy is a CLOCK/LRU replacement policy. The zero value is not usable;
// construct with New.
type Policy struct {
	queue *list.List
	nodes map[pager.Page]*list.Element
}

// New returns an uninitialized CLOCK policy; call Init before use.
func New() *Policy {
	return &Policy{}
}

func (c *Policy) Init(maxResident int) error {
	c.queue = list.New()
	c.nodes = make(map[pager.Page]*list.Element, maxResident)
	return nil
}

func (c *Policy) Cleanup() {
	c.queue = nil
	c.nodes = nil
}

// PageMapped appends the newly resident page at the tail of the queue.
func (c *Policy) PageMapped(p pager.Page) {
	c.nodes[p] = c.queue.PushBack(p)
}

// TimerTick walks the queue exactly once over its length at tick start
// (§4.3.2): for each page with its accessed bit set, clear the bit,
// narrow permission to NONE, and move it to the tail. Pages not accessed
// are left exactly where they are. The walk snapshots each node's
// successor before any relinking, so moving the current node to the tail
// never derails traversal — the same safety
// original_source/vmpolicy_clru.c achieves by hand with next_node.
// A queue holding fewer than two pages is not walked at all: a lone
// resident page keeps its accessed bit and its permission across the tick.
func (c *Policy) TimerTick(access pager.PageAccess) {
	n := c.queue.Len()
	if n <= 1 {
		return
	}

	node := c.queue.Front()
	for i := 0; i < n; i++ {
		next := node.Next()
		page := node.Value.(pager.Page)

		if access.Accessed(page) {
			access.ClearAccessed(page)
			if err := access.SetPermission(page, pager.PermNone); err != nil {
				// A protection change failure is fatal and unrecoverable
				// (§7); TimerTick has no error return, so surface it the
				// same way an invariant violation does.
				panic(err)
			}
			c.queue.MoveToBack(node)
		}

		node = next
	}
}

// ChooseAndEvictVictim evicts the head of the queue: the page least
// recently observed to be accessed.
func (c *Policy) ChooseAndEvictVictim() (pager.Page, bool) {
	front := c.queue.Front()
	if front == nil {
		return 0, false
	}
	page := front.Value.(pager.Page)
	c.queue.Remove(front)
	delete(c.nodes, page)
	return page, true
}
