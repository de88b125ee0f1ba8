// Package pager implements a user-space demand-paged virtual memory pool:
// a fixed-size page table, a private swap file, a pluggable replacement
// policy, and a fault resolver that narrows and widens real page
// protection to observe reads and writes.
package pager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPageSize matches the host's typical page size. It must be a
	// power of two.
	DefaultPageSize = 4096

	// DefaultTickInterval is the periodic timer interval virtualmem.c
	// arms via setitimer (~10ms, per spec.md §4.4 step 5).
	DefaultTickInterval = 10 * time.Millisecond
)

// Config holds the build-time constants of the original C implementation
// (PAGE_SIZE, the swap file's directory, the timer interval) as runtime
// values, set via functional options instead of #define. NUM_PAGES and
// max_resident are not options: they are New's own arguments.
type Config struct {
	pageSize     int
	numPages     int
	maxResident  int
	swapDir      string
	tickInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Pager at construction time.
type Option func(*Config)

// WithPageSize overrides DefaultPageSize. Must be a positive power of two.
func WithPageSize(n int) Option {
	return func(c *Config) { c.pageSize = n }
}

// WithSwapDir selects the directory the swap file is created in; the
// empty string (the default) uses the OS temp directory.
func WithSwapDir(dir string) Option {
	return func(c *Config) { c.swapDir = dir }
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.tickInterval = d }
}

// WithLogger injects a *zap.Logger for fault/load/eviction diagnostics.
// Without this option the Pager logs nowhere (zap.NewNop()).
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// Pager is the central state machine described in spec.md §4.4: it owns
// the page table, the residency counter, the swap store, the replacement
// policy, and the reserved address range.
type Pager struct {
	mu sync.Mutex

	table    pageTable
	swap     *swapStore
	policy   Policy
	pageSize int
	numPages int

	maxResident int
	resident    int
	faults      uint64
	loads       uint64

	base uintptr

	logger *zap.SugaredLogger

	tickInterval time.Duration
	group        *errgroup.Group
	cancel       context.CancelFunc
}

// New allocates and initializes a Pager over numPages pages, each
// pageSize bytes, with at most maxResident simultaneously resident
// (vmem_init, §4.4). maxResident == 0 is rejected as an unsupported
// configuration (§9, Open Question): the reference code deadlocks on the
// first fault in that case, so this implementation refuses to start.
func New(numPages, maxResident int, policy Policy, opts ...Option) (*Pager, error) {
	cfg := Config{
		pageSize:     DefaultPageSize,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if maxResident <= 0 || maxResident > numPages {
		return nil, fmt.Errorf("%w: max_resident must be in [1, %d], got %d", ErrUnsupportedConfig, numPages, maxResident)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: policy must not be nil", ErrUnsupportedConfig)
	}

	swap, err := openSwapStore(cfg.swapDir, numPages, cfg.pageSize)
	if err != nil {
		return nil, err
	}
	base, err := reservePool(numPages * cfg.pageSize)
	if err != nil {
		swap.close()
		return nil, err
	}
	if err := policy.Init(maxResident); err != nil {
		swap.close()
		releasePool(base, numPages*cfg.pageSize)
		return nil, fmt.Errorf("%w: %v", ErrPolicyInit, err)
	}

	p := &Pager{
		table:        newPageTable(numPages),
		swap:         swap,
		policy:       policy,
		pageSize:     cfg.pageSize,
		numPages:     numPages,
		maxResident:  maxResident,
		base:         base,
		logger:       cfg.logger.Sugar(),
		tickInterval: cfg.tickInterval,
	}
	return p, nil
}

// Run arms the periodic timer goroutine (the Go substitute for
// setitimer(ITIMER_REAL, ...) + SIGALRM, §4.4 step 5). It must be called
// at most once; Close stops it.
func (p *Pager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	p.group = g
	g.Go(func() error {
		ticker := time.NewTicker(p.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.Tick()
			}
		}
	})
}

// Close tears down the Pager (vmem_cleanup, §4.4 "Teardown"): stops the
// ticker goroutine, releases policy bookkeeping, releases the virtual
// reservation, and closes the swap file (already unlinked, so its space
// is reclaimed on close).
func (p *Pager) Close() error {
	if p.cancel != nil {
		p.cancel()
		p.group.Wait()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.policy.Cleanup()
	if err := releasePool(p.base, p.numPages*p.pageSize); err != nil {
		return err
	}
	if err := p.swap.close(); err != nil {
		return fmt.Errorf("%w: close swap file: %v", ErrSwapIO, err)
	}
	return nil
}

// Start and End report the bounds of the reserved range (get_vmem_start/
// get_vmem_end, §6).
func (p *Pager) Start() uintptr { return p.base }
func (p *Pager) End() uintptr   { return p.base + uintptr(p.numPages*p.pageSize) }

// PageToAddr converts a page id to its address (page_to_addr, §6).
func (p *Pager) PageToAddr(page Page) uintptr {
	return p.base + uintptr(int(page)*p.pageSize)
}

// AddrToPage converts an address back to its page id (addr_to_page, §6).
// An address outside [Start, End) is ErrOutOfBounds, the pager-level
// signal for "propagate a real segmentation fault".
func (p *Pager) AddrToPage(addr uintptr) (Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addrToPageLocked(addr)
}

func (p *Pager) addrToPageLocked(addr uintptr) (Page, error) {
	if addr < p.base || addr >= p.base+uintptr(p.numPages*p.pageSize) {
		return 0, fmt.Errorf("%w: address %#x", ErrOutOfBounds, addr)
	}
	return Page((addr - p.base) / uintptr(p.pageSize)), nil
}

// Stats snapshots the monitoring counters (get_num_faults/loads, §6).
type Stats struct {
	Faults uint64
	Loads  uint64
}

func (p *Pager) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Faults: p.faults, Loads: p.loads}
}

// Resident reports whether page is currently mapped.
func (p *Pager) Resident(page Page) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.resident(page)
}

// Permission reports a page's current protection level.
func (p *Pager) Permission(page Page) Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.permission(page)
}

// Dirty reports a page's dirty bit.
func (p *Pager) Dirty(page Page) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.dirty(page)
}

// --- PageAccess, implemented by *Pager so a Policy's TimerTick can
// narrow permissions without ever touching Pager internals directly. ---

func (p *Pager) Accessed(page Page) bool {
	return p.table.accessed(page)
}

func (p *Pager) ClearAccessed(page Page) {
	p.table.clearAccessed(page)
}

func (p *Pager) SetPermission(page Page, perm Permission) error {
	return p.setPermissionLocked(page, perm)
}

// setPermissionLocked is set_page_permission (§4.4): it changes the real
// protection first, then the PTE field, and is the sole path by which PTE
// permission ever changes. Callers must already hold p.mu.
func (p *Pager) setPermissionLocked(page Page, perm Permission) error {
	if err := protectPage(p.PageToAddr(page), p.pageSize, perm); err != nil {
		return err
	}
	p.table.setPermissionBits(page, perm)
	return nil
}

// mapPageLocked is map_page (§4.4). Callers must already hold p.mu and
// must have already evicted if at the residency cap.
func (p *Pager) mapPageLocked(page Page, initialPerm Permission) error {
	if p.table.resident(page) {
		panic(fmt.Sprintf("pager: map_page on already-resident page %d", page))
	}
	if p.resident >= p.maxResident {
		return fmt.Errorf("%w: mapping page %d", ErrResidencyExceeded, page)
	}
	p.resident++

	addr := p.PageToAddr(page)
	if err := commitPage(addr, p.pageSize); err != nil {
		p.resident--
		return err
	}
	if err := p.swap.readPage(page, poolSlice(addr, p.pageSize)); err != nil {
		p.resident--
		return err
	}

	p.table.clear(page)
	p.table.setResident(page)
	if err := p.setPermissionLocked(page, initialPerm); err != nil {
		p.resident--
		return err
	}

	p.loads++
	p.policy.PageMapped(page)
	p.logger.Debugw("loaded page", "page", page, "perm", initialPerm)
	return nil
}

// unmapPageLocked is unmap_page (§4.4). Callers must already hold p.mu.
// It does not notify the Policy: the Policy already learned of the
// eviction at ChooseAndEvictVictim time.
func (p *Pager) unmapPageLocked(page Page) error {
	if !p.table.resident(page) {
		panic(fmt.Sprintf("pager: unmap_page on non-resident page %d", page))
	}
	if p.resident == 0 {
		panic("pager: unmap_page with num_resident == 0")
	}

	addr := p.PageToAddr(page)
	if p.table.dirty(page) {
		// dirty implies accessed, but the current permission may be NONE
		// if the policy already reset it; raise to READ to write back.
		if err := p.setPermissionLocked(page, PermRead); err != nil {
			return err
		}
		if err := p.swap.writePage(page, poolSlice(addr, p.pageSize)); err != nil {
			return err
		}
	}

	if err := decommitPage(addr, p.pageSize); err != nil {
		return err
	}
	p.table.clear(page)
	p.resident--
	p.logger.Debugw("evicted page", "page", page)
	return nil
}
