package mem

import (
	"fmt"
	"limits"
	"stats"
	"util"
)

const maxOrder = limits.MaxOrder

// pgnode is the buddy-allocator bookkeeping for one physical page.
// Only meaningful while the page heads a free block (order/free) or is
// live with outstanding references (refcnt, used by fork's
// copy-on-write sharing).
type pgnode struct {
	order  int8
	free   bool
	next   int32
	prev   int32
	refcnt int32
}

const nilIdx int32 = -1

// buddyPool is a buddy allocator over a contiguous, page-number-indexed
// range. Index 0 corresponds to physical page basePage. Not
// interrupt-safe: callers hold interrupts disabled or otherwise
// serialize access.
type buddyPool struct {
	basePage uint32
	numPages uint32
	pg       []pgnode
	freeHd   [maxOrder + 1]int32
	freeCnt  uint32
}

func newBuddyPool(basePage, numPages uint32) *buddyPool {
	bp := &buddyPool{basePage: basePage, numPages: numPages, pg: make([]pgnode, numPages)}
	for k := range bp.freeHd {
		bp.freeHd[k] = nilIdx
	}
	var i uint32
	for order := maxOrder; order >= 0; order-- {
		sz := uint32(1) << uint(order)
		for i+sz <= numPages && i%sz == 0 {
			bp.pushFree(int32(i), order)
			i += sz
		}
	}
	return bp
}

func (bp *buddyPool) pushFree(idx int32, order int) {
	bp.pg[idx].order = int8(order)
	bp.pg[idx].free = true
	bp.pg[idx].prev = nilIdx
	bp.pg[idx].next = bp.freeHd[order]
	if bp.freeHd[order] != nilIdx {
		bp.pg[bp.freeHd[order]].prev = idx
	}
	bp.freeHd[order] = idx
	bp.freeCnt += uint32(1) << uint(order)
}

func (bp *buddyPool) removeFree(idx int32, order int) {
	n := &bp.pg[idx]
	if n.prev != nilIdx {
		bp.pg[n.prev].next = n.next
	} else {
		bp.freeHd[order] = n.next
	}
	if n.next != nilIdx {
		bp.pg[n.next].prev = n.prev
	}
	n.free = false
	bp.freeCnt -= uint32(1) << uint(order)
}

func (bp *buddyPool) popFree(order int) int32 {
	idx := bp.freeHd[order]
	if idx == nilIdx {
		return nilIdx
	}
	bp.removeFree(idx, order)
	return idx
}

// alloc returns the relative page index of a freshly allocated
// 2^order-page block, or nilIdx if none is available: take the head
// of list k, or recursively split the smallest larger non-empty list.
func (bp *buddyPool) alloc(order int) int32 {
	if order > maxOrder {
		return nilIdx
	}
	k := order
	for k <= maxOrder && bp.freeHd[k] == nilIdx {
		k++
	}
	if k > maxOrder {
		return nilIdx
	}
	idx := bp.popFree(k)
	for k > order {
		k--
		buddy := idx + int32(1)<<uint(k)
		bp.pushFree(buddy, k)
	}
	bp.pg[idx].free = false
	bp.pg[idx].order = int8(order)
	bp.pg[idx].refcnt = 1
	return idx
}

// free returns a 2^order-page block to the pool, coalescing with its
// buddy until the buddy is busy, split differently, or the block
// reaches maxOrder. No two adjacent equal-order blocks stay free.
func (bp *buddyPool) free(idx int32, order int) {
	for order < maxOrder {
		buddy := idx ^ int32(1)<<uint(order)
		if buddy < 0 || uint32(buddy) >= bp.numPages {
			break
		}
		if !bp.pg[buddy].free || int(bp.pg[buddy].order) != order {
			break
		}
		bp.removeFree(buddy, order)
		if buddy < idx {
			idx = buddy
		}
		order++
	}
	bp.pushFree(idx, order)
}

func (bp *buddyPool) contains(pageNum uint32) bool {
	return pageNum >= bp.basePage && pageNum < bp.basePage+bp.numPages
}

// PMM is the physical memory manager: a buddy allocator over the
// managed physical range, split into a kernel-reserved pool and a
// general pool shared by kernel and user allocations, so user
// allocations can never starve the kernel of pages.
type PMM struct {
	kernelPool  *buddyPool
	generalPool *buddyPool
	// Reserved records how many pages below the managed range are
	// permanently excluded from both pools. The PMM itself never reads
	// it, and Stats' total covers the two pools only.
	Reserved uint32
}

// NewPMM constructs the PMM over physical pages [basePage, basePage+totalPages).
// kernelReservePages of that range, starting at basePage, form the
// kernel-only pool; the remainder is the general pool.
func NewPMM(basePage, totalPages, kernelReservePages uint32) *PMM {
	if kernelReservePages > totalPages {
		kernelReservePages = totalPages
	}
	return &PMM{
		kernelPool:  newBuddyPool(basePage, kernelReservePages),
		generalPool: newBuddyPool(basePage+kernelReservePages, totalPages-kernelReservePages),
	}
}

func (p *PMM) pa(pool *buddyPool, idx int32) Pa_t {
	return Pa_t(pool.basePage+uint32(idx)) << PageShift
}

func (p *PMM) pageNum(pa Pa_t) uint32 {
	return uint32(pa >> PageShift)
}

// AllocPage allocates a single physical page for kernel use. Returns
// 0 on failure.
func (p *PMM) AllocPage() Pa_t { return p.AllocPagesType(1, KindKernel) }

// AllocPages allocates n contiguous pages for kernel use.
func (p *PMM) AllocPages(n uint32) Pa_t { return p.AllocPagesType(n, KindKernel) }

// AllocPagesType allocates n contiguous pages of the requested kind.
// User allocations never draw from the kernel reservation; kernel
// allocations fall back to the general pool once the reservation is
// exhausted.
func (p *PMM) AllocPagesType(n uint32, kind Kind) Pa_t {
	if n == 0 {
		return 0
	}
	order := int(util.Log2Ceil(n))
	if kind == KindUser {
		idx := p.generalPool.alloc(order)
		if idx == nilIdx {
			return 0
		}
		return p.pa(p.generalPool, idx)
	}
	if idx := p.kernelPool.alloc(order); idx != nilIdx {
		return p.pa(p.kernelPool, idx)
	}
	if idx := p.generalPool.alloc(order); idx != nilIdx {
		return p.pa(p.generalPool, idx)
	}
	return 0
}

// poolFor returns the pool owning pa, or nil if pa is outside both
// managed ranges.
func (p *PMM) poolFor(pa Pa_t) *buddyPool {
	pn := p.pageNum(pa)
	if p.kernelPool.contains(pn) {
		return p.kernelPool
	}
	if p.generalPool.contains(pn) {
		return p.generalPool
	}
	return nil
}

// FreePage frees a single page previously obtained from AllocPage(s).
func (p *PMM) FreePage(pa Pa_t) { p.FreePages(pa, 1) }

// FreePages frees n pages previously allocated together as one block.
// Callers must free exactly what they allocated; n need not be a
// power of two, but it is rounded up to one on entry. Misaligned or
// out-of-range addresses are logged and ignored, leaving allocator
// state consistent.
func (p *PMM) FreePages(pa Pa_t, n uint32) {
	if n == 0 {
		return
	}
	if pa&PageOffset != 0 {
		fmt.Printf("mem: FreePages: misaligned address 0x%x\n", pa)
		return
	}
	pool := p.poolFor(pa)
	if pool == nil {
		fmt.Printf("mem: FreePages: address 0x%x outside managed range\n", pa)
		return
	}
	order := int(util.Log2Ceil(n))
	idx := int32(p.pageNum(pa)) - int32(pool.basePage)
	if idx < 0 || uint32(idx) >= pool.numPages || pool.pg[idx].free {
		fmt.Printf("mem: FreePages: double free or bad address 0x%x\n", pa)
		return
	}
	pool.free(idx, order)
}

// Stats reports free/used page counts across both pools.
func (p *PMM) Stats() (free, used, total uint32) {
	free = p.kernelPool.freeCnt + p.generalPool.freeCnt
	total = p.kernelPool.numPages + p.generalPool.numPages
	used = total - free
	return
}

// Ref increments pa's reference count, used when fork shares a
// physical page copy-on-write between parent and child instead of
// duplicating it immediately.
func (p *PMM) Ref(pa Pa_t) {
	pool := p.poolFor(pa)
	if pool == nil {
		return
	}
	idx := int32(p.pageNum(pa)) - int32(pool.basePage)
	if idx < 0 || uint32(idx) >= pool.numPages || pool.pg[idx].free {
		return
	}
	pool.pg[idx].refcnt++
}

// Unref decrements pa's reference count and reports whether it
// reached zero (the caller should then actually free the page).
func (p *PMM) Unref(pa Pa_t) bool {
	pool := p.poolFor(pa)
	if pool == nil {
		return false
	}
	idx := int32(p.pageNum(pa)) - int32(pool.basePage)
	if idx < 0 || uint32(idx) >= pool.numPages || pool.pg[idx].free {
		return false
	}
	pool.pg[idx].refcnt--
	return pool.pg[idx].refcnt <= 0
}

// Snapshot reports the same counters as Stats in stats.PMMSnapshot
// form, for callers that want a value type rather than a 3-tuple.
func (p *PMM) Snapshot() stats.PMMSnapshot {
	free, used, total := p.Stats()
	return stats.PMMSnapshot{FreePages: free, UsedPages: used, TotalPages: total}
}
