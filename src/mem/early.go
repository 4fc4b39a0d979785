package mem

import (
	"fmt"
	"limits"
	"util"
)

// Early is the bootstrap allocator: a bump allocator over a fixed BSS
// pool, used before the PMM is operational, plus a separate
// page-aligned arena for the initial kernel page tables constructed
// before the PMM comes up. Nothing is ever freed; whatever survives
// the handover is lifetime-of-process data.
type Early struct {
	pool   [limits.EarlyPoolBytes]byte
	off    int
	ptNext Pa_t // next page to hand out from the early PT arena
	ptEnd  Pa_t
}

// NewEarly constructs an Early allocator. Must be called exactly once,
// before any call to Alloc or PageTable.
func NewEarly() *Early {
	return &Early{
		ptNext: limits.EarlyPTArenaStart,
		ptEnd:  limits.EarlyPTArenaEnd,
	}
}

// Alloc bump-allocates size bytes aligned to align (which must be a
// power of two) from the fixed BSS pool. It panics on exhaustion:
// every early-boot caller is on a fatal path if it cannot get memory
// this early.
func (e *Early) Alloc(size, align int) []byte {
	start := util.Roundup(e.off, align)
	end := start + size
	if end > len(e.pool) {
		panic(fmt.Sprintf("early pool exhausted: want %d bytes at off %d, pool is %d", size, start, len(e.pool)))
	}
	e.off = end
	return e.pool[start:end]
}

// PageTable hands out one page-aligned physical page from the
// reserved 2 MiB-4 MiB window, used solely to back on-demand kernel
// page tables constructed before the PMM is running. It panics on
// exhaustion of that 2 MiB window, a core-path fatal condition.
func (e *Early) PageTable() Pa_t {
	if e.ptNext >= e.ptEnd {
		panic("early page-table arena exhausted")
	}
	pa := e.ptNext
	e.ptNext += limits.PageSize
	return pa
}
