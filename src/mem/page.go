// Package mem implements physical-page types and physical page
// allocation: the early bootstrap bump allocator used before paging
// is fully up, and the buddy-allocator physical memory manager with
// typed kernel/user pools that owns every page frame above the kernel
// image.
package mem

import "limits"

// Pa_t is a physical address. IA-32 without PAE has 32-bit physical
// addresses.
type Pa_t uint32

const (
	PageSize  = limits.PageSize
	PageShift = limits.PageShift
)

// PageMask/PageOffset split a Pa_t into frame and in-page offset.
const (
	PageOffset Pa_t = PageSize - 1
	PageMask   Pa_t = ^PageOffset
)

// PTE/PDE flag bits: P, R/W, U/S, PWT, PCD, A, D, PS, G, plus one
// software-only bit (PTE_COW) the hardware ignores, used to mark a
// page shared copy-on-write after fork.
const (
	PTE_P   Pa_t = 1 << 0
	PTE_W   Pa_t = 1 << 1
	PTE_U   Pa_t = 1 << 2
	PTE_PWT Pa_t = 1 << 3
	PTE_PCD Pa_t = 1 << 4
	PTE_A   Pa_t = 1 << 5
	PTE_D   Pa_t = 1 << 6
	PTE_PS  Pa_t = 1 << 7
	PTE_G   Pa_t = 1 << 8
	PTE_COW Pa_t = 1 << 9

	PTE_ADDR  Pa_t = PageMask
	PTE_FLAGS Pa_t = PageOffset
)

// Pmap_t is a single page-directory or page-table page: 1024 32-bit
// entries.
type Pmap_t [1024]Pa_t

// PageOf rounds pa down to its containing page.
func PageOf(pa Pa_t) Pa_t { return pa &^ PageOffset }

// Kind distinguishes kernel- from user-directed allocation requests.
type Kind int

const (
	KindKernel Kind = iota
	KindUser
)
