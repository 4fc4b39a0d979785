package vm

import (
	"defs"
	"limits"
	"mem"
)

// DMARegion is the DMA-coherent region (C4): a fixed kernel VA range,
// identity-related to its backing physical pages by a constant offset,
// used by device drivers that need a physically contiguous buffer with
// a known physical address to hand to hardware. A bump allocator is
// enough: descriptor rings and DMA buffers live until reset, so
// nothing frees individual regions.
type DMARegion struct {
	vm        *VM
	base      Va_t
	basePhys  mem.Pa_t
	sizeBytes uint32
	off       uint32
}

// NewDMARegion reserves sizeBytes (rounded up to a page) of physically
// contiguous, kernel-mapped memory and installs it into the canonical
// kernel page directory. Because it lives in the kernel half (VA >=
// limits.KernelBase), every task's PD maps the region identically
// for free: NewTaskPageDir copies this region's PDEs along with the
// rest of the kernel half, so long as the region is installed before
// VM.Lock is called.
func NewDMARegion(v *VM, sizeBytes uint32) (*DMARegion, defs.Err_t) {
	pages := (sizeBytes + limits.PageSize - 1) / limits.PageSize
	if pages == 0 {
		pages = 1
	}
	basePhys := v.PMM.AllocPages(pages)
	if basePhys == 0 {
		return nil, defs.ENOMEM
	}
	d := &DMARegion{
		vm:        v,
		base:      v.PhysToVirt(basePhys),
		basePhys:  basePhys,
		sizeBytes: pages * limits.PageSize,
	}
	for i := uint32(0); i < pages; i++ {
		va := Va_t(uint32(d.base) + i*limits.PageSize)
		pa := basePhys + mem.Pa_t(i*limits.PageSize)
		if err := v.Map(v.Kernel, va, pa, mem.PTE_P|mem.PTE_W|mem.PTE_PCD); err != 0 {
			return nil, err
		}
	}
	return d, 0
}

// AllocCoherent carves size bytes (16-byte aligned, enough for any
// descriptor ring) out of the region and returns both its kernel
// virtual address and physical address, so the caller can program a
// device's DMA registers with the physical address while touching the
// buffer through the virtual one.
func (d *DMARegion) AllocCoherent(size uint32) (Va_t, mem.Pa_t, defs.Err_t) {
	const align = 16
	start := (d.off + align - 1) &^ (align - 1)
	if start+size > d.sizeBytes {
		return 0, 0, defs.ENOMEM
	}
	d.off = start + size
	return Va_t(uint32(d.base) + start), d.basePhys + mem.Pa_t(start), 0
}

// FreeCoherent releases a buffer obtained from AllocCoherent. The
// bump allocator cannot reuse the space, so this only exists to keep
// alloc/free calls paired in drivers.
// TODO: replace the bump cursor with a free-list allocator so a
// driver teardown actually returns its descriptor rings.
func (d *DMARegion) FreeCoherent(va Va_t, pa mem.Pa_t) {}

// Cap reports the region's total usable byte capacity.
func (d *DMARegion) Cap() uint32 { return d.sizeBytes }
