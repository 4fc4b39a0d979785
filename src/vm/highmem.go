package vm

import (
	"limits"
	"mem"
)

// highmemSlots is the number of rotating kernel VA slots used to reach
// physical frames above limits.KernelDirectMapLimit, which the static
// direct map cannot address.
const highmemSlots = 8

// highmemBase is the kernel VA where the rotating window begins,
// placed just above the identity-mapped boot region.
const highmemBase = Va_t(limits.KernelBase + limits.IdentityMapBytes)

type highmemWindow struct {
	vm       *VM
	next     int
	occupant [highmemSlots]mem.Pa_t
}

func newHighmemWindow(v *VM) *highmemWindow {
	return &highmemWindow{vm: v}
}

func (h *highmemWindow) slotVA(slot int) Va_t {
	return Va_t(uint32(highmemBase) + uint32(slot)*limits.PageSize)
}

// mapPhysical installs pa into the next rotating slot, evicting
// whatever occupied it, and returns the kernel VA now reaching pa.
func (h *highmemWindow) mapPhysical(pa mem.Pa_t) Va_t {
	slot := h.next
	h.next = (h.next + 1) % highmemSlots
	h.occupant[slot] = mem.PageOf(pa)
	va := h.slotVA(slot)
	if err := h.vm.Map(h.vm.Kernel, va, mem.PageOf(pa), mem.PTE_P|mem.PTE_W); err != 0 {
		panic("highmem window: mapping kernel slot failed")
	}
	return va
}

// ensureKernelReachable guarantees the kernel can address pa's
// contents, populating the rotating highmem window when pa falls
// outside the direct map. Invoked whenever Map allocates a new
// page-table page, so the kernel can always write the table it just
// linked.
func (v *VM) ensureKernelReachable(pa mem.Pa_t) {
	if uint32(pa) < limits.KernelDirectMapLimit {
		return
	}
	v.highmem.mapPhysical(pa)
}

// PhysToVirt returns the kernel virtual address at which pa's contents
// are reachable: the bijective direct map for addresses below
// limits.KernelDirectMapLimit, or a fresh highmem window slot
// otherwise.
func (v *VM) PhysToVirt(pa mem.Pa_t) Va_t {
	if uint32(pa) < limits.KernelDirectMapLimit {
		return Va_t(uint32(pa) + limits.KernelBase)
	}
	return v.highmem.mapPhysical(pa)
}

// VirtToPhys inverts the direct-map bijection. It does not resolve
// highmem-window addresses or arbitrary task mappings -- callers
// needing those should use Readback against the owning page directory.
func (v *VM) VirtToPhys(va Va_t) (mem.Pa_t, bool) {
	if uint32(va) < limits.KernelBase {
		return 0, false
	}
	off := uint32(va) - limits.KernelBase
	if off >= limits.KernelDirectMapLimit {
		return 0, false
	}
	return mem.Pa_t(off), true
}
