// Package vm implements the virtual-memory layer and the DMA-coherent
// region: page-directory/page-table manipulation over the two-level
// IA-32 format, the kernel direct map, and a cache-disabled DMA
// window with a bijective VA/PA relation.
package vm

import (
	"cpu"
	"defs"
	"limits"
	"mem"
)

// Va_t is a virtual address.
type Va_t uint32

func pdeIndex(va Va_t) uint32 { return uint32(va) >> 22 }
func pteIndex(va Va_t) uint32 { return (uint32(va) >> 12) & 0x3ff }

// VM is the virtual-memory subsystem: the PMM it draws pages from, the
// canonical kernel page directory, and a host-level simulation of
// "physical memory contents" for page-directory/page-table frames
// (phys_to_virt's job on real hardware; here the frame store plays
// that role so the layer is testable without a booted kernel).
type VM struct {
	PMM    *mem.PMM
	Kernel *PageDir

	frames map[mem.Pa_t]*mem.Pmap_t

	// kernelLocked is set once boot-time kernel mappings are complete.
	// No new kernel-half PDE may be installed in the canonical kernel
	// PD after this point: every live task's PD merely aliases the
	// canonical entries at creation time, and there is no broadcast
	// path to update PDs that already exist.
	kernelLocked bool

	// highmem is the rotating window used by PhysToVirt for physical
	// frames outside KernelDirectMapLimit.
	highmem *highmemWindow

	data dataPages
}

// PageDir is a single page directory: a value type over a backing
// physical page, manipulated through VM's typed Map/Unmap API.
type PageDir struct {
	Phys mem.Pa_t
	vm   *VM
}

// NewVM constructs the virtual-memory layer over pmm. The canonical
// kernel page directory is allocated here; callers populate its
// kernel-half entries (via Map) before creating any task, then call
// Lock to freeze the kernel-half PDEs for good.
func NewVM(pmm *mem.PMM) *VM {
	v := &VM{PMM: pmm, frames: make(map[mem.Pa_t]*mem.Pmap_t)}
	kpa := pmm.AllocPage()
	if kpa == 0 {
		panic("out of memory allocating canonical kernel page directory")
	}
	v.Kernel = &PageDir{Phys: kpa, vm: v}
	v.highmem = newHighmemWindow(v)
	return v
}

// Lock freezes the canonical kernel PD's kernel-half entries. Must be
// called once, after all kernel-side page tables needed before user
// tasks run have been installed, and before the first task is created.
func (v *VM) Lock() { v.kernelLocked = true }

func (v *VM) frame(pa mem.Pa_t) *mem.Pmap_t {
	f, ok := v.frames[pa]
	if !ok {
		f = &mem.Pmap_t{}
		v.frames[pa] = f
	}
	return f
}

func (pd *PageDir) pmap() *mem.Pmap_t { return pd.vm.frame(pd.Phys) }

// Entries exposes pd's raw page-directory entries, for callers outside
// vm that need to walk the full table directly -- proc's exit-time
// reclamation, and tests.
func (pd *PageDir) Entries() *mem.Pmap_t { return pd.pmap() }

// Frame exposes the simulated backing content of the PD/PT page at pa,
// for the same callers Entries serves.
func (v *VM) Frame(pa mem.Pa_t) *mem.Pmap_t { return v.frame(pa) }

// NewTaskPageDir allocates a fresh page directory for a new task and
// copies the canonical kernel PD's entries 768..1023 into it bitwise,
// U/S bits untouched, so every kernel mapping (direct map, DMA
// region, kernel stacks) appears identically in every address space.
// The copy plus the kernelLocked freeze is what keeps all PDs in
// agreement: kernel-half entries never change after a task exists.
func (v *VM) NewTaskPageDir() *PageDir {
	pa := v.PMM.AllocPage()
	if pa == 0 {
		return nil
	}
	pd := &PageDir{Phys: pa, vm: v}
	kp := v.Kernel.pmap()
	up := pd.pmap()
	for i := limits.KernelPDEFirst; i <= limits.KernelPDELast; i++ {
		up[i] = kp[i]
	}
	return pd
}

// Map installs a PTE mapping va -> pa with flags in pd, allocating a
// fresh page table if pd's PDE for va is absent. Returns defs.EINVAL
// if va/pa are not page-aligned or the flags would make a kernel-half
// page user-accessible, defs.ENOMEM if a new page table could not be
// allocated.
func (v *VM) Map(pd *PageDir, va Va_t, pa mem.Pa_t, flags mem.Pa_t) defs.Err_t {
	if uint32(va)&uint32(mem.PageOffset) != 0 || pa&mem.PageOffset != 0 {
		return defs.EINVAL
	}
	if uint32(va) >= limits.KernelBase && flags&mem.PTE_U != 0 {
		return defs.EINVAL // kernel-half pages stay supervisor-only
	}
	if err := v.guardKernelWrite(pd, va); err != 0 {
		return err
	}
	dir := pd.pmap()
	pdi := pdeIndex(va)
	pte := dir[pdi]
	if pte&mem.PTE_P == 0 {
		ptpa := v.PMM.AllocPage()
		if ptpa == 0 {
			return defs.ENOMEM
		}
		v.ensureKernelReachable(ptpa)
		dir[pdi] = mem.PageOf(ptpa) | (flags & mem.PTE_FLAGS) | mem.PTE_P
		pte = dir[pdi]
	}
	pt := v.frame(mem.PageOf(pte))
	pt[pteIndex(va)] = mem.PageOf(pa) | (flags & mem.PTE_FLAGS) | mem.PTE_P
	cpu.Invlpg(uint32(va))
	return 0
}

// guardKernelWrite enforces the kernelLocked freeze: once locked, the
// canonical kernel PD's own kernel-half entries may not gain a new
// PDE (doing so would silently desynchronize every already-created
// task's PD from the canonical one).
func (v *VM) guardKernelWrite(pd *PageDir, va Va_t) defs.Err_t {
	if pd != v.Kernel || !v.kernelLocked {
		return 0
	}
	pdi := pdeIndex(va)
	if pdi < limits.KernelPDEFirst {
		return 0
	}
	if v.Kernel.pmap()[pdi]&mem.PTE_P != 0 {
		return 0 // PDE already present; filling in PTEs is fine
	}
	panic("vm: attempted to add a new kernel PDE after kernel PD was locked")
}

// Unmap clears the PTE for va in pd, used by the fork/exit page-table
// reclamation path. It is not an error to unmap an address with no
// mapping.
func (v *VM) Unmap(pd *PageDir, va Va_t) {
	dir := pd.pmap()
	pdi := pdeIndex(va)
	pte := dir[pdi]
	if pte&mem.PTE_P == 0 {
		return
	}
	pt := v.frame(mem.PageOf(pte))
	pt[pteIndex(va)] = 0
	cpu.Invlpg(uint32(va))
}

// Readback returns the raw PTE and whether it is present, for tests
// and for the page-fault handler's inspection of a faulting address.
func (v *VM) Readback(pd *PageDir, va Va_t) (pte mem.Pa_t, present bool) {
	dir := pd.pmap()
	pdePresent := dir[pdeIndex(va)]&mem.PTE_P != 0
	if !pdePresent {
		return 0, false
	}
	pt := v.frame(mem.PageOf(dir[pdeIndex(va)]))
	e := pt[pteIndex(va)]
	return e, e&mem.PTE_P != 0
}

// IdentityMap8M4K fills two page tables to cover 8 MiB starting at
// baseVA with an identity (present, writable, supervisor) mapping --
// used once at boot to make the first 8 MiB universally addressable
// before the direct map is exhaustive.
func (v *VM) IdentityMap8M4K(pd *PageDir, baseVA Va_t) {
	base := uint32(baseVA) &^ uint32(mem.PageOffset)
	for off := uint32(0); off < limits.IdentityMapBytes; off += limits.PageSize {
		va := Va_t(base + off)
		pa := mem.Pa_t(base + off)
		if err := v.Map(pd, va, pa, mem.PTE_P|mem.PTE_W); err != 0 {
			panic("identity map failed during boot")
		}
	}
}
