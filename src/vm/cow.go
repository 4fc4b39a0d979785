package vm

import (
	"cpu"
	"defs"
	"limits"
	"mem"
)

// CloneUserCOW builds dst's user-half (PDE 0..KernelPDEFirst-1) page
// tables as an independent copy of src's, downgrading every writable
// leaf mapping in both src and dst to read-only-plus-PTE_COW and
// bumping its physical page's reference count. The two directories end
// up pointing at the same physical data pages until one side takes a
// write fault, at which point HandleCOWFault copies the page and
// restores write access to just that side.
func (v *VM) CloneUserCOW(dst, src *PageDir) defs.Err_t {
	srcDir := src.pmap()
	dstDir := dst.pmap()
	for pdi := 0; pdi < limits.KernelPDEFirst; pdi++ {
		spde := srcDir[pdi]
		if spde&mem.PTE_P == 0 {
			continue
		}
		dstPTPA := v.PMM.AllocPage()
		if dstPTPA == 0 {
			return defs.ENOMEM
		}
		dstDir[pdi] = mem.PageOf(dstPTPA) | (spde & mem.PTE_FLAGS) | mem.PTE_P

		srcPT := v.frame(mem.PageOf(spde))
		dstPT := v.frame(mem.PageOf(dstPTPA))
		for pti := 0; pti < 1024; pti++ {
			spte := srcPT[pti]
			if spte&mem.PTE_P == 0 {
				continue
			}
			newPTE := spte
			if spte&mem.PTE_W != 0 {
				newPTE = (spte &^ mem.PTE_W) | mem.PTE_COW
				srcPT[pti] = newPTE
				// The parent may still hold a writable TLB entry for
				// this page; drop it or the write protection is
				// theater.
				cpu.Invlpg(uint32(pdi)<<22 | uint32(pti)<<12)
			}
			dstPT[pti] = newPTE
			v.PMM.Ref(mem.PageOf(spte))
		}
	}
	return 0
}

// HandleCOWFault services a page fault at va in pd whose PTE is marked
// PTE_COW: if the underlying page is still shared (refcount > 1), a
// fresh page is allocated and the fault's half gets its own private,
// writable copy; if the fork sibling already dropped its reference,
// the page is simply upgraded back to writable in place. Returns
// defs.EFAULT if va has no COW mapping (a genuine write-to-read-only
// fault, not a copy-on-write one).
func (v *VM) HandleCOWFault(pd *PageDir, va Va_t) defs.Err_t {
	dir := pd.pmap()
	pdi := pdeIndex(va)
	pde := dir[pdi]
	if pde&mem.PTE_P == 0 {
		return defs.EFAULT
	}
	pt := v.frame(mem.PageOf(pde))
	pti := pteIndex(va)
	pte := pt[pti]
	if pte&mem.PTE_P == 0 || pte&mem.PTE_COW == 0 {
		return defs.EFAULT
	}
	oldPA := mem.PageOf(pte)
	if !v.PMM.Unref(oldPA) {
		// Still shared: copy to a new private page.
		newPA := v.PMM.AllocPagesType(1, mem.KindUser)
		if newPA == 0 {
			v.PMM.Ref(oldPA) // undo the Unref above; allocation failed
			return defs.ENOMEM
		}
		copy(v.dataPage(newPA)[:], v.dataPage(oldPA)[:])
		pt[pti] = mem.PageOf(newPA) | (pte &^ (mem.PTE_ADDR | mem.PTE_COW)) | mem.PTE_W
		cpu.Invlpg(uint32(va))
		return 0
	}
	// We held the last reference: reclaim it as our own private page.
	pt[pti] = (pte &^ mem.PTE_COW) | mem.PTE_W
	cpu.Invlpg(uint32(va))
	return 0
}
