package proc

import (
	"limits"
	"mem"
	"vm"
)

// reapQueue holds the IDs of zombie tasks whose heavyweight teardown
// (page tables, kernel stack) has not yet run. Exit only has to make a
// task un-runnable and wake its parent; the scheduler's idle path
// drains this queue and calls Reclaim, keeping teardown off the
// scheduling hot path.
var reapQueue = make(chan TaskID, limits.MaxTasks)

// Exit marks t a zombie, records its exit code, wakes anyone blocked
// in wait() on it, and queues it for reclamation. It does not free any
// memory itself.
func Exit(t *Task, code int) {
	t.State = StateZombie
	t.ExitCode = code
	close(t.WaitCh)
	select {
	case reapQueue <- t.ID:
	default:
		// Queue full: every slot is a real unreclaimed zombie, which
		// only happens if MaxTasks zombies are simultaneously
		// unreaped. A zombie dropped here is never passed to Reclaim,
		// so its pages stay allocated.
	}
}

// Reap returns the next queued zombie ID, if any, without blocking.
func Reap() (TaskID, bool) {
	select {
	case id := <-reapQueue:
		return id, true
	default:
		return 0, false
	}
}

// Reclaim frees every physical page t's page directory reaches:
// kernel stack, per-task page-table pages, and user data pages
// (respecting the copy-on-write refcount -- a page still held by a
// fork sibling is unref'd, not freed outright).
func Reclaim(v *vm.VM, t *Task) {
	dir := t.PD.Entries()
	for pdi := 0; pdi < limits.KernelPDEFirst; pdi++ {
		pde := dir[pdi]
		if pde&mem.PTE_P == 0 {
			continue
		}
		pt := v.Frame(mem.PageOf(pde))
		for pti := 0; pti < 1024; pti++ {
			pte := pt[pti]
			if pte&mem.PTE_P == 0 {
				continue
			}
			pa := mem.PageOf(pte)
			if pte&mem.PTE_COW != 0 {
				if v.PMM.Unref(pa) {
					v.PMM.FreePage(pa)
				}
			} else {
				v.PMM.FreePage(pa)
			}
		}
		v.PMM.FreePage(mem.PageOf(pde))
	}
	v.PMM.FreePage(mem.PageOf(t.PD.Phys))
	// NewTask allocates the stack pages one at a time, so they need not
	// be contiguous: look each one up through its kernel mapping.
	base := uint32(t.KStackTop) - limits.KernelStackPages*limits.PageSize
	for i := 0; i < limits.KernelStackPages; i++ {
		va := vm.Va_t(base + uint32(i)*limits.PageSize)
		if pte, ok := v.Readback(v.Kernel, va); ok {
			v.PMM.FreePage(mem.PageOf(pte))
		}
	}
}
