// Package proc implements the task model: task creation, user module
// loading, fork with copy-on-write, and exit. One task owns one
// address space; there is no thread model sharing a page directory.
package proc

import (
	"accnt"
	"defs"
	"limits"
	"mem"
	"trap"
	"vm"
)

// TaskID identifies a task. 0 is never a valid ID (it is reserved as
// the PMM-style "none" sentinel).
type TaskID uint32

// State is a task's scheduling state. Transitions are
// Created -> Runnable/Running -> {Runnable, Blocked, Zombie} and
// Blocked -> Runnable; a Zombie is removed from the scheduler before
// its kernel stack is reclaimed. Created doubles as the first-entry
// marker: a task dispatched while still Created takes the
// iret-into-trap-frame path rather than the cooperative stack switch,
// so no separate first-run flag is needed.
type State int

const (
	StateCreated State = iota
	StateRunnable
	StateRunning
	StateBlocked
	StateZombie
)

// Task is one schedulable unit: a page directory, a kernel stack, a
// saved register frame, and bookkeeping.
type Task struct {
	ID     TaskID
	PD     *vm.PageDir
	TF     *trap.TrapFrame
	State  State
	Parent TaskID

	KStackPhys mem.Pa_t
	KStackTop  vm.Va_t

	// KSP is the saved kernel stack pointer sched's switchTo primitive
	// reads/writes across a cooperative context switch. A freshly
	// created task's KSP points at stack top minus one trap frame: the
	// slot its synthetic first-entry TrapFrame occupies, so the
	// scheduler's first dispatch can jump straight to trapret over it
	// (see sched/switch_386.s).
	KSP uint32

	Acc accnt.Accnt

	ExitCode int
	// WaitCh is closed by Exit and observed by a parent blocked in
	// wait(); left nil for tasks no one can wait for (the idle task).
	WaitCh chan struct{}
}

// ReserveKernelStackArea pre-populates the page directory entries that
// will eventually cover every task's kernel stack slot. It must run
// during boot, before vm.VM.Lock is called: once locked, the canonical
// kernel PD may never gain a new PDE (see vm.VM.guardKernelWrite), so
// the whole slot range's page tables have to already exist by then.
// Individual PTEs within that range are still filled in lazily, one
// task at a time, by NewTask.
func ReserveKernelStackArea(v *vm.VM) {
	slotBytes := uint32(limits.KernelStackSlotPages) * limits.PageSize
	lastSlotVA := vm.Va_t(limits.KernelStackBase + (limits.MaxTasks-1)*slotBytes)
	for _, va := range []vm.Va_t{vm.Va_t(limits.KernelStackBase), lastSlotVA} {
		pa := v.PMM.AllocPage()
		if pa == 0 {
			panic("proc: out of memory reserving kernel stack area")
		}
		if err := v.Map(v.Kernel, va, pa, mem.PTE_P|mem.PTE_W); err != 0 {
			panic("proc: failed to reserve kernel stack area")
		}
		v.Unmap(v.Kernel, va) // PDE now exists; PTE content is irrelevant until NewTask fills it in
	}
}

func kstackSlot(id TaskID) vm.Va_t {
	slotBytes := uint32(limits.KernelStackSlotPages) * limits.PageSize
	return vm.Va_t(limits.KernelStackBase + uint32(id)*slotBytes)
}

// NewTask allocates a page directory and kernel stack for id and
// returns a freshly constructed Task in StateCreated, which the
// scheduler already treats as runnable. Callers install TF before
// handing it to the scheduler.
func NewTask(v *vm.VM, id TaskID) (*Task, defs.Err_t) {
	pd := v.NewTaskPageDir()
	if pd == nil {
		return nil, defs.ENOMEM
	}
	base := kstackSlot(id)
	var firstPA mem.Pa_t
	for i := 0; i < limits.KernelStackPages; i++ {
		pa := v.PMM.AllocPage()
		if pa == 0 {
			return nil, defs.ENOMEM
		}
		if i == 0 {
			firstPA = pa
		}
		va := vm.Va_t(uint32(base) + uint32(i)*limits.PageSize)
		if err := v.Map(v.Kernel, va, pa, mem.PTE_P|mem.PTE_W); err != 0 {
			return nil, err
		}
	}
	top := vm.Va_t(uint32(base) + limits.KernelStackPages*limits.PageSize)
	return &Task{
		ID:         id,
		PD:         pd,
		State:      StateCreated,
		KStackPhys: firstPA,
		KStackTop:  top,
		KSP:        uint32(top) - trap.FrameBytes,
		WaitCh:     make(chan struct{}),
	}, 0
}
