// Package sched implements the round-robin scheduler: a circular run
// queue, tick-driven preemption, and the cooperative context switch
// between task kernel stacks. Fairness is purely positional; there
// are no priorities.
package sched

import (
	"cpu"
	"htable"
	"limits"
	"proc"
	"vm"
)

func hashTaskID(id proc.TaskID) uint32 { return uint32(id) }

// Scheduler owns the run queue and the currently running task. A
// single logical CPU runs all tasks, so there is exactly one of these
// per kernel image. The task arena is a htable.Htable rather than a
// builtin map: kernel-resident bookkeeping stays an explicit,
// inspectable structure instead of leaning on the runtime's hash map.
type Scheduler struct {
	v     *vm.VM
	tasks *htable.Htable[proc.TaskID, *proc.Task]
	order []proc.TaskID
	pos   int

	current proc.TaskID
	quantum int

	// selfSP is the scheduler loop's own saved stack pointer, the
	// "from" context switchTo uses when a running task yields back
	// into Run rather than into another task directly.
	selfSP uint32

	// needResched is set by the timer tick on a quantum boundary or by
	// the yield syscall, and consulted and cleared by the common
	// trap-exit path before it decides whether to call Schedule.
	needResched bool

	// onSwitch, if set, runs just before switching into a task. Kernel
	// wiring uses it to reprogram the TSS's esp0 with the incoming
	// task's kernel stack top, so a trap taken in the new task lands on
	// its own stack rather than the previous task's. Left as an
	// injected callback, not a direct seg import, so sched has no
	// dependency on its collaborators.
	onSwitch func(next *proc.Task)
}

// SetSwitchHook installs the callback run() invokes with the
// about-to-run task just before the context switch.
func (s *Scheduler) SetSwitchHook(h func(next *proc.Task)) { s.onSwitch = h }

// RequestResched sets need_resched, used by the timer IRQ path and the
// yield syscall.
func (s *Scheduler) RequestResched() { s.needResched = true }

// TakeResched reports and clears need_resched in one step, the way the
// common exit path consumes it.
func (s *Scheduler) TakeResched() bool {
	v := s.needResched
	s.needResched = false
	return v
}

// New constructs a scheduler over v's address spaces, with the task
// arena sized for the kernel's fixed task capacity.
func New(v *vm.VM) *Scheduler {
	return &Scheduler{v: v, tasks: htable.New[proc.TaskID, *proc.Task](limits.MaxTasks, hashTaskID)}
}

// Add enrolls t in the run queue.
func (s *Scheduler) Add(t *proc.Task) {
	if _, ok := s.tasks.Get(t.ID); ok {
		return
	}
	s.tasks.Put(t.ID, t)
	s.order = append(s.order, t.ID)
}

// Remove drops id from the run queue, used once its task has been
// reclaimed.
func (s *Scheduler) Remove(id proc.TaskID) {
	s.tasks.Del(id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			if s.pos > i {
				s.pos--
			}
			return
		}
	}
}

// Get looks up a task by ID without affecting scheduling order.
func (s *Scheduler) Get(id proc.TaskID) (*proc.Task, bool) {
	return s.tasks.Get(id)
}

// Current returns the presently running task, if any.
func (s *Scheduler) Current() (*proc.Task, bool) {
	return s.Get(s.current)
}

// SetCurrent marks id as the running task without performing a
// context switch. Boot wiring uses this once to seat the very first
// task before interrupts are enabled; a syscall trap's Dispatch also
// relies on Current reporting whichever task was already executing
// when the trap fired, since the CPU is already in that task's
// context by the time usys runs.
func (s *Scheduler) SetCurrent(id proc.TaskID) {
	if t, ok := s.tasks.Get(id); ok {
		s.current = id
		t.State = proc.StateRunning
	}
}

// Len reports how many tasks are enrolled, live or zombie.
func (s *Scheduler) Len() int { return len(s.order) }

// Each calls f for every enrolled task, in unspecified order.
func (s *Scheduler) Each(f func(*proc.Task)) {
	s.tasks.Each(func(_ proc.TaskID, t *proc.Task) { f(t) })
}

// PickNext walks the circular run queue starting just past the last
// task examined and returns the first runnable (StateRunnable or
// never-dispatched StateCreated) task found, or nil if none is
// runnable -- the idle condition; the caller halts until an
// interrupt makes something runnable, since there is no dedicated
// idle task.
func (s *Scheduler) PickNext() *proc.Task {
	n := len(s.order)
	for i := 0; i < n; i++ {
		s.pos = (s.pos + 1) % n
		t, ok := s.tasks.Get(s.order[s.pos])
		if ok && (t.State == proc.StateRunnable || t.State == proc.StateCreated) {
			return t
		}
	}
	return nil
}

// Tick accounts one timer interrupt against the running task's
// quantum and its accounting, reporting whether the quantum has been
// exhausted and a reschedule should happen.
func (s *Scheduler) Tick(fromUserMode bool) bool {
	t, ok := s.Current()
	if !ok {
		return false
	}
	t.Acc.Tick(fromUserMode)
	s.quantum--
	if s.quantum <= 0 {
		s.quantum = limits.TimeSliceTicks
		s.needResched = true
		return true
	}
	return false
}

// Block moves id out of the run queue's consideration until Unblock is
// called, used by a task waiting on a channel other than the plain
// scheduler quantum (e.g. proc's WaitCh).
func (s *Scheduler) Block(id proc.TaskID) {
	if t, ok := s.tasks.Get(id); ok {
		t.State = proc.StateBlocked
	}
}

// Unblock makes id eligible for PickNext again.
func (s *Scheduler) Unblock(id proc.TaskID) {
	if t, ok := s.tasks.Get(id); ok && t.State == proc.StateBlocked {
		t.State = proc.StateRunnable
	}
}

// switchTo saves the caller's callee-saved registers and stack pointer
// into *oldSP, loads newSP, and resumes whatever context that stack
// holds: the function's own RET pops the other side's return address.
// A register-preserving stack swap has no Go-source representation,
// so it lives in switch_386.s.
func switchTo(oldSP *uint32, newSP uint32)

// firstEntry abandons the current kernel stack, points ESP at a
// freshly seeded TrapFrame, and falls into trapret, which pops it and
// irets into ring3. Used only for a task's very first dispatch; it
// never returns.
func firstEntry(ksp uint32)

// run performs one scheduling decision: point the hardware at next's
// address space and kernel stack and switch into it. A task that has
// run before is resumed through switchTo and run returns once it
// yields back; a never-dispatched task takes the first-entry path,
// which irets directly into the task's synthetic trap frame and does
// not return here.
func (s *Scheduler) run(next *proc.Task) {
	s.current = next.ID
	first := next.State == proc.StateCreated
	next.State = proc.StateRunning
	s.quantum = limits.TimeSliceTicks
	if s.onSwitch != nil {
		s.onSwitch(next)
	}
	cpu.LoadCR3(uint32(next.PD.Phys))
	if first {
		firstEntry(next.KSP)
	}
	switchTo(&s.selfSP, next.KSP)
}

// Schedule is the scheduler's entry point, called from the timer IRQ
// handler (a quantum expired) or directly by a task that is about to
// block. It picks and runs the next task; a nil PickNext (every task
// blocked or reclaimed) is the idle condition, where zombies are
// reaped and the CPU halts until the next interrupt instead of
// spinning.
func (s *Scheduler) Schedule() {
	if prev, ok := s.Current(); ok && prev.State == proc.StateRunning {
		prev.State = proc.StateRunnable
	}
	for {
		next := s.PickNext()
		if next == nil {
			s.ReapZombies()
			cpu.Sti()
			cpu.Hlt()
			cpu.Cli()
			continue
		}
		s.run(next)
		return
	}
}
