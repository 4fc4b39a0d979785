package kernel

import (
	"fmt"

	"caller"
	"cpu"
	"defs"
	"proc"
	"trap"
	"vm"
)

// Page-fault error-code bits, per the IA-32 exception frame.
const (
	pfPresent = 1 << 0
	pfWrite   = 1 << 1
	pfUser    = 1 << 2
)

func (k *Kernel) installTrapHandlers(d *trap.Dispatcher) {
	d.RegisterFault(defs.TrapPageFault, k.pageFault)
	for _, vec := range []uint32{defs.TrapDivide, defs.TrapDoubleFlt, defs.TrapGPFault, defs.TrapSIMD} {
		d.RegisterFault(vec, k.hardFault)
	}
	d.RegisterIRQ(defs.VecIRQ0, k.timerTick)
	d.RegisterIRQ(defs.VecIRQ1, k.keyboardIntr)
}

// pageFault services vector 14. A write fault is first offered to the
// copy-on-write path: if the faulting address carries a COW mapping in
// the current task's directory, the page is copied or upgraded and
// the faulting instruction simply retries. Anything else is
// unrecoverable: a ring3 fault terminates the task with exit code -1,
// a ring0 fault halts the machine.
func (k *Kernel) pageFault(tf *trap.TrapFrame) {
	va := vm.Va_t(k.readCR2())
	if tf.Err&pfWrite != 0 {
		if cur, ok := k.Sched.Current(); ok {
			if k.V.HandleCOWFault(cur.PD, va) == 0 {
				return
			}
		}
	}
	if tf.FromUserMode() {
		k.killCurrent("page fault", tf, uint32(va))
		return
	}
	k.fatal("page fault", tf, uint32(va))
}

// hardFault services divide error, double fault, general protection,
// and SIMD: kill the task or halt the machine depending on the
// interrupted ring.
func (k *Kernel) hardFault(tf *trap.TrapFrame) {
	if tf.FromUserMode() {
		k.killCurrent("fault", tf, 0)
		return
	}
	k.fatal("fault", tf, 0)
}

// timerTick services IRQ0: count the tick and charge it to whoever
// was interrupted. Quantum exhaustion sets need_resched inside Tick;
// the common exit path acts on it on the way back to ring3.
func (k *Kernel) timerTick(tf *trap.TrapFrame) {
	k.Ticks++
	k.Sched.Tick(tf.FromUserMode())
}

// keyboardIntr services IRQ1: drain the controller's output port into
// the byte queue and wake any task blocked in the getchar syscall.
func (k *Kernel) keyboardIntr(tf *trap.TrapFrame) {
	const kbdDataPort = 0x60
	k.Keyboard.Push(cpu.Inb(kbdDataPort))
	k.Sys.WakeKeyboardWaiters()
}

// killCurrent terminates the task that took an unrecoverable ring3
// trap, with exit code -1, and leaves need_resched set so the exit
// path dispatches a survivor instead of iret-ing into the corpse.
func (k *Kernel) killCurrent(what string, tf *trap.TrapFrame, cr2 uint32) {
	cur, ok := k.Sched.Current()
	if !ok {
		k.fatal(what, tf, cr2)
	}
	fmt.Printf("kernel: task %d %s trap=%d err=0x%x eip=0x%x cr2=0x%x, terminating\n",
		cur.ID, what, tf.Trapno, tf.Err, tf.Eip, cr2)
	proc.Exit(cur, -1)
	k.Sched.RequestResched()
}

// fatal reports a kernel-mode fault -- trap number, faulting address,
// saved registers, and the Go call stack of the dispatch path -- then
// parks the CPU in a cli/hlt loop. It never returns.
func (k *Kernel) fatal(what string, tf *trap.TrapFrame, cr2 uint32) {
	fmt.Printf("kernel: %s in kernel mode: trap=%d err=0x%x eip=0x%x cr2=0x%x\n",
		what, tf.Trapno, tf.Err, tf.Eip, cr2)
	fmt.Printf("kernel: eax=0x%x ebx=0x%x ecx=0x%x edx=0x%x ebp=0x%x\n",
		tf.Eax, tf.Ebx, tf.Ecx, tf.Edx, tf.Ebp)
	// Dump the bytes around the faulting instruction when the direct
	// map reaches them; cmd/kdisasm decodes these lines off a captured
	// console log.
	start := tf.Eip &^ 0xF
	if pa, ok := k.V.VirtToPhys(vm.Va_t(start)); ok {
		fmt.Printf("code: 0x%08x: % x\n", start, k.readPhys(pa, 32))
	}
	caller.Dump("kernel", caller.Capture(1, 16))
	halt()
}
