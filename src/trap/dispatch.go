package trap

import (
	"defs"
	"fmt"
)

// Handler processes one trap. Fault and syscall handlers run with
// interrupts still disabled; IRQ handlers may re-enable them once the
// source is acknowledged.
type Handler func(tf *TrapFrame)

// Dispatcher routes a vector number to its registered handler. One
// Dispatcher instance backs the whole kernel; commonTrap (called from
// the asm entry stubs) forwards into it.
type Dispatcher struct {
	faults      map[uint32]Handler
	irqs        map[uint32]Handler
	syscall     Handler
	eoi         func(irq uint32)
	takeResched func() bool
	schedule    func()
}

var live = &Dispatcher{
	faults: make(map[uint32]Handler),
	irqs:   make(map[uint32]Handler),
}

// Default returns the single live dispatcher the asm entry stubs call
// into.
func Default() *Dispatcher { return live }

// RegisterFault installs the handler for a CPU exception vector
// (0-31), e.g. defs.TrapPageFault.
func (d *Dispatcher) RegisterFault(vector uint32, h Handler) { d.faults[vector] = h }

// RegisterIRQ installs the handler for a hardware interrupt vector,
// defs.VecIRQ0..defs.VecIRQ15 or an MSI vector in
// defs.VecMSILow..defs.VecMSIHigh.
func (d *Dispatcher) RegisterIRQ(vector uint32, h Handler) { d.irqs[vector] = h }

// RegisterSyscall installs the single handler for defs.VecSyscall.
func (d *Dispatcher) RegisterSyscall(h Handler) { d.syscall = h }

// SetEOI installs the callback used to acknowledge an IRQ's interrupt
// controller (LAPIC/IOAPIC) after its handler returns. Kept as an
// injected callback, not a direct apic import, so trap has no
// dependency on its collaborators.
func (d *Dispatcher) SetEOI(eoi func(irq uint32)) { d.eoi = eoi }

// SetResched installs the scheduler linkage the common exit path
// consults when a trap is about to return to ring3: take reports and
// clears need_resched, schedule hands the CPU to the next task (and
// may never return to this thread of control). Injected callbacks for
// the same layering reason as SetEOI.
func (d *Dispatcher) SetResched(take func() bool, schedule func()) {
	d.takeResched = take
	d.schedule = schedule
}

// Dispatch routes tf to the handler registered for tf.Trapno. An
// unhandled CPU fault is fatal: it is logged and the kernel panics
// rather than returning to possibly-corrupt state. An unhandled IRQ
// is acknowledged and otherwise ignored -- spurious or not-yet-wired
// interrupts must not wedge the interrupt controller.
func (d *Dispatcher) Dispatch(tf *TrapFrame) {
	switch {
	case tf.Trapno == defs.VecSyscall:
		if d.syscall == nil {
			panic("trap: syscall vector fired with no handler registered")
		}
		d.syscall(tf)
	case tf.Trapno < defs.VecIRQ0:
		h, ok := d.faults[tf.Trapno]
		if !ok {
			fmt.Printf("trap: unhandled fault %d at eip=0x%x err=0x%x\n", tf.Trapno, tf.Eip, tf.Err)
			panic("unhandled CPU fault")
		}
		h(tf)
	default:
		h, ok := d.irqs[tf.Trapno]
		if ok {
			h(tf)
		}
		if d.eoi != nil {
			d.eoi(tf.Trapno)
		}
	}
}

// commonTrap is called by the asm common stub with a pointer to the
// TrapFrame it just built on the current kernel stack. After the
// handler runs it applies the exit-path rule: when about to iret back
// to ring3 with need_resched pending, clear it and call the scheduler
// instead of resuming the interrupted task directly. Returning from
// commonTrap is what lands in trapret.
func commonTrap(tf *TrapFrame) {
	live.Dispatch(tf)
	if tf.FromUserMode() && live.takeResched != nil && live.takeResched() {
		live.schedule()
	}
}
