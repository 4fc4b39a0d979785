// Package apic models the local APIC and IO-APIC well enough to drive
// the kernel's timer tick and IRQ acknowledgement without real MMIO:
// register windows are plain in-memory arrays rather than a mapped
// physical window, since nothing in this host-level build ever
// executes against the hardware register block.
package apic

// Local APIC register indices, divided by 4 as in lapicw's uint32[]
// addressing.
const (
	regID    = 0x020 / 4
	regVER   = 0x030 / 4
	regTPR   = 0x080 / 4
	regEOI   = 0x0B0 / 4
	regSVR   = 0x0F0 / 4
	regESR   = 0x280 / 4
	regICRLO = 0x300 / 4
	regICRHI = 0x310 / 4
	regTIMER = 0x320 / 4
	regPCINT = 0x340 / 4
	regLINT0 = 0x350 / 4
	regLINT1 = 0x360 / 4
	regERROR = 0x370 / 4
	regTICR  = 0x380 / 4
	regTCCR  = 0x390 / 4
	regTDCR  = 0x3E0 / 4

	numRegs = 0x3E0/4 + 1
)

const (
	svrEnable     = 0x100
	lvtMasked     = 0x10000
	timerPeriodic = 0x20000
	timerDivBy1   = 0x0B
)

// LAPIC is a local APIC's register window.
type LAPIC struct {
	regs [numRegs]uint32
}

// New constructs a LAPIC with every maskable local vector masked, per
// lapicinit's boot-time defaults.
func New() *LAPIC {
	l := &LAPIC{}
	l.regs[regTIMER] = lvtMasked
	l.regs[regLINT0] = lvtMasked
	l.regs[regLINT1] = lvtMasked
	l.regs[regPCINT] = lvtMasked
	return l
}

// Init enables the LAPIC with spuriousVector as its spurious-interrupt
// vector and clears the error status register. There is no cross-CPU
// INIT-deassert broadcast: application processors are never started,
// so only this one LAPIC ever matters.
func (l *LAPIC) Init(spuriousVector uint32) {
	l.regs[regSVR] = svrEnable | spuriousVector
	l.regs[regTDCR] = timerDivBy1
	l.regs[regTIMER] = lvtMasked
	l.regs[regLINT0] = lvtMasked
	l.regs[regLINT1] = lvtMasked
	l.regs[regERROR] = 0
	l.regs[regESR] = 0
	l.regs[regESR] = 0
	l.regs[regEOI] = 0
	l.regs[regTPR] = 0
}

// ID returns this LAPIC's hardware ID.
func (l *LAPIC) ID() uint32 { return l.regs[regID] >> 24 }

// EOI acknowledges the in-service interrupt.
func (l *LAPIC) EOI() { l.regs[regEOI] = 0 }

// EOIFunc adapts EOI to trap.Dispatcher.SetEOI's signature; the irq
// number is unused since lapicw's EOI register always acknowledges
// whichever vector is in service.
func (l *LAPIC) EOIFunc() func(irq uint32) {
	return func(uint32) { l.EOI() }
}

// StartTimer programs the timer LVT entry to fire vector periodically
// every count bus cycles, per lapicinit's commented-out periodic-timer
// setup (enabled here since this core's scheduler needs IRQ0 to run).
func (l *LAPIC) StartTimer(vector uint32, count uint32) {
	l.regs[regTICR] = count
	l.regs[regTIMER] = timerPeriodic | vector
}

// StopTimer masks the timer LVT entry.
func (l *LAPIC) StopTimer() { l.regs[regTIMER] = lvtMasked }
