package seg

// TSS is the single hardware task-state segment shared by every task.
// Only the fields the kernel actually uses on an IA-32 software
// multitasking design are meaningful: esp0/ss0 for the ring3->ring0
// stack switch on interrupt/syscall entry. All other fields exist
// only because the hardware TSS format requires them to be present.
type TSS struct {
	prevTask           uint16
	_                  uint16
	Esp0               uint32
	Ss0                uint16
	_                  uint16
	esp1               uint32
	ss1                uint16
	_                  uint16
	esp2               uint32
	ss2                uint16
	_                  uint16
	cr3                uint32
	eip                uint32
	eflags             uint32
	eax, ecx, edx, ebx uint32
	esp, ebp, esi, edi uint32
	es, _              uint16
	cs, _              uint16
	ss, _              uint16
	ds, _              uint16
	fs, _              uint16
	gs, _              uint16
	ldt, _             uint16
	trap               uint16
	iomapBase          uint16
}

// SetKernelStack programs the ring0 stack the CPU switches to on any
// interrupt or syscall taken while running a ring3 task. Called on
// every context switch, before control can head back toward ring3.
func (t *TSS) SetKernelStack(esp0 uint32) {
	t.Esp0 = esp0 // Ss0 was set once by NewTSS and never changes
}

// NewTSS constructs a TSS with the fixed ring0 stack segment selector
// and an initial (pre-task) stack pointer of 0.
func NewTSS(kernelDS uint16) *TSS {
	return &TSS{Ss0: kernelDS}
}
