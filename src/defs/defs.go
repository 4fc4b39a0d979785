// Package defs holds error sentinels and device/vector constants shared
// across the kernel core. Nothing here depends on any other kernel
// package; everything else depends on defs.
package defs

// Err_t is the kernel's error type: zero means success, a negative
// value is one of the sentinels below. It is never wrapped in a Go
// error interface -- syscalls and internal kernel calls alike return
// it as a plain value, matching the convention the source C kernel
// uses for int return codes.
type Err_t int

// Syscall and internal error sentinels.
const (
	EFAULT  Err_t = -1 /// bad user pointer
	ENOMEM  Err_t = -2 /// allocator exhausted
	EINVAL  Err_t = -3 /// bad argument
	ENOHEAP Err_t = -4 /// out of kernel heap during a retryable op
	EBADF   Err_t = -5 /// bad file descriptor
	ENOSYS  Err_t = -6 /// unknown syscall number
	EAGAIN  Err_t = -7 /// would block, caller should retry
)

// IDT vector ranges.
const (
	VecFault0  = 0   /// first CPU fault/trap vector
	VecFault31 = 31  /// last CPU fault/trap vector
	VecIRQ0    = 32  /// first legacy IRQ vector (IOAPIC redirected)
	VecIRQ1    = 33  /// keyboard
	VecIRQ3    = 35  /// COM2, not wired by the core
	VecIRQ15   = 47  /// last legacy IRQ vector
	VecMSILow  = 48  /// first MSI/arbitrary vector
	VecMSIHigh = 255 /// last MSI/arbitrary vector
	VecSyscall = 0x80
)

// Named fault vectors used by trap's dispatch switch.
const (
	TrapDivide    = 0
	TrapDoubleFlt = 8
	TrapGPFault   = 13
	TrapPageFault = 14
	TrapSIMD      = 19
)

// Segment selectors: descriptor index shifted left by 3, with the RPL
// folded in for user selectors. seg.GDT installs the descriptors
// these index.
const (
	SelNull  = 0x00
	KernelCS = 0x08
	KernelDS = 0x10
	UserCS   = 0x18 | 3
	UserDS   = 0x20 | 3
	SelTSS   = 0x28
)

// EFLAGS.IF, the only flag bit the core sets explicitly when priming a
// trap frame for first entry to user mode.
const FlagIF uint32 = 1 << 9

// Device identifiers for the handful of devices the core talks to
// directly. There is no filesystem device-number space behind these;
// they only tag diagnostic output.
const (
	DevConsole = 1
	DevProf    = 2 /// profiling sample sink, consumed by cmd/kprofdump
)
