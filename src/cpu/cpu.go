// Package cpu holds the handful of IA-32 primitives that cannot be
// expressed in Go source: loading the GDT/IDT/task register, port
// I/O, interrupt masking, control-register access, and TLB
// invalidation. They are collected here rather than scattered per
// package so that exactly one file pair carries raw assembly.
package cpu

// Lgdt loads the global descriptor table from the given {limit, base}
// pseudo-descriptor and reloads DS, ES and SS; CS, FS and GS are left
// as they were.
func Lgdt(limit uint16, base uint32)

// Lidt loads the interrupt descriptor table.
func Lidt(limit uint16, base uint32)

// Ltr loads the task register with the given GDT selector.
func Ltr(selector uint16)

// Cli disables maskable interrupts.
func Cli()

// Sti enables maskable interrupts.
func Sti()

// Hlt halts the CPU until the next interrupt.
func Hlt()

// Outb writes a byte to an I/O port.
func Outb(port uint16, val uint8)

// Inb reads a byte from an I/O port.
func Inb(port uint16) uint8

// Outl writes a 32-bit word to an I/O port, used by pci's config-space
// address/data port pair (0xCF8/0xCFC).
func Outl(port uint16, val uint32)

// Inl reads a 32-bit word from an I/O port.
func Inl(port uint16) uint32

// Invlpg invalidates the TLB entry for the given virtual address.
func Invlpg(va uint32)

// LoadCR3 installs pa as the current page-directory base.
func LoadCR3(pa uint32)

// Cr2 reads the faulting linear address the CPU latched on the most
// recent page fault. Valid only when read from the page-fault
// handler before any instruction that could itself fault.
func Cr2() uint32

// SetAC raises EFLAGS.AC. With SMAP enabled this is what permits a
// deliberate kernel access to user-mapped memory; without SMAP it is
// harmless, so the copy-in path toggles it unconditionally.
func SetAC()

// ClearAC lowers EFLAGS.AC again once the user-memory access is done.
func ClearAC()
