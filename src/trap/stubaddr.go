package trap

import "unsafe"

// StubAddr returns the entry address of one of the no-body asm stubs
// in FaultStubs/IRQStubs/MSIStubs/SyscallStub, for installing into an
// IDT gate via IDT.SetGate. A Go func value is itself a pointer to a
// structure whose first word is the function's entry PC; since these
// stubs are plain top-level functions (never closures), that word is
// exactly the address vectors_386.s's label resolves to.
func StubAddr(fn func()) uint32 {
	return uint32(**(**uintptr)(unsafe.Pointer(&fn)))
}
