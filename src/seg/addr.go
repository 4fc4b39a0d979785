package seg

import "unsafe"

func uintptrOf(p *GDT) uintptr { return uintptr(unsafe.Pointer(p)) }

// Descriptor returns the base/limit pair NewGDT needs to build this
// TSS's system descriptor: its own address and the last valid byte
// offset of the hardware-defined format.
func (t *TSS) Descriptor() (base uint32, limit uint32) {
	return uint32(uintptr(unsafe.Pointer(t))), uint32(unsafe.Sizeof(*t)) - 1
}
