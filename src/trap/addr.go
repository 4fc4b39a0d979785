package trap

import "unsafe"

func addrOf(t *IDT) uintptr { return uintptr(unsafe.Pointer(t)) }
