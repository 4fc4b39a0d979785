// Package msi allocates MSI interrupt vectors for DMA-capable PCI
// devices, handing out the range
// defs.VecMSILow..defs.VecMSILow+limits.MaxMSIVectors-1, which is
// exactly the set of vectors trap.MSIStubs has entry stubs for.
package msi

import (
	"defs"
	"limits"
	"sync"
)

// Vec identifies one IDT vector reserved for MSI delivery.
type Vec uint32

type vecSet struct {
	sync.Mutex
	avail map[Vec]bool
}

var vecs = newVecSet()

func newVecSet() *vecSet {
	s := &vecSet{avail: make(map[Vec]bool, limits.MaxMSIVectors)}
	for i := 0; i < limits.MaxMSIVectors; i++ {
		s.avail[Vec(defs.VecMSILow+i)] = true
	}
	return s
}

// Alloc reserves and returns an available MSI vector. Panics if none
// remain: a device probe that exhausts the MSI space is a boot-time
// configuration error, not a recoverable one.
func Alloc() Vec {
	vecs.Lock()
	defer vecs.Unlock()
	for v := range vecs.avail {
		delete(vecs.avail, v)
		return v
	}
	panic("msi: no more MSI vectors")
}

// Free releases a vector obtained from Alloc. Panics on a double
// free.
func Free(v Vec) {
	vecs.Lock()
	defer vecs.Unlock()
	if vecs.avail[v] {
		panic("msi: double free")
	}
	vecs.avail[v] = true
}

// Address and Data compute the MSI message address/data pair a PCI
// device's capability registers are programmed with to deliver vector
// v to the local APIC identified by apicID.
func Address(apicID uint32) uint32 {
	const msiAddressBase = 0xFEE00000
	return msiAddressBase | (apicID << 12)
}

func Data(v Vec) uint32 { return uint32(v) }
