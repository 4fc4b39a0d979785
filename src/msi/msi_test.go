package msi

import (
	"defs"
	"limits"
	"testing"
)

func TestAllocReturnsDistinctVectorsInRange(t *testing.T) {
	vecs = newVecSet()
	seen := map[Vec]bool{}
	for i := 0; i < limits.MaxMSIVectors; i++ {
		v := Alloc()
		if v < defs.VecMSILow || v > defs.VecMSIHigh {
			t.Fatalf("Alloc() = %d, out of MSI range", v)
		}
		if seen[v] {
			t.Fatalf("Alloc() returned duplicate vector %d", v)
		}
		seen[v] = true
	}
}

func TestAllocPanicsWhenExhausted(t *testing.T) {
	vecs = newVecSet()
	for i := 0; i < limits.MaxMSIVectors; i++ {
		Alloc()
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on exhaustion")
		}
	}()
	Alloc()
}

func TestFreePanicsOnDoubleFree(t *testing.T) {
	vecs = newVecSet()
	v := Alloc()
	Free(v)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	Free(v)
}

func TestAddressEncodesAPICID(t *testing.T) {
	if got := Address(2); got != 0xFEE02000 {
		t.Fatalf("Address(2) = 0x%x, want 0xFEE02000", got)
	}
}
