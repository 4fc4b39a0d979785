// Package ustr copies syscall arguments between a task's user address
// space and the kernel, byte by byte with a bounded staging limit.
// Every access resolves through the task's page tables explicitly, so
// a bad user pointer surfaces as EFAULT instead of a kernel fault.
//
// Every copy raises EFLAGS.AC for its duration: on a platform with
// SMAP enabled that is the override that makes a deliberate kernel
// access to user pages legal; without SMAP it is harmless and is kept
// as a safety margin. CR4.SMAP itself is never enabled by this core.
package ustr

import (
	"cpu"
	"defs"
	"limits"
	"mem"
	"vm"
)

// translate resolves uva to the physical frame backing it and the
// byte offset within that frame, or defs.EFAULT if uva has no
// present, user-accessible mapping.
func translate(v *vm.VM, pd *vm.PageDir, uva vm.Va_t) (frame mem.Pa_t, offset int, err defs.Err_t) {
	pte, present := v.Readback(pd, uva)
	if !present {
		return 0, 0, defs.EFAULT
	}
	if pte&mem.PTE_U == 0 {
		return 0, 0, defs.EFAULT
	}
	return mem.PageOf(pte), int(uint32(uva) & uint32(mem.PageOffset)), 0
}

// CopyInBytes reads n bytes starting at the user virtual address uva,
// crossing page boundaries as needed. Returns defs.EFAULT if any byte
// falls outside a present, user-accessible mapping, defs.EINVAL if n
// exceeds limits.StagingBufSize.
func CopyInBytes(v *vm.VM, pd *vm.PageDir, uva vm.Va_t, n int) ([]byte, defs.Err_t) {
	if n > limits.StagingBufSize {
		return nil, defs.EINVAL
	}
	cpu.SetAC()
	defer cpu.ClearAC()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		frame, off, err := translate(v, pd, vm.Va_t(uint32(uva)+uint32(i)))
		if err != 0 {
			return nil, err
		}
		out[i] = v.ReadBytes(frame, off, 1)[0]
	}
	return out, 0
}

// CopyOutBytes writes data to the user virtual address uva.
func CopyOutBytes(v *vm.VM, pd *vm.PageDir, uva vm.Va_t, data []byte) defs.Err_t {
	if len(data) > limits.StagingBufSize {
		return defs.EINVAL
	}
	cpu.SetAC()
	defer cpu.ClearAC()
	for i, b := range data {
		frame, off, err := translate(v, pd, vm.Va_t(uint32(uva)+uint32(i)))
		if err != 0 {
			return err
		}
		v.WriteBytes(frame, off, []byte{b})
	}
	return 0
}

// CopyInString reads a NUL-terminated string starting at uva, up to
// limits.StagingBufSize bytes. Returns defs.EINVAL if no NUL is found
// within that bound.
func CopyInString(v *vm.VM, pd *vm.PageDir, uva vm.Va_t) (string, defs.Err_t) {
	cpu.SetAC()
	defer cpu.ClearAC()
	buf := make([]byte, 0, 64)
	for i := 0; i < limits.StagingBufSize; i++ {
		frame, off, err := translate(v, pd, vm.Va_t(uint32(uva)+uint32(i)))
		if err != 0 {
			return "", err
		}
		b := v.ReadBytes(frame, off, 1)[0]
		if b == 0 {
			return string(buf), 0
		}
		buf = append(buf, b)
	}
	return "", defs.EINVAL
}
