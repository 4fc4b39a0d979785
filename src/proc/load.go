package proc

import (
	"defs"
	"limits"
	"mem"
	"trap"
	"vm"
)

// Segment is one contiguous region of a user module image to be
// mapped at VA and backed by Data (zero-padded to a page boundary).
// The kernel package's ELF reader produces these; this layer neither
// knows nor cares about object formats.
type Segment struct {
	VA    vm.Va_t
	Data  []byte
	Write bool
	Exec  bool
}

// LoadModuleToUser maps segments into t's page directory, allocates
// and maps a user stack ending at limits.VirtUserStackTop, and seeds
// t.TF so the scheduler can start t at entry in ring3. t must not
// already have been run.
func LoadModuleToUser(v *vm.VM, t *Task, entry vm.Va_t, segments []Segment) defs.Err_t {
	for _, seg := range segments {
		if err := loadSegment(v, t, seg); err != 0 {
			return err
		}
	}

	stackTop := vm.Va_t(limits.VirtUserStackTop)
	stackBase := uint32(stackTop) - limits.UserStackPages*limits.PageSize
	var topPA mem.Pa_t
	for i := 0; i < limits.UserStackPages; i++ {
		pa := v.PMM.AllocPagesType(1, mem.KindUser)
		if pa == 0 {
			return defs.ENOMEM
		}
		topPA = pa
		va := vm.Va_t(stackBase + uint32(i)*limits.PageSize)
		if err := v.Map(t.PD, va, pa, mem.PTE_P|mem.PTE_W|mem.PTE_U); err != 0 {
			return err
		}
	}

	// Initial stack content for the minimal SysV-style startup contract:
	// the word at [esp] is argc=0, above it a NULL argv[0] and a NULL
	// envp[0], then 32 zero words as a guard band against a runtime that
	// walks past the vectors it was given.
	var boot [initialStackWords * 4]byte
	v.WriteBytes(topPA, limits.PageSize-len(boot), boot[:])

	t.TF = &trap.TrapFrame{
		Eip:     uint32(entry),
		Cs:      defs.UserCS,
		Eflags:  defs.FlagIF,
		Useresp: uint32(stackTop) - initialStackWords*4,
		Ss:      defs.UserDS,
		Ds:      defs.UserDS,
		Es:      defs.UserDS,
		Fs:      defs.UserDS,
		Gs:      defs.UserDS,
	}
	return 0
}

// initialStackWords is argc, the argv terminator, the envp terminator,
// and the 32-word guard band.
const initialStackWords = 3 + 32

func loadSegment(v *vm.VM, t *Task, seg Segment) defs.Err_t {
	flags := mem.Pa_t(mem.PTE_P | mem.PTE_U)
	if seg.Write {
		flags |= mem.PTE_W
	}
	base := uint32(seg.VA) &^ uint32(mem.PageOffset)
	end := uint32(seg.VA) + uint32(len(seg.Data))
	for off := base; off < end; off += limits.PageSize {
		pa := v.PMM.AllocPagesType(1, mem.KindUser)
		if pa == 0 {
			return defs.ENOMEM
		}
		if err := v.Map(t.PD, vm.Va_t(off), pa, flags); err != 0 {
			return err
		}
		pageStart := off
		pageEnd := off + limits.PageSize
		copyStart := max(pageStart, uint32(seg.VA))
		copyEnd := min(pageEnd, end)
		if copyStart < copyEnd {
			v.WriteBytes(pa, int(copyStart-pageStart), seg.Data[copyStart-uint32(seg.VA):copyEnd-uint32(seg.VA)])
		}
	}
	return 0
}
