package kernel

import (
	"bytes"
	"debug/elf"

	"defs"
	"limits"
	"mem"
	"proc"
	"vm"
)

// maxSegmentBytes rejects a module whose program header asks for an
// implausible in-memory size before any allocation happens.
const maxSegmentBytes = 64 * 1024 * 1024

// parseUserELF validates img as a little-endian 32-bit x86 executable
// and flattens its PT_LOAD segments into the loader's segment list,
// zero-extending each to its full memory size so .bss arrives
// pre-cleared.
func parseUserELF(img []byte) (vm.Va_t, []proc.Segment, defs.Err_t) {
	f, ferr := elf.NewFile(bytes.NewReader(img))
	if ferr != nil {
		return 0, nil, defs.EINVAL
	}
	defer f.Close()
	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB ||
		f.Machine != elf.EM_386 || f.Type != elf.ET_EXEC {
		return 0, nil, defs.EINVAL
	}
	var segs []proc.Segment
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if p.Memsz > maxSegmentBytes || p.Filesz > p.Memsz {
			return 0, nil, defs.EINVAL
		}
		data := make([]byte, p.Memsz)
		if p.Filesz > 0 {
			if _, rerr := p.ReadAt(data[:p.Filesz], 0); rerr != nil {
				return 0, nil, defs.EINVAL
			}
		}
		segs = append(segs, proc.Segment{
			VA:    vm.Va_t(p.Vaddr),
			Data:  data,
			Write: p.Flags&elf.PF_W != 0,
			Exec:  p.Flags&elf.PF_X != 0,
		})
	}
	if len(segs) == 0 {
		return 0, nil, defs.EINVAL
	}
	return vm.Va_t(f.Entry), segs, 0
}

// readPhys assembles n bytes of physical memory starting at pa,
// crossing frame boundaries (vm.VM.ReadBytes is per-frame).
func (k *Kernel) readPhys(pa mem.Pa_t, n int) []byte {
	out := make([]byte, 0, n)
	for n > 0 {
		off := int(pa & mem.PageOffset)
		chunk := limits.PageSize - off
		if chunk > n {
			chunk = n
		}
		out = append(out, k.V.ReadBytes(mem.PageOf(pa), off, chunk)...)
		pa += mem.Pa_t(chunk)
		n -= chunk
	}
	return out
}
