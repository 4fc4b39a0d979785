package trap

// TrapFrame mirrors the register image the common entry stub pushes
// onto the interrupted task's kernel stack before calling into Go,
// field order matching increasing stack address (tf itself points at
// Gs, the last thing pushed): the segment registers saved first using
// a scratch general register, then the general-purpose registers,
// then the vector number and (real or zeroed) hardware error code,
// then the CPU-pushed eip/cs/eflags and, only on a privilege-level
// change, useresp/ss. The asm stubs and trapret depend on this exact
// order; never reorder fields.
type TrapFrame struct {
	Gs, Fs, Es, Ds                              uint32
	Edi, Esi, Ebp, espDummy, Ebx, Edx, Ecx, Eax uint32
	Trapno                                      uint32
	Err                                         uint32
	Eip, Cs, Eflags                             uint32
	Useresp, Ss                                 uint32
}

// FrameBytes is the TrapFrame's exact on-stack footprint: 17 32-bit
// slots. The entry stubs, trapret, and the scheduler's first-entry
// stack seeding all depend on this value; it changes only if the
// frame layout itself does.
const FrameBytes = 17 * 4

// FromUserMode reports whether this trap interrupted ring3 code, in
// which case Useresp/Ss hold the interrupted user stack.
func (tf *TrapFrame) FromUserMode() bool { return tf.Cs&3 == 3 }
