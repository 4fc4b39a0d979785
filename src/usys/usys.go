// Package usys implements the system-call dispatch table: vector
// 0x80, arguments in {eax=number, ebx, ecx, edx}, result written back
// to the trap frame's eax.
package usys

import (
	"circbuf"
	"console"
	"encoding/binary"
	"mem"
	"proc"
	"sched"
	"trap"
	"ustr"
	"vm"
)

// Syscall numbers.
const (
	SysWrite          = 1
	SysExit           = 2
	SysYield          = 3
	SysGetMemStats    = 4
	SysReadKernelMem  = 5
	SysKeyboardGetc   = 6
	SysKeyboardPoll   = 7
	SysPutchar        = 8
	SysGetFramebuffer = 9
	SysWriteFD        = 10
	SysFork           = 11
)

const errSentinel = uint32(0xFFFFFFFF) // -1: every failed call returns this

// Framebuffer is the user-visible shape syscall 9 fills in, sourced
// from the Multiboot-2 framebuffer tag at boot. Kept independent of
// the mboot package's own tag representation so usys has no
// dependency on its collaborators, matching trap's layering.
type Framebuffer struct {
	Addr, W, H, Pitch, Bpp uint32
}

// Syscalls is the live dispatch table: everything a handler needs to
// service a call, bound together at boot time and registered with
// trap.Dispatcher.RegisterSyscall.
type Syscalls struct {
	V        *vm.VM
	Sched    *sched.Scheduler
	Console  *console.Console
	Keyboard *circbuf.Circbuf
	FB       Framebuffer

	nextTaskID proc.TaskID

	// kbdWaiters holds tasks blocked in the getchar syscall until the
	// keyboard IRQ pushes a byte and wakes them.
	kbdWaiters []proc.TaskID
}

// New constructs a dispatch table. firstChildID seeds the fork() pid
// allocator (task 0/1 are already enrolled by boot-time setup).
func New(v *vm.VM, s *sched.Scheduler, c *console.Console, kbd *circbuf.Circbuf, firstChildID proc.TaskID) *Syscalls {
	return &Syscalls{V: v, Sched: s, Console: c, Keyboard: kbd, nextTaskID: firstChildID}
}

// Dispatch routes tf to the handler for tf.Eax, per the in-register
// ABI: eax=number, ebx/ecx/edx=args, result written back to tf.Eax.
// Registered via trap.Dispatcher.RegisterSyscall.
func (s *Syscalls) Dispatch(tf *trap.TrapFrame) {
	cur, ok := s.Sched.Current()
	if !ok {
		tf.Eax = errSentinel
		return
	}
	switch tf.Eax {
	case SysWrite:
		tf.Eax = s.sysWriteConsole(cur, tf)
	case SysExit:
		s.sysExit(cur, tf)
	case SysYield:
		s.Sched.RequestResched()
		tf.Eax = 0
	case SysGetMemStats:
		tf.Eax = s.sysGetMemStats(cur, tf)
	case SysReadKernelMem:
		tf.Eax = s.sysReadKernelMem(cur, tf)
	case SysKeyboardGetc:
		tf.Eax = s.sysKeyboardGetc(cur, tf)
	case SysKeyboardPoll:
		tf.Eax = s.sysKeyboardPoll()
	case SysPutchar:
		s.Console.Putc(rune(tf.Ebx))
		tf.Eax = 0
	case SysGetFramebuffer:
		tf.Eax = s.sysGetFramebuffer(cur, tf)
	case SysWriteFD:
		tf.Eax = s.sysWriteFD(cur, tf)
	case SysFork:
		tf.Eax = s.sysFork(cur, tf)
	default:
		tf.Eax = errSentinel
	}
}

// sysWriteConsole implements call #1: copy a NUL-terminated string
// from ebx and emit it via the console collaborator.
func (s *Syscalls) sysWriteConsole(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	str, err := ustr.CopyInString(s.V, cur.PD, vaOf(tf.Ebx))
	if err != 0 {
		return errSentinel
	}
	s.Console.WriteString(str)
	return uint32(len(str))
}

// sysWriteFD implements call #10: write(fd, buf, len), fd must be 1.
func (s *Syscalls) sysWriteFD(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	if tf.Ebx != 1 {
		return errSentinel
	}
	buf, err := ustr.CopyInBytes(s.V, cur.PD, vaOf(tf.Ecx), int(tf.Edx))
	if err != 0 {
		return errSentinel
	}
	s.Console.WriteString(string(buf))
	return uint32(len(buf))
}

// sysExit implements call #2: terminate the caller and request a
// reschedule. Exit never resumes the caller's user mode; the common
// exit path's need_resched check sends control through the scheduler
// instead of back to the terminated task's frame.
func (s *Syscalls) sysExit(cur *proc.Task, tf *trap.TrapFrame) {
	proc.Exit(cur, int(int32(tf.Ebx)))
	s.Sched.RequestResched()
	tf.Eax = 0
}

// sysGetMemStats implements call #4: fill a user {total,free,used}
// uint32 triple from the PMM's current snapshot.
func (s *Syscalls) sysGetMemStats(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	snap := s.V.PMM.Snapshot()
	var out [12]byte
	binary.LittleEndian.PutUint32(out[0:4], snap.TotalPages)
	binary.LittleEndian.PutUint32(out[4:8], snap.FreePages)
	binary.LittleEndian.PutUint32(out[8:12], snap.UsedPages)
	if err := ustr.CopyOutBytes(s.V, cur.PD, vaOf(tf.Ebx), out[:]); err != 0 {
		return errSentinel
	}
	return 0
}

// sysReadKernelMem implements call #5: ebx=kernel va, ecx=user ptr to
// u32. Gated to the kernel half of the address space.
func (s *Syscalls) sysReadKernelMem(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	va := vaOf(tf.Ebx)
	if !inKernelRange(va) {
		return errSentinel
	}
	pte, present := s.V.Readback(s.V.Kernel, va)
	if !present {
		return errSentinel
	}
	off := int(uint32(va) & 0xFFF)
	word := s.V.ReadBytes(mem.PageOf(pte), off, 4)
	if err := ustr.CopyOutBytes(s.V, cur.PD, vaOf(tf.Ecx), word); err != 0 {
		return errSentinel
	}
	return 0
}

// sysKeyboardGetc implements call #6: block until the IRQ1 byte queue
// has a character. With nothing buffered, the caller is parked in
// Blocked state and its saved eip is stepped back over the two-byte
// `int $0x80`, so the syscall re-executes from scratch once
// WakeKeyboardWaiters makes the task runnable again.
func (s *Syscalls) sysKeyboardGetc(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	if b, ok := s.Keyboard.Pop(); ok {
		return uint32(b)
	}
	s.kbdWaiters = append(s.kbdWaiters, cur.ID)
	s.Sched.Block(cur.ID)
	s.Sched.RequestResched()
	tf.Eip -= 2
	return tf.Eax // eax must still hold the syscall number for the retry
}

// WakeKeyboardWaiters makes every task blocked in getchar runnable
// again. The keyboard IRQ handler calls this right after pushing a
// scancode onto the queue.
func (s *Syscalls) WakeKeyboardWaiters() {
	for _, id := range s.kbdWaiters {
		s.Sched.Unblock(id)
	}
	s.kbdWaiters = s.kbdWaiters[:0]
}

// sysKeyboardPoll implements call #7: non-blocking, reports whether a
// byte is available without consuming it.
func (s *Syscalls) sysKeyboardPoll() uint32 {
	if s.Keyboard.Len() > 0 {
		return 1
	}
	return 0
}

// sysGetFramebuffer implements call #9.
func (s *Syscalls) sysGetFramebuffer(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	var out [20]byte
	binary.LittleEndian.PutUint32(out[0:4], s.FB.Addr)
	binary.LittleEndian.PutUint32(out[4:8], s.FB.W)
	binary.LittleEndian.PutUint32(out[8:12], s.FB.H)
	binary.LittleEndian.PutUint32(out[12:16], s.FB.Pitch)
	binary.LittleEndian.PutUint32(out[16:20], s.FB.Bpp)
	if err := ustr.CopyOutBytes(s.V, cur.PD, vaOf(tf.Ebx), out[:]); err != 0 {
		return errSentinel
	}
	return 0
}

// sysFork implements call #11. The child's saved eax is zeroed so it
// appears to return 0 from the syscall; the parent's eax (this call's
// own return value) carries the child's task ID.
func (s *Syscalls) sysFork(cur *proc.Task, tf *trap.TrapFrame) uint32 {
	childID := s.nextTaskID
	s.nextTaskID++
	child, err := proc.Fork(s.V, cur, childID)
	if err != 0 {
		s.nextTaskID--
		return errSentinel
	}
	child.TF.Eax = 0
	s.Sched.Add(child)
	return uint32(child.ID)
}

func vaOf(reg uint32) vm.Va_t { return vm.Va_t(reg) }

func inKernelRange(va vm.Va_t) bool { return uint32(va) >= kernelBase }

const kernelBase = 0xC0000000
