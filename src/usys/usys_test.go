package usys

import (
	"circbuf"
	"console"
	"encoding/binary"
	"mem"
	"proc"
	"sched"
	"testing"
	"trap"
	"ustr"
	"vm"
)

func newHarness(t *testing.T) (*vm.VM, *sched.Scheduler, *Syscalls, *proc.Task) {
	t.Helper()
	pmm := mem.NewPMM(256, 4096, 512)
	v := vm.NewVM(pmm)
	proc.ReserveKernelStackArea(v)
	v.Lock()

	s := sched.New(v)
	task, err := proc.NewTask(v, proc.TaskID(1))
	if err != 0 {
		t.Fatalf("NewTask: %v", err)
	}
	task.TF = &trap.TrapFrame{}
	s.Add(task)
	s.SetCurrent(task.ID)

	kbd := circbuf.New(16)
	sys := New(v, s, console.New(), kbd, proc.TaskID(2))
	return v, s, sys, task
}

func mapUserWord(t *testing.T, v *vm.VM, pd *vm.PageDir, va vm.Va_t, flags mem.Pa_t) {
	t.Helper()
	pa := v.PMM.AllocPagesType(1, mem.KindUser)
	if err := v.Map(pd, va, pa, flags); err != 0 {
		t.Fatalf("Map: %v", err)
	}
}

func TestDispatchUnknownSyscallReturnsSentinel(t *testing.T) {
	_, _, sys, task := newHarness(t)
	tf := &trap.TrapFrame{Eax: 9999}
	task.TF = tf
	sys.Dispatch(tf)
	if tf.Eax != errSentinel {
		t.Fatalf("Eax = %#x, want sentinel", tf.Eax)
	}
}

func TestDispatchPutcharWritesToConsole(t *testing.T) {
	_, _, sys, _ := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysPutchar, Ebx: uint32('z')}
	sys.Dispatch(tf)
	if tf.Eax != 0 {
		t.Fatalf("Eax = %d, want 0", tf.Eax)
	}
	if sys.Console.Snapshot()[0][0] != 'z' {
		t.Fatalf("console row 0 = %q, want leading 'z'", sys.Console.Snapshot()[0])
	}
}

func TestDispatchYieldRequestsResched(t *testing.T) {
	_, s, sys, _ := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysYield}
	sys.Dispatch(tf)
	if !s.TakeResched() {
		t.Fatal("expected need_resched set after yield")
	}
	if tf.Eax != 0 {
		t.Fatalf("Eax = %d, want 0", tf.Eax)
	}
}

func TestDispatchWriteFDRejectsNonStdout(t *testing.T) {
	_, _, sys, _ := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysWriteFD, Ebx: 2}
	sys.Dispatch(tf)
	if tf.Eax != errSentinel {
		t.Fatalf("Eax = %#x, want sentinel for bad fd", tf.Eax)
	}
}

func TestDispatchWriteCopiesUserStringToConsole(t *testing.T) {
	v, _, sys, task := newHarness(t)
	const uva = vm.Va_t(0x9000)
	mapUserWord(t, v, task.PD, uva, mem.PTE_P|mem.PTE_U)
	msg := "hi\x00"
	if err := ustr.CopyOutBytes(v, task.PD, uva, []byte(msg)); err != 0 {
		t.Fatalf("seed string: %v", err)
	}
	tf := &trap.TrapFrame{Eax: SysWrite, Ebx: uint32(uva)}
	sys.Dispatch(tf)
	if tf.Eax != 2 {
		t.Fatalf("Eax = %d, want 2 (bytes written)", tf.Eax)
	}
	if sys.Console.Snapshot()[0][:2] != "hi" {
		t.Fatalf("console = %q, want prefix hi", sys.Console.Snapshot()[0])
	}
}

func TestDispatchGetMemStatsFillsUserBuffer(t *testing.T) {
	v, _, sys, task := newHarness(t)
	const uva = vm.Va_t(0xA000)
	mapUserWord(t, v, task.PD, uva, mem.PTE_P|mem.PTE_U|mem.PTE_W)
	tf := &trap.TrapFrame{Eax: SysGetMemStats, Ebx: uint32(uva)}
	sys.Dispatch(tf)
	if tf.Eax != 0 {
		t.Fatalf("Eax = %d, want 0", tf.Eax)
	}
	buf, err := ustr.CopyInBytes(v, task.PD, uva, 12)
	if err != 0 {
		t.Fatalf("CopyInBytes: %v", err)
	}
	total := binary.LittleEndian.Uint32(buf[0:4])
	if total == 0 {
		t.Fatal("expected nonzero total page count")
	}
}

func TestDispatchReadKernelMemRejectsUserVA(t *testing.T) {
	_, _, sys, _ := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysReadKernelMem, Ebx: 0x1000, Ecx: 0x2000}
	sys.Dispatch(tf)
	if tf.Eax != errSentinel {
		t.Fatalf("Eax = %#x, want sentinel for non-kernel va", tf.Eax)
	}
}

func TestDispatchKeyboardPollAndGetc(t *testing.T) {
	_, _, sys, _ := newHarness(t)
	tfPoll := &trap.TrapFrame{Eax: SysKeyboardPoll}
	sys.Dispatch(tfPoll)
	if tfPoll.Eax != 0 {
		t.Fatalf("poll on empty queue = %d, want 0", tfPoll.Eax)
	}

	sys.Keyboard.Push('k')
	sys.Dispatch(tfPoll)
	if tfPoll.Eax != 1 {
		t.Fatalf("poll with byte queued = %d, want 1", tfPoll.Eax)
	}

	tfGet := &trap.TrapFrame{Eax: SysKeyboardGetc}
	sys.Dispatch(tfGet)
	if tfGet.Eax != uint32('k') {
		t.Fatalf("getc = %d, want %d", tfGet.Eax, 'k')
	}
}

func TestDispatchKeyboardGetcBlocksUntilWoken(t *testing.T) {
	_, s, sys, task := newHarness(t)
	const eip = 0x8048042
	tf := &trap.TrapFrame{Eax: SysKeyboardGetc, Eip: eip}
	sys.Dispatch(tf)

	if task.State != proc.StateBlocked {
		t.Fatalf("State = %v, want StateBlocked on an empty queue", task.State)
	}
	if tf.Eip != eip-2 {
		t.Fatalf("Eip = %#x, want %#x (stepped back over int $0x80)", tf.Eip, eip-2)
	}
	if tf.Eax != SysKeyboardGetc {
		t.Fatalf("Eax = %d, want the syscall number preserved for the retry", tf.Eax)
	}
	if !s.TakeResched() {
		t.Fatal("expected need_resched set while the caller is blocked")
	}

	sys.Keyboard.Push('z')
	sys.WakeKeyboardWaiters()
	if task.State != proc.StateRunnable {
		t.Fatalf("State = %v, want StateRunnable after wake", task.State)
	}

	sys.Dispatch(tf)
	if tf.Eax != uint32('z') {
		t.Fatalf("retried getc = %d, want %d", tf.Eax, 'z')
	}
}

func TestDispatchGetFramebufferFillsUserBuffer(t *testing.T) {
	v, _, sys, task := newHarness(t)
	sys.FB = Framebuffer{Addr: 0xFD000000, W: 1024, H: 768, Pitch: 4096, Bpp: 32}
	const uva = vm.Va_t(0xB000)
	mapUserWord(t, v, task.PD, uva, mem.PTE_P|mem.PTE_U|mem.PTE_W)
	tf := &trap.TrapFrame{Eax: SysGetFramebuffer, Ebx: uint32(uva)}
	sys.Dispatch(tf)
	if tf.Eax != 0 {
		t.Fatalf("Eax = %d, want 0", tf.Eax)
	}
	buf, err := ustr.CopyInBytes(v, task.PD, uva, 20)
	if err != 0 {
		t.Fatalf("CopyInBytes: %v", err)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != sys.FB.Addr {
		t.Fatalf("framebuffer addr mismatch")
	}
}

func TestDispatchForkReturnsChildIDToParentAndZeroToChild(t *testing.T) {
	_, s, sys, task := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysFork}
	task.TF = tf
	sys.Dispatch(tf)
	if tf.Eax == 0 || tf.Eax == errSentinel {
		t.Fatalf("parent Eax = %d, want a child task id", tf.Eax)
	}
	child, ok := s.Get(proc.TaskID(tf.Eax))
	if !ok {
		t.Fatalf("child task %d not enrolled in scheduler", tf.Eax)
	}
	if child.TF.Eax != 0 {
		t.Fatalf("child.TF.Eax = %d, want 0", child.TF.Eax)
	}
}

func TestDispatchExitMarksZombieAndRequestsResched(t *testing.T) {
	_, s, sys, task := newHarness(t)
	tf := &trap.TrapFrame{Eax: SysExit, Ebx: 7}
	sys.Dispatch(tf)
	if task.State != proc.StateZombie {
		t.Fatalf("State = %v, want StateZombie", task.State)
	}
	if task.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", task.ExitCode)
	}
	if !s.TakeResched() {
		t.Fatal("expected need_resched set after exit")
	}
}
