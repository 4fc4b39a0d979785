package kernel

import (
	"bytes"
	"encoding/binary"
	"testing"

	"defs"
	"limits"
	"mem"
	"proc"
	"trap"
	"ustr"
	"usys"
	"vm"
)

const (
	testUpperKB = 64 * 1024 // 64 MiB machine, minus the low megabyte
	testEntry   = 0x08048000
	modStart    = 0x00180000 // inside the permanently reserved low region
)

// buildELF32 assembles a minimal one-segment ELF32 executable: header,
// one PT_LOAD program header, then the code bytes.
func buildELF32(entry uint32, code []byte) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian

	ident := [16]byte{0x7f, 'E', 'L', 'F', 1 /* ELFCLASS32 */, 1 /* ELFDATA2LSB */, 1 /* EV_CURRENT */}
	b.Write(ident[:])
	binary.Write(&b, le, uint16(2)) // ET_EXEC
	binary.Write(&b, le, uint16(3)) // EM_386
	binary.Write(&b, le, uint32(1))
	binary.Write(&b, le, entry)
	binary.Write(&b, le, uint32(52)) // e_phoff: right after this header
	binary.Write(&b, le, uint32(0))  // e_shoff
	binary.Write(&b, le, uint32(0))  // e_flags
	binary.Write(&b, le, uint16(52)) // e_ehsize
	binary.Write(&b, le, uint16(32)) // e_phentsize
	binary.Write(&b, le, uint16(1))  // e_phnum
	binary.Write(&b, le, uint16(0))  // e_shentsize
	binary.Write(&b, le, uint16(0))  // e_shnum
	binary.Write(&b, le, uint16(0))  // e_shstrndx

	const codeOff = 52 + 32
	binary.Write(&b, le, uint32(1)) // p_type PT_LOAD
	binary.Write(&b, le, uint32(codeOff))
	binary.Write(&b, le, entry) // p_vaddr
	binary.Write(&b, le, entry) // p_paddr
	binary.Write(&b, le, uint32(len(code)))
	binary.Write(&b, le, uint32(len(code)+64)) // p_memsz: a little .bss
	binary.Write(&b, le, uint32(7))            // PF_R|PF_W|PF_X
	binary.Write(&b, le, uint32(limits.PageSize))

	b.Write(code)
	return b.Bytes()
}

// buildMBInfo assembles a Multiboot-2 info structure with a basic
// memory tag and, when modEnd > modStart, one module tag.
func buildMBInfo(upperKB, modStart, modEnd uint32) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&b, le, uint32(0)) // total_size, patched below
	binary.Write(&b, le, uint32(0))

	binary.Write(&b, le, uint32(4)) // basic meminfo
	binary.Write(&b, le, uint32(16))
	binary.Write(&b, le, uint32(640))
	binary.Write(&b, le, uint32(upperKB))

	if modEnd > modStart {
		cmdline := []byte("init\x00")
		size := uint32(16 + len(cmdline))
		binary.Write(&b, le, uint32(3)) // module
		binary.Write(&b, le, size)
		binary.Write(&b, le, modStart)
		binary.Write(&b, le, modEnd)
		b.Write(cmdline)
		for b.Len()%8 != 0 {
			b.WriteByte(0)
		}
	}

	binary.Write(&b, le, uint32(0)) // end tag
	binary.Write(&b, le, uint32(8))

	blob := b.Bytes()
	le.PutUint32(blob[0:4], uint32(len(blob)))
	return blob
}

// seedPhys writes data into simulated physical memory frame by frame
// (vm.VM.WriteBytes is per-frame).
func seedPhys(v *vm.VM, pa mem.Pa_t, data []byte) {
	for len(data) > 0 {
		off := int(pa & mem.PageOffset)
		chunk := limits.PageSize - off
		if chunk > len(data) {
			chunk = len(data)
		}
		v.WriteBytes(mem.PageOf(pa), off, data[:chunk])
		pa += mem.Pa_t(chunk)
		data = data[chunk:]
	}
}

func bootWithModule(t *testing.T, code []byte) *Kernel {
	t.Helper()
	img := buildELF32(testEntry, code)
	k, err := Boot(MultibootMagic, buildMBInfo(testUpperKB, modStart, modStart+uint32(len(img))))
	if err != 0 {
		t.Fatalf("Boot failed: %d", err)
	}
	seedPhys(k.V, modStart, img)
	if err := k.StartFirstTask(); err != 0 {
		t.Fatalf("StartFirstTask failed: %d", err)
	}
	return k
}

func currentTask(t *testing.T, k *Kernel) *proc.Task {
	t.Helper()
	k.Sched.SetCurrent(firstTaskID)
	task, ok := k.Sched.Get(firstTaskID)
	if !ok {
		t.Fatal("first task not enrolled")
	}
	return task
}

func TestBootRejectsBadMagic(t *testing.T) {
	if _, err := Boot(0xDEADBEEF, buildMBInfo(testUpperKB, 0, 0)); err != defs.EINVAL {
		t.Fatalf("err = %d, want EINVAL", err)
	}
}

func TestBootAccountingIdentity(t *testing.T) {
	k, err := Boot(MultibootMagic, buildMBInfo(testUpperKB, 0, 0))
	if err != 0 {
		t.Fatalf("Boot failed: %d", err)
	}
	free, used, total := k.V.PMM.Stats()
	if free+used != total {
		t.Fatalf("free(%d)+used(%d) != total(%d)", free, used, total)
	}
	if k.V.PMM.Reserved != managedBase/limits.PageSize {
		t.Fatalf("Reserved = %d pages, want %d", k.V.PMM.Reserved, managedBase/limits.PageSize)
	}
}

func TestBootInstallsSyscallTrapGate(t *testing.T) {
	k, err := Boot(MultibootMagic, buildMBInfo(testUpperKB, 0, 0))
	if err != 0 {
		t.Fatalf("Boot failed: %d", err)
	}
	g := uint64(k.IDT[defs.VecSyscall])
	if g&(1<<47) == 0 {
		t.Fatal("syscall gate not present")
	}
	if (g>>45)&3 != 3 {
		t.Fatalf("syscall gate dpl = %d, want 3", (g>>45)&3)
	}
	if (g>>40)&0xF != 0xF {
		t.Fatalf("syscall gate type = %#x, want 0xF (trap gate)", (g>>40)&0xF)
	}

	pf := uint64(k.IDT[defs.TrapPageFault])
	if pf&(1<<47) == 0 {
		t.Fatal("page-fault gate not present")
	}
	if (pf>>45)&3 != 0 {
		t.Fatal("page-fault gate must be ring0-only")
	}
	if (pf>>40)&0xF != 0xE {
		t.Fatalf("page-fault gate type = %#x, want 0xE (interrupt gate)", (pf>>40)&0xF)
	}
}

func TestTaskPageDirSatisfiesKernelInvariants(t *testing.T) {
	k, err := Boot(MultibootMagic, buildMBInfo(testUpperKB, 0, 0))
	if err != 0 {
		t.Fatalf("Boot failed: %d", err)
	}
	task, terr := proc.NewTask(k.V, 7)
	if terr != 0 {
		t.Fatalf("NewTask failed: %d", terr)
	}

	// K1: the kernel half is a bitwise copy of the canonical PD.
	kp := k.V.Kernel.Entries()
	up := task.PD.Entries()
	for i := limits.KernelPDEFirst; i <= limits.KernelPDELast; i++ {
		if kp[i] != up[i] {
			t.Fatalf("PDE %d differs from canonical kernel PD", i)
		}
	}

	// K3: the DMA region is reachable from the task's PD with PCD set.
	va, _, aerr := k.DMA.AllocCoherent(64)
	if aerr != 0 {
		t.Fatalf("AllocCoherent failed: %d", aerr)
	}
	pte, present := k.V.Readback(task.PD, va&^vm.Va_t(mem.PageOffset))
	if !present {
		t.Fatal("DMA page not mapped in task PD")
	}
	if pte&mem.PTE_PCD == 0 {
		t.Fatal("DMA mapping must be cache-disabled")
	}
	if pte&mem.PTE_U != 0 {
		t.Fatal("DMA mapping must stay supervisor-only")
	}
}

func TestStartFirstTaskLoadsModule(t *testing.T) {
	code := []byte{0x90, 0x90, 0xf4}
	k := bootWithModule(t, code)
	task, ok := k.Sched.Get(firstTaskID)
	if !ok {
		t.Fatal("first task not enrolled")
	}
	if task.State != proc.StateCreated {
		t.Fatalf("State = %v, want StateCreated before first dispatch", task.State)
	}
	if task.TF.Eip != testEntry {
		t.Fatalf("Eip = %#x, want %#x", task.TF.Eip, testEntry)
	}
	if task.TF.Cs != defs.UserCS || task.TF.Ss != defs.UserDS {
		t.Fatal("first task's trap frame must carry ring3 selectors")
	}
	if task.TF.Eflags&defs.FlagIF == 0 {
		t.Fatal("IF must be set in the first task's trap frame")
	}

	pte, present := k.V.Readback(task.PD, testEntry)
	if !present || pte&mem.PTE_U == 0 {
		t.Fatal("module code not mapped user-accessible")
	}
	back := k.V.ReadBytes(mem.PageOf(pte), 0, len(code))
	if !bytes.Equal(back, code) {
		t.Fatalf("module bytes = %x, want %x", back, code)
	}

	wantEsp := uint32(limits.VirtUserStackTop) - 35*4
	if task.TF.Useresp != wantEsp {
		t.Fatalf("Useresp = %#x, want %#x (argc slot below the guard band)", task.TF.Useresp, wantEsp)
	}
}

func TestSyscallWriteEndToEnd(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	const uva = vm.Va_t(limits.VirtUserStackTop - limits.PageSize)
	if err := ustr.CopyOutBytes(k.V, task.PD, uva, []byte("Hi\n")); err != 0 {
		t.Fatalf("CopyOutBytes failed: %d", err)
	}
	tf := &trap.TrapFrame{
		Trapno: defs.VecSyscall,
		Eax:    usys.SysWriteFD,
		Ebx:    1,
		Ecx:    uint32(uva),
		Edx:    3,
		Cs:     defs.UserCS,
	}
	task.TF = tf
	trap.Default().Dispatch(tf)
	if tf.Eax != 3 {
		t.Fatalf("write returned %d, want 3", tf.Eax)
	}
	lines := k.Console.Snapshot()
	if lines[0][:2] != "Hi" {
		t.Fatalf("console row 0 = %q, want it to start with Hi", lines[0])
	}
}

func TestForkAndExitEndToEnd(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	tf := &trap.TrapFrame{Trapno: defs.VecSyscall, Eax: usys.SysFork, Cs: defs.UserCS}
	task.TF = tf
	trap.Default().Dispatch(tf)
	if tf.Eax == 0 || tf.Eax == 0xFFFFFFFF {
		t.Fatalf("fork returned %#x, want a child id", tf.Eax)
	}
	child, ok := k.Sched.Get(proc.TaskID(tf.Eax))
	if !ok {
		t.Fatal("child not enrolled")
	}
	if child.TF.Eax != 0 {
		t.Fatalf("child sees fork() = %d, want 0", child.TF.Eax)
	}
	if child.State != proc.StateCreated {
		t.Fatal("child must take the first-entry path on its first dispatch")
	}

	free0, _, _ := k.V.PMM.Stats()
	proc.Exit(child, 7)
	k.Sched.ReapZombies()
	free1, _, _ := k.V.PMM.Stats()
	if free1 <= free0 {
		t.Fatalf("free pages %d -> %d, want growth after reaping the child", free0, free1)
	}
	if _, ok := k.Sched.Get(child.ID); ok {
		t.Fatal("reaped child still enrolled")
	}
}

func TestUserPageFaultTerminatesTask(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	k.readCR2 = func() uint32 { return 0x10 }
	tf := &trap.TrapFrame{
		Trapno: defs.TrapPageFault,
		Err:    pfUser, // not-present read from ring3
		Eip:    testEntry,
		Cs:     defs.UserCS,
	}
	trap.Default().Dispatch(tf)

	if task.State != proc.StateZombie {
		t.Fatalf("State = %v, want StateZombie after the fault", task.State)
	}
	if !k.Sched.TakeResched() {
		t.Fatal("expected need_resched set so a survivor gets dispatched")
	}
	// The scheduler must carry on: with nothing else runnable the pick
	// is nil (idle), not the corpse.
	if next := k.Sched.PickNext(); next != nil {
		t.Fatalf("PickNext returned task %d, want idle", next.ID)
	}
}

func TestCOWWriteFaultResolvesInsteadOfKilling(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	tf := &trap.TrapFrame{Trapno: defs.VecSyscall, Eax: usys.SysFork, Cs: defs.UserCS}
	task.TF = tf
	trap.Default().Dispatch(tf)

	// Parent writes to its (now copy-on-write) code page: the fault
	// must resolve silently, leaving the parent alive and writable.
	k.readCR2 = func() uint32 { return testEntry }
	wf := &trap.TrapFrame{
		Trapno: defs.TrapPageFault,
		Err:    pfUser | pfWrite | pfPresent,
		Eip:    testEntry,
		Cs:     defs.UserCS,
	}
	trap.Default().Dispatch(wf)

	if task.State == proc.StateZombie {
		t.Fatal("COW write fault must not terminate the task")
	}
	pte, present := k.V.Readback(task.PD, testEntry)
	if !present || pte&mem.PTE_W == 0 {
		t.Fatal("faulting side must be writable after the COW copy")
	}
}

func TestYieldLoopIsSteady(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	_, used0, _ := k.V.PMM.Stats()
	for i := 0; i < 8; i++ {
		tf := &trap.TrapFrame{Trapno: defs.VecSyscall, Eax: usys.SysYield, Cs: defs.UserCS}
		task.TF = tf
		trap.Default().Dispatch(tf)
		if tf.Eax != 0 {
			t.Fatalf("yield %d returned %d, want 0", i, tf.Eax)
		}
		if !k.Sched.TakeResched() {
			t.Fatalf("yield %d did not set need_resched", i)
		}
	}
	_, used1, _ := k.V.PMM.Stats()
	if used0 != used1 {
		t.Fatalf("used pages drifted across yields: %d -> %d", used0, used1)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	k, err := Boot(MultibootMagic, buildMBInfo(testUpperKB, 0, 0))
	if err != 0 {
		t.Fatalf("Boot failed: %d", err)
	}
	ids := []proc.TaskID{1, 2, 3}
	for _, id := range ids {
		task, terr := proc.NewTask(k.V, id)
		if terr != 0 {
			t.Fatalf("NewTask(%d) failed: %d", id, terr)
		}
		k.Sched.Add(task)
	}

	const rounds = 12
	counts := map[proc.TaskID]int{}
	for i := 0; i < rounds*len(ids); i++ {
		next := k.Sched.PickNext()
		if next == nil {
			t.Fatal("expected a runnable task")
		}
		counts[next.ID]++
	}
	for _, id := range ids {
		if counts[id] != rounds {
			t.Fatalf("task %d picked %d times, want %d", id, counts[id], rounds)
		}
	}
}

func TestTimerTickDrivesQuantum(t *testing.T) {
	k := bootWithModule(t, []byte{0x90, 0xf4})
	task := currentTask(t, k)

	// The very first tick lands on an unprimed quantum and requests a
	// reschedule; every slice after that is a full TimeSliceTicks.
	tick := func() {
		tf := &trap.TrapFrame{Trapno: defs.VecIRQ0, Cs: defs.KernelCS}
		trap.Default().Dispatch(tf)
	}
	tick()
	if !k.Sched.TakeResched() {
		t.Fatal("first tick should prime the quantum and request resched")
	}
	for i := 0; i < limits.TimeSliceTicks-1; i++ {
		tick()
		if k.Sched.TakeResched() {
			t.Fatalf("tick %d of the slice requested an early resched", i+1)
		}
	}
	tick()
	if !k.Sched.TakeResched() {
		t.Fatal("slice boundary did not request a resched")
	}
	if k.Ticks != uint64(limits.TimeSliceTicks+1) {
		t.Fatalf("Ticks = %d, want %d", k.Ticks, limits.TimeSliceTicks+1)
	}
	if task.Acc.SystemTicks != uint64(limits.TimeSliceTicks+1) {
		t.Fatalf("accounted system ticks = %d, want %d", task.Acc.SystemTicks, limits.TimeSliceTicks+1)
	}
}

func TestParseUserELFRejectsGarbage(t *testing.T) {
	if _, _, err := parseUserELF([]byte("not an elf at all")); err != defs.EINVAL {
		t.Fatalf("err = %d, want EINVAL", err)
	}
	img := buildELF32(testEntry, []byte{0x90})
	img[4] = 2 // ELFCLASS64
	if _, _, err := parseUserELF(img); err != defs.EINVAL {
		t.Fatalf("64-bit image: err = %d, want EINVAL", err)
	}
}
