// Package kernel wires the core subsystems together in dependency
// order: bootstrap allocator, physical memory manager, virtual memory
// and the DMA region, segmentation, the interrupt table, the task
// core, the scheduler, and the syscall layer. Everything below this
// package is a leaf that knows nothing about its collaborators; every
// cross-subsystem callback (EOI, TSS.esp0 reprogramming, need_resched
// consultation) is injected here and nowhere else.
package kernel

import (
	"fmt"

	"apic"
	"circbuf"
	"console"
	"cpu"
	"defs"
	"limits"
	"mboot"
	"mem"
	"msi"
	"pci"
	"proc"
	"sched"
	"seg"
	"stats"
	"trap"
	"usys"
	"vm"
)

const (
	// MultibootMagic is the EAX value a Multiboot-2 loader hands the
	// kernel entry point.
	MultibootMagic = 0x36D76289

	// managedBase is the physical address where PMM-managed memory
	// begins. Everything below it is permanently reserved: the kernel
	// image and early pool under 2 MiB, the early page-table arena at
	// 2-4 MiB.
	managedBase = 4 * 1024 * 1024

	// lapicTimerCount is the periodic timer's initial count. One tick
	// every ~10M bus cycles lands in the low hundreds of Hz on the
	// class of machine this targets.
	lapicTimerCount = 10_000_000

	spuriousVector = 0xFF

	firstTaskID = proc.TaskID(1)
	firstForkID = proc.TaskID(2)
)

// Kernel is the booted core: one of everything, living from Boot to
// power-off. All mutation happens with interrupts disabled; there is
// no finer-grained locking on a single-logical-CPU configuration.
type Kernel struct {
	Early    *mem.Early
	V        *vm.VM
	DMA      *vm.DMARegion
	GDT      *seg.GDT
	TSS      *seg.TSS
	IDT      *trap.IDT
	LAPIC    *apic.LAPIC
	IOAPIC   *apic.IOAPIC
	Console  *console.Console
	Keyboard *circbuf.Circbuf
	Sched    *sched.Scheduler
	Sys      *usys.Syscalls
	Info     *mboot.Info
	Devices  []pci.Device

	Ticks uint64

	// readCR2 is cpu.Cr2 on hardware; a seam so fault-injection tests
	// can supply the faulting address without a real page walk.
	readCR2 func() uint32
}

// Boot builds the kernel's software state from the Multiboot-2
// handoff: magic is the loader's EAX, mbBlob the info structure EBX
// pointed at. It performs no privileged instruction -- that is
// InstallHardwareState's job -- so the whole sequence is exercisable
// off-target. Returns defs.EINVAL for a handoff the kernel cannot
// trust.
func Boot(magic uint32, mbBlob []byte) (*Kernel, defs.Err_t) {
	if magic != MultibootMagic {
		fmt.Printf("kernel: bad multiboot2 magic 0x%x\n", magic)
		return nil, defs.EINVAL
	}

	// Stage the info blob into the early pool first: the loader left it
	// in low memory the PMM is about to take ownership of.
	early := mem.NewEarly()
	staged := early.Alloc(len(mbBlob), 8)
	copy(staged, mbBlob)
	info, ok := mboot.Parse(staged)
	if !ok {
		fmt.Printf("kernel: unparseable multiboot2 info\n")
		return nil, defs.EINVAL
	}
	_, upperKB, ok := info.BasicMemInfo()
	if !ok {
		fmt.Printf("kernel: multiboot2 info has no basic memory tag\n")
		return nil, defs.EINVAL
	}

	totalBytes := uint64(1<<20) + uint64(upperKB)*1024
	if totalBytes <= managedBase+limits.PageSize {
		fmt.Printf("kernel: %d bytes of memory is not enough to boot\n", totalBytes)
		return nil, defs.ENOMEM
	}
	pages := uint32((totalBytes - managedBase) / limits.PageSize)
	// The 512 MiB kernel reservation is a default, not a demand: on a
	// machine smaller than twice the reservation, give the kernel half
	// so user allocations are still possible.
	reserve := uint32(limits.KernelReserveBytes / limits.PageSize)
	if reserve > pages/2 {
		reserve = pages / 2
	}
	pmm := mem.NewPMM(managedBase/limits.PageSize, pages, reserve)
	pmm.Reserved = managedBase / limits.PageSize

	v := vm.NewVM(pmm)
	k := &Kernel{Early: early, V: v, Info: info, readCR2: cpu.Cr2}

	// Kernel-half mappings, all of which must exist before the first
	// task PD snapshots them: the boot window over low physical
	// memory, the low identity window, the DMA region, and the page
	// tables covering every kernel stack slot.
	mapKernelWindow(v, early)
	v.IdentityMap8M4K(v.Kernel, 0)
	dma, derr := vm.NewDMARegion(v, limits.DMARegionBytes)
	if derr != 0 {
		fmt.Printf("kernel: cannot reserve DMA region: %d\n", derr)
		return nil, derr
	}
	k.DMA = dma
	proc.ReserveKernelStackArea(v)
	v.Lock()

	k.TSS = seg.NewTSS(defs.KernelDS)
	tssBase, tssLimit := k.TSS.Descriptor()
	k.GDT = seg.NewGDT(tssBase, tssLimit)

	k.IDT = &trap.IDT{}
	installIDT(k.IDT)

	k.LAPIC = apic.New()
	k.IOAPIC = apic.NewIOAPIC()
	k.Console = console.New()
	k.Keyboard = circbuf.New(64)

	k.Sched = sched.New(v)
	k.Sched.SetSwitchHook(func(next *proc.Task) {
		// esp0 must be the incoming task's stack top before any path
		// back toward ring3, or the next trap lands on the previous
		// task's stack.
		k.TSS.SetKernelStack(uint32(next.KStackTop))
	})

	k.Sys = usys.New(v, k.Sched, k.Console, k.Keyboard, firstForkID)
	if fb, ok := info.FramebufferInfo(); ok {
		k.Sys.FB = usys.Framebuffer{
			Addr:  uint32(fb.Addr),
			W:     fb.Width,
			H:     fb.Height,
			Pitch: fb.Pitch,
			Bpp:   uint32(fb.Bpp),
		}
	}

	d := trap.Default()
	d.SetEOI(k.LAPIC.EOIFunc())
	d.SetResched(k.Sched.TakeResched, k.Sched.Schedule)
	d.RegisterSyscall(k.Sys.Dispatch)
	k.installTrapHandlers(d)

	k.IOAPIC.SetRedirection(0, defs.VecIRQ0, k.LAPIC.ID())
	k.IOAPIC.Unmask(0)
	k.IOAPIC.SetRedirection(1, defs.VecIRQ1, k.LAPIC.ID())
	k.IOAPIC.Unmask(1)
	k.LAPIC.Init(spuriousVector)
	k.LAPIC.StartTimer(defs.VecIRQ0, lapicTimerCount)

	return k, 0
}

// mapKernelWindow hand-builds the kernel's boot window: the first 8
// MiB of physical memory mapped at limits.KernelBase, with page
// tables drawn from the pre-PMM early arena, since these tables must
// exist before the buddy allocator owns anything.
func mapKernelWindow(v *vm.VM, early *mem.Early) {
	dir := v.Kernel.Entries()
	const pages = limits.IdentityMapBytes / limits.PageSize
	for base := 0; base < pages; base += 1024 {
		ptpa := early.PageTable()
		pt := v.Frame(ptpa)
		for j := 0; j < 1024; j++ {
			pt[j] = mem.Pa_t(uint32(base+j)*limits.PageSize) | mem.PTE_P | mem.PTE_W
		}
		dir[limits.KernelPDEFirst+base/1024] = ptpa | mem.PTE_P | mem.PTE_W
	}
}

// installIDT fills the descriptor table: CPU exceptions 0-31 and the
// legacy IRQ window as ring0 interrupt gates, the MSI window's
// allocatable slots likewise, and vector 0x80 as the one DPL=3 trap
// gate. Vectors past the MSI slots stay not-present: nothing ever
// programs a device to deliver there (msi.Alloc hands out only the
// stubbed range), so a delivery is a bug, and a not-present gate
// turns it into a fault instead of a wild jump.
func installIDT(t *trap.IDT) {
	for i, fn := range trap.FaultStubs {
		t.SetGate(i, trap.StubAddr(fn), defs.KernelCS, 0)
	}
	for i, fn := range trap.IRQStubs {
		t.SetGate(defs.VecIRQ0+i, trap.StubAddr(fn), defs.KernelCS, 0)
	}
	for i, fn := range trap.MSIStubs {
		t.SetGate(defs.VecMSILow+i, trap.StubAddr(fn), defs.KernelCS, 0)
	}
	t.SetTrapGate(defs.VecSyscall, trap.StubAddr(trap.SyscallStub), defs.KernelCS, 3)
}

// InstallHardwareState loads the descriptor tables and the canonical
// address space into the CPU. Split from Boot so the software state
// is constructible without privileged instructions; Main calls it
// exactly once, before interrupts are ever enabled.
func (k *Kernel) InstallHardwareState() {
	cpu.Cli()
	k.GDT.Load()
	k.IDT.Load()
	cpu.LoadCR3(uint32(k.V.Kernel.Phys))
}

// StartFirstTask loads the loader's first boot module as the initial
// user task and enrolls it. The module bytes are read out of physical
// memory where the loader placed them.
func (k *Kernel) StartFirstTask() defs.Err_t {
	mods := k.Info.Modules()
	if len(mods) == 0 {
		fmt.Printf("kernel: no boot module to run\n")
		return defs.EINVAL
	}
	m := mods[0]
	if m.End <= m.Start {
		return defs.EINVAL
	}
	img := k.readPhys(mem.Pa_t(m.Start), int(m.End-m.Start))
	entry, segs, err := parseUserELF(img)
	if err != 0 {
		fmt.Printf("kernel: boot module is not a loadable elf\n")
		return err
	}
	t, err := proc.NewTask(k.V, firstTaskID)
	if err != 0 {
		return err
	}
	if err := proc.LoadModuleToUser(k.V, t, entry, segs); err != 0 {
		return err
	}
	k.Sched.Add(t)
	return 0
}

// RegisterMSI reserves an MSI vector, binds h as its interrupt
// handler, and returns the address/data pair to program into a PCI
// device's MSI capability registers. The IDT gate for every
// allocatable vector was already installed at boot.
func (k *Kernel) RegisterMSI(h trap.Handler) (addr uint32, data uint32) {
	vec := msi.Alloc()
	trap.Default().RegisterIRQ(uint32(vec), h)
	return msi.Address(k.LAPIC.ID()), msi.Data(vec)
}

// Run enters the scheduling loop and never returns: reap whatever has
// exited, then hand the CPU to the next runnable task. Schedule
// blocks in HLT when nothing is runnable, so this loop spins only as
// fast as tasks come and go.
func (k *Kernel) Run() {
	for {
		k.Sched.ReapZombies()
		k.Sched.Schedule()
	}
}

// DumpStats prints the PMM and task-population snapshots plus one
// accounting line per task. The `prof:` lines are the wire format
// cmd/kprofdump turns into a pprof profile.
func (k *Kernel) DumpStats() {
	snap := k.V.PMM.Snapshot()
	fmt.Printf("kernel: pages total=%d free=%d used=%d\n",
		snap.TotalPages, snap.FreePages, snap.UsedPages)
	var ts stats.TaskSnapshot
	k.Sched.Each(func(t *proc.Task) {
		switch t.State {
		case proc.StateBlocked:
			ts.Blocked++
		case proc.StateZombie:
			ts.Zombie++
		default:
			ts.Runnable++
		}
		fmt.Printf("prof: task %d user=%d sys=%d\n", t.ID, t.Acc.UserTicks, t.Acc.SystemTicks)
	})
	fmt.Printf("kernel: tasks runnable=%d blocked=%d zombie=%d\n",
		ts.Runnable, ts.Blocked, ts.Zombie)
}

// Main is the Go-side successor of the asm entry point: EAX and the
// staged info structure come in, the boot sequence runs, and control
// parks in the scheduler loop forever.
func Main(magic uint32, mbBlob []byte) {
	k, err := Boot(magic, mbBlob)
	if err != 0 {
		halt()
	}
	k.InstallHardwareState()
	k.Devices = pci.Enumerate()
	for _, d := range k.Devices {
		fmt.Printf("kernel: pci %d:%d.%d vendor=%04x device=%04x class=%02x%02x\n",
			d.Bus, d.Dev, d.Fn, d.VendorID, d.DeviceID, d.Class, d.Subclass)
	}
	if err := k.StartFirstTask(); err != 0 {
		halt()
	}
	k.Run()
}

func halt() {
	for {
		cpu.Cli()
		cpu.Hlt()
	}
}
