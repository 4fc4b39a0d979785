package trap

import "limits"

// The functions below have no Go body: each is an entry stub defined
// in vectors_386.s that pushes its own vector number (and, for the few
// faults that don't, a dummy error code) and jumps to the shared
// commonstub, which builds the TrapFrame and calls commonTrap.
//
// vectors_386.s is generated output (see cmd/vecgen); regenerate it
// with `go run ./cmd/vecgen > src/trap/vectors_386.s` after changing
// the vector ranges below.

func vecFault0()
func vecFault1()
func vecFault2()
func vecFault3()
func vecFault4()
func vecFault5()
func vecFault6()
func vecFault7()
func vecFault8()
func vecFault9()
func vecFault10()
func vecFault11()
func vecFault12()
func vecFault13()
func vecFault14()
func vecFault15()
func vecFault16()
func vecFault17()
func vecFault18()
func vecFault19()
func vecFault20()
func vecFault21()
func vecFault22()
func vecFault23()
func vecFault24()
func vecFault25()
func vecFault26()
func vecFault27()
func vecFault28()
func vecFault29()
func vecFault30()
func vecFault31()

func vecIRQ0()
func vecIRQ1()
func vecIRQ2()
func vecIRQ3()
func vecIRQ4()
func vecIRQ5()
func vecIRQ6()
func vecIRQ7()
func vecIRQ8()
func vecIRQ9()
func vecIRQ10()
func vecIRQ11()
func vecIRQ12()
func vecIRQ13()
func vecIRQ14()
func vecIRQ15()

func vecSyscall80()

func vecMSI0()
func vecMSI1()
func vecMSI2()
func vecMSI3()
func vecMSI4()
func vecMSI5()
func vecMSI6()
func vecMSI7()
func vecMSI8()
func vecMSI9()
func vecMSI10()
func vecMSI11()
func vecMSI12()
func vecMSI13()
func vecMSI14()
func vecMSI15()

// FaultStubs maps CPU exception vectors 0-31 to their entry points.
var FaultStubs = [32]func(){
	vecFault0, vecFault1, vecFault2, vecFault3, vecFault4,
	vecFault5, vecFault6, vecFault7, vecFault8, vecFault9,
	vecFault10, vecFault11, vecFault12, vecFault13, vecFault14,
	vecFault15, vecFault16, vecFault17, vecFault18, vecFault19,
	vecFault20, vecFault21, vecFault22, vecFault23, vecFault24,
	vecFault25, vecFault26, vecFault27, vecFault28, vecFault29,
	vecFault30, vecFault31,
}

// IRQStubs maps IRQ0-15 (defs.VecIRQ0..defs.VecIRQ15) to their entry points.
var IRQStubs = [16]func(){
	vecIRQ0, vecIRQ1, vecIRQ2, vecIRQ3, vecIRQ4, vecIRQ5, vecIRQ6, vecIRQ7,
	vecIRQ8, vecIRQ9, vecIRQ10, vecIRQ11, vecIRQ12, vecIRQ13, vecIRQ14, vecIRQ15,
}

// MSIStubs maps the first limits.MaxMSIVectors MSI vectors
// (defs.VecMSILow..) to their entry points, handed out by the msi
// package as devices register for message-signaled interrupts.
var MSIStubs = [limits.MaxMSIVectors]func(){
	vecMSI0, vecMSI1, vecMSI2, vecMSI3, vecMSI4, vecMSI5, vecMSI6, vecMSI7,
	vecMSI8, vecMSI9, vecMSI10, vecMSI11, vecMSI12, vecMSI13, vecMSI14, vecMSI15,
}

// SyscallStub is the entry point for defs.VecSyscall (int 0x80).
var SyscallStub = vecSyscall80
