// Command vecgen emits src/trap/vectors_386.s: one entry stub per
// interrupt vector the kernel installs, plus the shared commonstub
// and trapret routines, in the classic generated-vectors.S shape.
// Regenerate after changing the fault, IRQ, or MSI vector ranges in
// src/trap/vectors.go.
//
// Usage: go run ./cmd/vecgen > src/trap/vectors_386.s
package main

import (
	"bufio"
	"fmt"
	"os"
)

// errcodeVectors are the CPU exceptions that push a hardware error
// code automatically; every other vector's stub pushes a dummy zero
// so the TrapFrame layout is uniform.
var errcodeVectors = map[int]bool{8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true}

const maxMSIVectors = 16

func main() {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintln(w, "// Code generated by cmd/vecgen. DO NOT EDIT BY HAND.")
	fmt.Fprintln(w, "//")
	fmt.Fprintln(w, "// Each stub pushes a dummy error code (only the seven vectors the CPU")
	fmt.Fprintln(w, "// itself supplies one for skip this), pushes its own vector number,")
	fmt.Fprintln(w, "// and falls into the shared commonstub, which builds the TrapFrame")
	fmt.Fprintln(w, "// and calls commonTrap, in the classic generated-vectors.S shape.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, `#include "textflag.h"`)
	fmt.Fprintln(w)

	for i := 0; i < 32; i++ {
		emitStub(w, fmt.Sprintf("vecFault%d", i), i)
	}
	for i := 0; i < 16; i++ {
		emitStub(w, fmt.Sprintf("vecIRQ%d", i), 32+i)
	}
	emitStub(w, "vecSyscall80", 0x80)
	for i := 0; i < maxMSIVectors; i++ {
		emitStub(w, fmt.Sprintf("vecMSI%d", i), 48+i)
	}

	fmt.Fprint(w, commonTrailer)
}

func emitStub(w *bufio.Writer, name string, vector int) {
	fmt.Fprintf(w, "TEXT ·%s(SB), NOSPLIT, $0\n", name)
	if errcodeVectors[vector] {
		fmt.Fprintf(w, "\tPUSHL $%d\n", vector)
	} else {
		fmt.Fprintf(w, "\tPUSHL $0\n")
		fmt.Fprintf(w, "\tPUSHL $%d\n", vector)
	}
	fmt.Fprintf(w, "\tJMP commonstub(SB)\n\n")
}

const commonTrailer = `// commonstub builds the TrapFrame on the current stack and calls
// commonTrap(tf *TrapFrame). It never returns via RET: trapret (below)
// is the only path back to interrupted code, reached by a JMP after
// the CALL returns.
TEXT commonstub(SB), NOSPLIT, $0
	PUSHL AX
	PUSHL CX
	PUSHL DX
	PUSHL BX
	PUSHL $0 // espDummy placeholder; never restored into SP
	PUSHL BP
	PUSHL SI
	PUSHL DI

	XORL AX, AX
	MOVW DS, AX
	PUSHL AX
	XORL AX, AX
	MOVW ES, AX
	PUSHL AX
	XORL AX, AX
	MOVW FS, AX
	PUSHL AX
	XORL AX, AX
	MOVW GS, AX
	PUSHL AX

	MOVW $0x10, AX // defs.KernelDS
	MOVW AX, DS
	MOVW AX, ES

	MOVL SP, AX
	PUSHL AX
	CALL ·commonTrap(SB)
	ADDL $4, SP

	JMP trapret(SB)

// trapret restores the saved TrapFrame and resumes the interrupted
// context via IRET. Called directly by commonstub after the Go
// handler returns, and by the scheduler when starting a brand new
// task whose kernel stack was seeded with a synthetic TrapFrame.
TEXT trapret(SB), NOSPLIT, $0
	POPL AX
	MOVW AX, GS
	POPL AX
	MOVW AX, FS
	POPL AX
	MOVW AX, ES
	POPL AX
	MOVW AX, DS

	POPL DI
	POPL SI
	POPL BP
	ADDL $4, SP // discard espDummy
	POPL BX
	POPL DX
	POPL CX
	POPL AX

	ADDL $8, SP // discard trapno, err
	IRETL
`
