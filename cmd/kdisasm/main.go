// Command kdisasm decodes the instruction bytes from a kernel panic
// dump.
//
// When the kernel halts on a ring0 fault it prints the faulting eip
// and, when the surrounding code was readable, a hex dump of the 32
// bytes starting at eip rounded down to a 16-byte boundary:
//
//	kernel: fault in kernel mode: trap=0 err=0x0 eip=0xc0102f37 cr2=0x0
//	code: 0xc0102f30: 55 89 e5 53 8b 45 08 f7 75 0c 0f 0b 5b 5d c3 90 90 90 90 90 90 90 90 90 90 90 90 90 90 90 90 90
//
// Feed the captured console log to this tool and it disassembles the
// dumped bytes in 32-bit mode, marking the faulting instruction, so
// the crash is readable without digging the image out and running a
// full disassembler by hand.
//
// Usage: kdisasm [console.log]
// With no argument the log is read from stdin.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

func main() {
	in := os.Stdin
	if len(os.Args) == 2 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	} else if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "%s [console.log]\n", os.Args[0])
		os.Exit(1)
	}

	eip, base, code, err := parseDump(in)
	if err != nil {
		log.Fatal(err)
	}
	if len(code) == 0 {
		log.Fatal("no code: lines found in input")
	}
	disasm(os.Stdout, eip, base, code)
}

// parseDump pulls the faulting eip and the dumped code bytes out of a
// console log. Multiple code: lines concatenate; the first one's
// address is the load address of the whole run.
func parseDump(r io.Reader) (eip, base uint32, code []byte, err error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "eip=0x"); i >= 0 && eip == 0 {
			v, perr := parseHexField(line[i+len("eip=0x"):])
			if perr != nil {
				return 0, 0, nil, fmt.Errorf("bad eip in %q", line)
			}
			eip = v
		}
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "code: ")
		if !ok {
			continue
		}
		addrStr, hexStr, ok := strings.Cut(rest, ": ")
		if !ok {
			return 0, 0, nil, fmt.Errorf("malformed code line %q", line)
		}
		addr, perr := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 32)
		if perr != nil {
			return 0, 0, nil, fmt.Errorf("bad address in %q", line)
		}
		raw, perr := hex.DecodeString(strings.ReplaceAll(hexStr, " ", ""))
		if perr != nil {
			return 0, 0, nil, fmt.Errorf("bad hex bytes in %q", line)
		}
		if code == nil {
			base = uint32(addr)
		}
		code = append(code, raw...)
	}
	return eip, base, code, sc.Err()
}

func parseHexField(s string) (uint32, error) {
	end := 0
	for end < len(s) && isHexDigit(s[end]) {
		end++
	}
	v, err := strconv.ParseUint(s[:end], 16, 32)
	return uint32(v), err
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// disasm walks code in 32-bit mode, printing one instruction per line
// in GNU syntax and pointing at the one eip falls inside. A byte run
// the decoder rejects advances by one and prints as .byte, so a dump
// that starts mid-instruction resynchronizes instead of aborting.
func disasm(w io.Writer, eip, base uint32, code []byte) {
	pc := base
	for len(code) > 0 {
		marker := "   "
		inst, err := x86asm.Decode(code, 32)
		size := 1
		text := fmt.Sprintf(".byte 0x%02x", code[0])
		if err == nil {
			size = inst.Len
			text = x86asm.GNUSyntax(inst, uint64(pc), nil)
		}
		if eip >= pc && eip < pc+uint32(size) {
			marker = "=> "
		}
		fmt.Fprintf(w, "%s0x%08x: %s\n", marker, pc, text)
		pc += uint32(size)
		code = code[size:]
	}
}
