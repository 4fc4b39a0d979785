// Package caller dumps the Go-side call stack active when a kernel
// fault handler runs. A core-path failure should log enough to debug
// before the kernel halts, and the Go call stack of the trap-dispatch
// path is the only backtrace available without walking the
// interrupted task's own stack memory by hand.
package caller

import (
	"fmt"
	"runtime"
)

// Frame is one entry of a captured Go call stack.
type Frame struct {
	File string
	Line int
	Func string
}

// Capture returns up to max frames starting skip levels above its own
// caller.
func Capture(skip, max int) []Frame {
	frames := make([]Frame, 0, max)
	for i := 0; i < max; i++ {
		pc, file, line, ok := runtime.Caller(skip + 1 + i)
		if !ok {
			break
		}
		name := "?"
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
		frames = append(frames, Frame{File: file, Line: line, Func: name})
	}
	return frames
}

// Dump prints a Capture result under prefix, one frame per line, via
// fmt.Printf -- the kernel has no logging library to target on a
// freestanding image.
func Dump(prefix string, frames []Frame) {
	fmt.Printf("%s: call stack:\n", prefix)
	for i, f := range frames {
		fmt.Printf("%s:   #%d %s (%s:%d)\n", prefix, i, f.Func, f.File, f.Line)
	}
}
