// Command kprofdump converts the kernel's accounting dump into a
// pprof protobuf profile.
//
// The kernel's DumpStats prints one line per task over the debug
// console:
//
//	prof: task 3 user=1042 sys=77
//
// Feed a captured console log to this tool and it emits a profile
// whose samples are the per-task user/system tick counts, one
// synthetic location per task and mode, so the usual pprof tooling
// (top, -http) can rank where CPU time went.
//
// Usage: kprofdump [console.log] > kernel.pb.gz
// With no argument the log is read from stdin.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"
)

// sample is one parsed `prof:` line.
type sample struct {
	task uint64
	user int64
	sys  int64
}

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
		fmt.Fprintf(os.Stderr, "%s [console.log] > kernel.pb.gz\n", os.Args[0])
		os.Exit(1)
	}

	samples, err := parseDump(in)
	if err != nil {
		log.Fatal(err)
	}
	if len(samples) == 0 {
		log.Fatal("no prof: lines found in input")
	}
	p := buildProfile(samples)
	if err := p.Write(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// parseDump scans the console log for `prof: task N user=U sys=S`
// lines, ignoring everything else (the log is full of ordinary kernel
// chatter).
func parseDump(r io.Reader) ([]sample, error) {
	var out []sample
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 5 || fields[0] != "prof:" || fields[1] != "task" {
			continue
		}
		task, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad task id in %q", sc.Text())
		}
		user, err := parseCount(fields[3], "user=")
		if err != nil {
			return nil, fmt.Errorf("%v in %q", err, sc.Text())
		}
		sys, err := parseCount(fields[4], "sys=")
		if err != nil {
			return nil, fmt.Errorf("%v in %q", err, sc.Text())
		}
		out = append(out, sample{task: task, user: user, sys: sys})
	}
	return out, sc.Err()
}

func parseCount(field, prefix string) (int64, error) {
	v, ok := strings.CutPrefix(field, prefix)
	if !ok {
		return 0, fmt.Errorf("expected %s<count>", prefix)
	}
	return strconv.ParseInt(v, 10, 64)
}

// buildProfile lays the samples out as a one-location-deep profile:
// each task contributes a "task<id> (user)" and "task<id> (kernel)"
// frame weighted by its tick counts.
func buildProfile(samples []sample) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cpu", Unit: "ticks"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "ticks"},
		Period:     1,
	}
	var id uint64 = 1
	add := func(name string, ticks int64) {
		if ticks == 0 {
			return
		}
		fn := &profile.Function{ID: id, Name: name, SystemName: name}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		id++
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{ticks},
		})
	}
	for _, s := range samples {
		add(fmt.Sprintf("task%d (user)", s.task), s.user)
		add(fmt.Sprintf("task%d (kernel)", s.task), s.sys)
	}
	return p
}
