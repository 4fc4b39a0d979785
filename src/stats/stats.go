// Package stats reports point-in-time snapshots of kernel subsystems
// for diagnostics: plain struct-of-counters values, since a
// freestanding target has no expvar/metrics stack to publish to.
package stats

// PMMSnapshot mirrors mem.PMM.Stats(), kept as its own type so callers
// outside mem (the console status line, a future /proc-style syscall)
// don't need to import mem just to report page counts.
type PMMSnapshot struct {
	FreePages  uint32
	UsedPages  uint32
	TotalPages uint32
}

// TaskSnapshot summarizes the scheduler's live task population.
type TaskSnapshot struct {
	Runnable int
	Blocked  int
	Zombie   int
}
