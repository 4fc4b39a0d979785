// Package accnt tracks per-task CPU-time accounting, split between
// user and system mode. A freestanding kernel has no wall clock until
// its timer driver is running, so time is accumulated in raw timer
// ticks handed in by the caller (the scheduler, once per tick) rather
// than sampled from a runtime clock that does not exist here.
package accnt

// Accnt is one task's accumulated tick counts.
type Accnt struct {
	UserTicks   uint64
	SystemTicks uint64
}

// Tick charges one timer tick to the task, in user or system mode
// depending on which ring was interrupted.
func (a *Accnt) Tick(fromUserMode bool) {
	if fromUserMode {
		a.UserTicks++
	} else {
		a.SystemTicks++
	}
}

// Total returns the task's total accounted ticks.
func (a *Accnt) Total() uint64 { return a.UserTicks + a.SystemTicks }

// Add folds child's usage into a, used when a parent collects a
// reaped child's accounting.
func (a *Accnt) Add(child *Accnt) {
	a.UserTicks += child.UserTicks
	a.SystemTicks += child.SystemTicks
}
