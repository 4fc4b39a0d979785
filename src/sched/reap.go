package sched

import "proc"

// ReapZombies drains every zombie task proc.Exit has queued, freeing
// its address space and kernel stack and dropping it from the run
// queue. Teardown runs here, from the idle path, rather than inline
// in Exit.
func (s *Scheduler) ReapZombies() int {
	n := 0
	for {
		id, ok := proc.Reap()
		if !ok {
			return n
		}
		// Re-check state: a queued ID could in principle have been
		// recycled for a fresh task since Exit enqueued it.
		if t, ok := s.Get(id); ok && t.State == proc.StateZombie {
			proc.Reclaim(s.v, t)
			s.Remove(id)
		}
		n++
	}
}
