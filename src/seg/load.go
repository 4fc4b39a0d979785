package seg

import "cpu"

// Load installs g as the live GDT and loads the task register with
// defs.SelTSS. Called exactly once during boot, after NewGDT and
// before any interrupt can occur.
func (g *GDT) Load() {
	p := g.Pointer()
	cpu.Lgdt(p.Limit, p.Base)
	cpu.Ltr(uint16(selTSS))
}

const selTSS = 0x28
