package apic

import "testing"

func TestInitEnablesSVRWithSpuriousVector(t *testing.T) {
	l := New()
	l.Init(39)
	if l.regs[regSVR] != svrEnable|39 {
		t.Fatalf("SVR = 0x%x, want enable bit set with vector 39", l.regs[regSVR])
	}
}

func TestStartAndStopTimer(t *testing.T) {
	l := New()
	l.StartTimer(32, 10000)
	if l.regs[regTIMER]&timerPeriodic == 0 {
		t.Fatal("expected periodic bit set after StartTimer")
	}
	if l.regs[regTICR] != 10000 {
		t.Fatalf("TICR = %d, want 10000", l.regs[regTICR])
	}
	l.StopTimer()
	if l.regs[regTIMER] != lvtMasked {
		t.Fatalf("TIMER = 0x%x, want masked", l.regs[regTIMER])
	}
}

func TestEOIFuncAcknowledges(t *testing.T) {
	l := New()
	l.regs[regEOI] = 0xff
	l.EOIFunc()(32)
	if l.regs[regEOI] != 0 {
		t.Fatal("expected EOIFunc to clear the EOI register")
	}
}

func TestIOAPICRedirectionRoundTrip(t *testing.T) {
	io := NewIOAPIC()
	if _, enabled := io.VectorFor(1); enabled {
		t.Fatal("expected IRQ1 to start masked")
	}
	io.SetRedirection(1, 33, 0)
	io.Unmask(1)
	vec, enabled := io.VectorFor(1)
	if !enabled || vec != 33 {
		t.Fatalf("VectorFor(1) = %d, %v, want 33, true", vec, enabled)
	}
	io.Mask(1)
	if _, enabled := io.VectorFor(1); enabled {
		t.Fatal("expected IRQ1 masked again")
	}
}
