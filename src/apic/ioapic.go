package apic

// redirection is one IO-APIC redirection-table entry: the vector a
// matched IRQ is delivered as, the destination APIC ID, and whether
// delivery is currently masked. Polarity and trigger mode stay at
// their ISA defaults, so they are not tracked.
type redirection struct {
	vector uint32
	dest   uint32
	masked bool
}

// IOAPIC routes the 16 legacy ISA IRQ lines to IDT vectors.
type IOAPIC struct {
	table [16]redirection
}

// NewIOAPIC returns an IO-APIC with every line masked.
func NewIOAPIC() *IOAPIC {
	io := &IOAPIC{}
	for i := range io.table {
		io.table[i].masked = true
	}
	return io
}

// SetRedirection routes irq (0-15) to vector on destination apicID.
func (io *IOAPIC) SetRedirection(irq uint32, vector uint32, apicID uint32) {
	io.table[irq] = redirection{vector: vector, dest: apicID}
}

// Mask/Unmask enable or disable delivery of one IRQ line without
// disturbing its routing.
func (io *IOAPIC) Mask(irq uint32)   { io.table[irq].masked = true }
func (io *IOAPIC) Unmask(irq uint32) { io.table[irq].masked = false }

// VectorFor reports the vector irq is currently routed to and whether
// that line is unmasked.
func (io *IOAPIC) VectorFor(irq uint32) (vector uint32, enabled bool) {
	r := io.table[irq]
	return r.vector, !r.masked
}
