package vm

import "mem"

// dataPages backs the byte content of ordinary (non-page-table) pages
// the way frames backs Pmap_t content for PD/PT pages: a host-level
// stand-in for "physical RAM you can address," needed because this
// layer models page tables without ever running on real hardware.
// Lazily created per frame the first time anything touches it.
type dataPages struct {
	pages map[mem.Pa_t]*[mem.PageSize]byte
}

func (v *VM) dataPage(pa mem.Pa_t) *[mem.PageSize]byte {
	if v.data.pages == nil {
		v.data.pages = make(map[mem.Pa_t]*[mem.PageSize]byte)
	}
	pa = mem.PageOf(pa)
	p, ok := v.data.pages[pa]
	if !ok {
		p = &[mem.PageSize]byte{}
		v.data.pages[pa] = p
	}
	return p
}

// WriteBytes writes data into the physical frame pa starting at
// offset, used by TaskLoad to populate a freshly mapped user page with
// program bytes and by device drivers writing into a DMA buffer.
func (v *VM) WriteBytes(pa mem.Pa_t, offset int, data []byte) {
	p := v.dataPage(pa)
	copy(p[offset:], data)
}

// ReadBytes reads n bytes from the physical frame pa starting at
// offset.
func (v *VM) ReadBytes(pa mem.Pa_t, offset, n int) []byte {
	p := v.dataPage(pa)
	out := make([]byte, n)
	copy(out, p[offset:offset+n])
	return out
}
