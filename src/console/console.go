// Package console implements VGA text-mode output: an 80x25 cell
// buffer with scroll-on-overflow and hardware cursor update via ports
// 0x3D4/0x3D5. Cell writes go through a host-level simulated video
// buffer the same way vm's dataPages simulate physical RAM, since
// nothing here runs against a real VGA window. Wide-rune awareness
// uses golang.org/x/text/width rather than a hand-rolled
// East-Asian-width table.
package console

import (
	"cpu"

	"golang.org/x/text/width"
)

const (
	Width  = 80
	Height = 25

	crtcAddr = 0x3D4
	crtcData = 0x3D5

	defaultAttr = 0x0F // white on black, matching vga.c's default
)

// cell packs a character and its VGA attribute byte, mirroring vga.c's
// MAKE_CHAR(c, fore, back).
type cell struct {
	ch   byte
	attr uint8
}

// Console is one 80x25 VGA text-mode screen.
type Console struct {
	buf      [Height][Width]cell
	row, col int
	attr     uint8
}

// New returns a blanked console with the default attribute.
func New() *Console {
	c := &Console{attr: defaultAttr}
	c.clear()
	return c
}

func (c *Console) clear() {
	for y := range c.buf {
		for x := range c.buf[y] {
			c.buf[y][x] = cell{ch: ' ', attr: c.attr}
		}
	}
}

// SetColor sets the foreground (low nibble) / background (high nibble)
// colors used for subsequent writes, per vga_setcolor.
func (c *Console) SetColor(fg, bg uint8) {
	c.attr = (bg << 4) | (fg & 0x0F)
}

// Putc writes one rune, advancing the cursor and scrolling when the
// buffer overflows. A rune that golang.org/x/text/width reports as
// wide (East Asian fullwidth/wide) occupies two cells, matching how a
// real VGA text console would need a double-width glyph rendered, the
// way terminal emulators reserve two columns for it.
func (c *Console) Putc(r rune) {
	if r == '\n' {
		c.col = 0
		c.row++
		c.scroll()
		c.updateCursor()
		return
	}
	cells := 1
	if width.LookupRune(r).Kind() == width.EastAsianWide || width.LookupRune(r).Kind() == width.EastAsianFullwidth {
		cells = 2
	}
	b := byte(r)
	if r > 0xFF {
		b = '?' // VGA text mode has no glyph beyond the active code page
	}
	c.buf[c.row][c.col] = cell{ch: b, attr: c.attr}
	c.col++
	for i := 1; i < cells && c.col < Width; i++ {
		c.buf[c.row][c.col] = cell{ch: 0, attr: c.attr}
		c.col++
	}
	if c.col >= Width {
		c.col -= Width
		c.row++
	}
	c.scroll()
	c.updateCursor()
}

// WriteString writes every rune of s via Putc, used by the write
// syscall's console path.
func (c *Console) WriteString(s string) {
	for _, r := range s {
		c.Putc(r)
	}
}

func (c *Console) scroll() {
	if c.row < Height {
		return
	}
	copy(c.buf[:Height-1], c.buf[1:Height])
	for x := range c.buf[Height-1] {
		c.buf[Height-1][x] = cell{ch: ' ', attr: c.attr}
	}
	c.row = Height - 1
}

// updateCursor programs the CRTC cursor-location registers, per
// vga.c's update_cursor. A no-op in this host-level build beyond the
// four port writes, since there is no real CRTC listening.
func (c *Console) updateCursor() {
	loc := uint16(c.row*Width + c.col)
	cpu.Outb(crtcAddr, 14)
	cpu.Outb(crtcData, uint8(loc>>8))
	cpu.Outb(crtcAddr, 15)
	cpu.Outb(crtcData, uint8(loc&0xFF))
}

// Snapshot returns the visible screen as Height strings, for tests and
// for a future kernel-panic dump.
func (c *Console) Snapshot() []string {
	lines := make([]string, Height)
	for y := range c.buf {
		b := make([]byte, Width)
		for x := range c.buf[y] {
			ch := c.buf[y][x].ch
			if ch == 0 {
				ch = ' '
			}
			b[x] = ch
		}
		lines[y] = string(b)
	}
	return lines
}
