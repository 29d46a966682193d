// Package rdram holds the emulated console's main memory image.
//
// The image is laid out the way N64 emulators share RDRAM with their plugins:
// every 32-bit word is stored in host (little-endian) order, so byte and
// halfword accesses have their address swizzled (addr^3 for bytes, addr^2
// for halfwords). All accessors take N64 byte addresses.
package rdram

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Size4MB is the size of a stock console's memory.
	Size4MB = 0x400000
	// Size8MB is the size with the expansion pak inserted.
	Size8MB = 0x800000
)

// Memory is a flat RDRAM image. It is not safe for concurrent use; the
// framebuffer core and the CPU emulation share it from one thread.
type Memory struct {
	data []byte
}

// New creates a zeroed memory image of size bytes, rounded down to a whole
// number of words.
func New(size int) *Memory {
	if size < 4 {
		size = 4
	}
	return &Memory{data: make([]byte, size&^3)}
}

// Len returns the size of the image in bytes.
func (m *Memory) Len() int {
	return len(m.data)
}

// MaxAddress returns the last valid byte address.
func (m *Memory) MaxAddress() uint32 {
	return uint32(len(m.data) - 1)
}

func (m *Memory) inRange(address, n uint32) bool {
	return uint64(address)+uint64(n) <= uint64(len(m.data))
}

// Word reads the 32-bit word containing address. Out of range reads return 0.
func (m *Memory) Word(address uint32) uint32 {
	address &^= 3
	if !m.inRange(address, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(m.data[address:])
}

// SetWord writes the 32-bit word containing address. Out of range writes are dropped.
func (m *Memory) SetWord(address, value uint32) {
	address &^= 3
	if !m.inRange(address, 4) {
		return
	}
	binary.LittleEndian.PutUint32(m.data[address:], value)
}

// Half reads the halfword containing address.
func (m *Memory) Half(address uint32) uint16 {
	address = (address &^ 1) ^ 2
	if !m.inRange(address, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(m.data[address:])
}

// SetHalf writes the halfword containing address.
func (m *Memory) SetHalf(address uint32, value uint16) {
	address = (address &^ 1) ^ 2
	if !m.inRange(address, 2) {
		return
	}
	binary.LittleEndian.PutUint16(m.data[address:], value)
}

// Byte reads a single byte.
func (m *Memory) Byte(address uint32) uint8 {
	address ^= 3
	if !m.inRange(address, 1) {
		return 0
	}
	return m.data[address]
}

// SetByte writes a single byte.
func (m *Memory) SetByte(address uint32, value uint8) {
	address ^= 3
	if !m.inRange(address, 1) {
		return
	}
	m.data[address] = value
}

// CopyWords copies n words starting at the word containing address into dst
// and returns the number of words copied.
func (m *Memory) CopyWords(dst []uint32, address uint32) int {
	address &^= 3
	n := 0
	for n < len(dst) && m.inRange(address, 4) {
		dst[n] = binary.LittleEndian.Uint32(m.data[address:])
		address += 4
		n++
	}
	return n
}

// Fill writes value into every word of [address, address+size).
func (m *Memory) Fill(address, size, value uint32) {
	for a := address &^ 3; a < address+size; a += 4 {
		m.SetWord(a, value)
	}
}

// CutHeight clips height so that height rows of stride bytes starting at
// address never read past the end of the image. It returns 0 for addresses
// beyond the image.
func (m *Memory) CutHeight(address, height, stride uint32) uint32 {
	last := m.MaxAddress()
	if address > last {
		return 0
	}
	if stride == 0 {
		return height
	}
	if uint64(address)+uint64(stride)*uint64(height) > uint64(last)+1 {
		return (last + 1 - address) / stride
	}
	return height
}

// Load reads a big-endian memory dump (as the console sees it) into the
// image starting at address 0.
func (m *Memory) Load(r io.Reader) (int, error) {
	buf := make([]byte, len(m.data))
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, fmt.Errorf("rdram: load dump: %w", err)
	}
	for i := 0; i+4 <= n; i += 4 {
		m.SetWord(uint32(i), binary.BigEndian.Uint32(buf[i:]))
	}
	return n, nil
}

// Dump writes the image to w in big-endian order.
func (m *Memory) Dump(w io.Writer) error {
	buf := make([]byte, len(m.data))
	for i := 0; i+4 <= len(m.data); i += 4 {
		binary.BigEndian.PutUint32(buf[i:], m.Word(uint32(i)))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("rdram: write dump: %w", err)
	}
	return nil
}
