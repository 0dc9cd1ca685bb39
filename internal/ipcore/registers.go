package ipcore

import (
	"fmt"
	"sync"
)

// Registers is a 32-bit register bank addressed by byte offset.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// Register offsets of the IP core.
const (
	RegProductID           uint32 = 0x00
	RegVersion             uint32 = 0x04
	RegSpectrometerControl uint32 = 0x20
	RegSpectrometerStatus  uint32 = 0x24

	// RegisterSpan is the size of the register map in bytes.
	RegisterSpan = 0x40
)

// ProductID is the value of RegProductID ("maia" in little-endian ASCII).
const ProductID uint32 = 0x6169616d

// field is a bit range inside a register.
type field struct {
	name   string
	offset uint32
	shift  uint
	width  uint
}

var (
	fieldIntegrationsExp = field{"integrations_exp", RegSpectrometerControl, 0, 5}
	fieldKurtEnable      = field{"kurt_enable", RegSpectrometerControl, 5, 1}
	fieldKurt1           = field{"kurt_1", RegSpectrometerControl, 8, 6}
	fieldKurt2           = field{"kurt_2", RegSpectrometerControl, 16, 6}
	fieldLastBuffer      = field{"last_buffer", RegSpectrometerStatus, 0, 3}
)

func (f field) max() uint32 {
	return 1<<f.width - 1
}

func (f field) get(r Registers) uint32 {
	return r.Read32(f.offset) >> f.shift & f.max()
}

// set writes v into the field with a read-modify-write. Callers validate v.
func (f field) set(r Registers, v uint32) {
	mask := f.max() << f.shift
	cur := r.Read32(f.offset)
	r.Write32(f.offset, cur&^mask|(v<<f.shift)&mask)
}

func (f field) check(v uint32) error {
	if v > f.max() {
		return rangeError(f.name, v, f.max())
	}
	return nil
}

// MemRegisters is an in-memory register bank used by the simulator and tests.
type MemRegisters struct {
	mu    sync.Mutex
	words []uint32
}

// NewMemRegisters returns a zeroed bank spanning size bytes.
func NewMemRegisters(size int) *MemRegisters {
	return &MemRegisters{words: make([]uint32, size/4)}
}

func (m *MemRegisters) Read32(offset uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[m.index(offset)]
}

func (m *MemRegisters) Write32(offset uint32, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words[m.index(offset)] = value
}

func (m *MemRegisters) index(offset uint32) int {
	if offset%4 != 0 || int(offset/4) >= len(m.words) {
		panic(fmt.Sprintf("ipcore: register offset %#x out of range", offset))
	}
	return int(offset / 4)
}
