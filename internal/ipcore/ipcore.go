// Package ipcore gives access to the spectrometer registers and spectrum
// buffers of the FPGA IP core.
//
// All access goes through a single mutex. The acquisition loop holds it for
// one consistent snapshot per interrupt; the control plane takes it briefly
// for each getter or setter.
package ipcore

import (
	"fmt"
	"sync"
)

// BufferMemory exposes the spectrum buffers written by the hardware.
type BufferMemory interface {
	NumBuffers() int
	// Buffer returns a view of buffer i. The contents may change once the
	// IP core lock is released.
	Buffer(i int) []uint64
}

// Snapshot is the spectrometer state read under the lock for one interrupt.
type Snapshot struct {
	IntegrationsExp uint8
	Kurtosis1       uint8
	Kurtosis2       uint8
	KurtosisEnabled bool
	LastBuffer      int
}

// Kurtosis holds the kurtosis thresholder settings.
type Kurtosis struct {
	Shift1  uint8 `json:"kurt_1"`
	Shift2  uint8 `json:"kurt_2"`
	Enabled bool  `json:"enabled"`
}

// MaxIntegrationsExp is the largest integrations exponent the core accepts.
var MaxIntegrationsExp = uint8(fieldIntegrationsExp.max())

// MaxKurtosisShift is the largest kurtosis shift the core accepts.
var MaxKurtosisShift = uint8(fieldKurt1.max())

// IPCore is the lock-protected view of the hardware.
type IPCore struct {
	mu         sync.Mutex
	regs       Registers
	bufs       BufferMemory
	nextBuffer int
}

// New wraps a register bank and buffer memory. It checks the product ID and
// skips any buffers completed before the daemon started.
func New(regs Registers, bufs BufferMemory) (*IPCore, error) {
	if id := regs.Read32(RegProductID); id != ProductID {
		return nil, hardwareError("probe", fmt.Errorf("%w: got %#08x, want %#08x", ErrBadProductID, id, ProductID))
	}
	n := bufs.NumBuffers()
	if n < 2 || n > int(fieldLastBuffer.max())+1 {
		return nil, hardwareError("probe", fmt.Errorf("unsupported number of spectrum buffers %d", n))
	}

	c := &IPCore{regs: regs, bufs: bufs}
	c.nextBuffer = (int(fieldLastBuffer.get(regs)) + 1) % n
	return c, nil
}

// Version returns the raw IP core version register.
func (c *IPCore) Version() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs.Read32(RegVersion)
}

// Lock acquires exclusive access and returns a Session for it.
func (c *IPCore) Lock() *Session {
	c.mu.Lock()
	return &Session{core: c}
}

// IntegrationsExp returns the current integrations exponent.
func (c *IPCore) IntegrationsExp() uint8 {
	s := c.Lock()
	defer s.Unlock()
	return s.SpectrometerIntegrationsExp()
}

// SetIntegrationsExp sets the integrations exponent. Out-of-range values
// return a validation error and leave the register untouched.
func (c *IPCore) SetIntegrationsExp(v uint8) error {
	s := c.Lock()
	defer s.Unlock()
	return s.SetSpectrometerIntegrationsExp(v)
}

// Kurtosis returns the kurtosis thresholder settings.
func (c *IPCore) Kurtosis() Kurtosis {
	s := c.Lock()
	defer s.Unlock()
	return Kurtosis{
		Shift1:  s.SpectrometerKurt1(),
		Shift2:  s.SpectrometerKurt2(),
		Enabled: s.SpectrometerKurtEnable(),
	}
}

// SetKurtosis writes all kurtosis settings, or none of them if any value is
// out of range.
func (c *IPCore) SetKurtosis(k Kurtosis) error {
	if err := fieldKurt1.check(uint32(k.Shift1)); err != nil {
		return err
	}
	if err := fieldKurt2.check(uint32(k.Shift2)); err != nil {
		return err
	}

	s := c.Lock()
	defer s.Unlock()
	fieldKurt1.set(c.regs, uint32(k.Shift1))
	fieldKurt2.set(c.regs, uint32(k.Shift2))
	fieldKurtEnable.set(c.regs, boolBit(k.Enabled))
	return nil
}

// Session is held while the IP core lock is taken.
type Session struct {
	core     *IPCore
	released bool
}

// Unlock releases the IP core. Safe to call more than once.
func (s *Session) Unlock() {
	if s.released {
		return
	}
	s.released = true
	s.core.mu.Unlock()
}

func (s *Session) SpectrometerIntegrationsExp() uint8 {
	return uint8(fieldIntegrationsExp.get(s.core.regs))
}

func (s *Session) SetSpectrometerIntegrationsExp(v uint8) error {
	if err := fieldIntegrationsExp.check(uint32(v)); err != nil {
		return err
	}
	fieldIntegrationsExp.set(s.core.regs, uint32(v))
	return nil
}

func (s *Session) SpectrometerKurt1() uint8 {
	return uint8(fieldKurt1.get(s.core.regs))
}

func (s *Session) SpectrometerKurt2() uint8 {
	return uint8(fieldKurt2.get(s.core.regs))
}

func (s *Session) SpectrometerKurtEnable() bool {
	return fieldKurtEnable.get(s.core.regs) != 0
}

func (s *Session) SpectrometerLastBuffer() int {
	return int(fieldLastBuffer.get(s.core.regs))
}

// Snapshot reads every spectrometer register at once.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		IntegrationsExp: s.SpectrometerIntegrationsExp(),
		Kurtosis1:       s.SpectrometerKurt1(),
		Kurtosis2:       s.SpectrometerKurt2(),
		KurtosisEnabled: s.SpectrometerKurtEnable(),
		LastBuffer:      s.SpectrometerLastBuffer(),
	}
}

// SpectrometerBuffers returns, oldest first, the buffers completed since the
// previous call. The views are only valid while the session is held.
//
// If the hardware completes a full lap of the ring between two calls the
// lap cannot be detected and those buffers are not returned.
func (s *Session) SpectrometerBuffers() [][]uint64 {
	c := s.core
	n := c.bufs.NumBuffers()
	end := (s.SpectrometerLastBuffer() + 1) % n

	var out [][]uint64
	for c.nextBuffer != end {
		out = append(out, c.bufs.Buffer(c.nextBuffer))
		c.nextBuffer = (c.nextBuffer + 1) % n
	}
	return out
}

// setLastBuffer is used by the simulator to publish a completed buffer.
func (s *Session) setLastBuffer(i int) {
	fieldLastBuffer.set(s.core.regs, uint32(i))
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
