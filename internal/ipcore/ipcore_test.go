package ipcore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

func newTestCore(t *testing.T, numBuffers, bins int) (*IPCore, *MemRegisters, *MemBuffers) {
	t.Helper()
	regs := NewMemRegisters(RegisterSpan)
	regs.Write32(RegProductID, ProductID)
	fieldLastBuffer.set(regs, uint32(numBuffers-1))
	bufs := NewMemBuffers(numBuffers, bins)
	core, err := New(regs, bufs)
	require.NoError(t, err)
	return core, regs, bufs
}

func TestNewChecksProductID(t *testing.T) {
	t.Parallel()

	_, err := New(NewMemRegisters(RegisterSpan), NewMemBuffers(4, 8))
	require.ErrorIs(t, err, ErrBadProductID)
	assert.True(t, errors.IsCategory(err, errors.CategoryHardware))
}

func TestNewChecksBufferCount(t *testing.T) {
	t.Parallel()

	regs := NewMemRegisters(RegisterSpan)
	regs.Write32(RegProductID, ProductID)
	_, err := New(regs, NewMemBuffers(16, 8))
	require.Error(t, err)
}

func TestFieldsDoNotOverlap(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t, 4, 8)
	require.NoError(t, core.SetIntegrationsExp(MaxIntegrationsExp))
	require.NoError(t, core.SetKurtosis(Kurtosis{Shift1: 63, Shift2: 1, Enabled: true}))

	s := core.Lock()
	snap := s.Snapshot()
	s.Unlock()

	assert.Equal(t, Snapshot{
		IntegrationsExp: 31,
		Kurtosis1:       63,
		Kurtosis2:       1,
		KurtosisEnabled: true,
		LastBuffer:      3,
	}, snap)

	require.NoError(t, core.SetIntegrationsExp(0))
	assert.Equal(t, Kurtosis{Shift1: 63, Shift2: 1, Enabled: true}, core.Kurtosis())
}

func TestSettersRejectOutOfRange(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t, 4, 8)
	require.NoError(t, core.SetIntegrationsExp(10))

	err := core.SetIntegrationsExp(32)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, uint8(10), core.IntegrationsExp(), "register must be unchanged")

	err = core.SetKurtosis(Kurtosis{Shift1: 1, Shift2: 64})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, Kurtosis{}, core.Kurtosis(), "no partial writes")
}

func TestSpectrometerBuffersFollowLastBuffer(t *testing.T) {
	t.Parallel()

	core, regs, bufs := newTestCore(t, 4, 2)
	for i := range 4 {
		bufs.Buffer(i)[0] = uint64(i)
	}

	s := core.Lock()
	assert.Empty(t, s.SpectrometerBuffers(), "stale buffers are skipped at start")
	s.Unlock()

	fieldLastBuffer.set(regs, 1)
	s = core.Lock()
	got := s.SpectrometerBuffers()
	s.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0][0])
	assert.Equal(t, uint64(1), got[1][0])

	// wrap around the ring
	fieldLastBuffer.set(regs, 0)
	s = core.Lock()
	got = s.SpectrometerBuffers()
	s.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{2, 3, 0}, []uint64{got[0][0], got[1][0], got[2][0]})

	s = core.Lock()
	assert.Empty(t, s.SpectrometerBuffers())
	s.Unlock()
	s.Unlock()
}

func TestEncodePower(t *testing.T) {
	t.Parallel()

	assert.Zero(t, encodePower(0))
	assert.Zero(t, encodePower(-3))
	assert.Zero(t, encodePower(math.NaN()))
	assert.Equal(t, uint64(12345), encodePower(12345))

	big := math.Ldexp(1, 60)
	word := encodePower(big)
	exponent := word >> MantissaBits
	mantissa := word & (uint64(1)<<MantissaBits - 1)
	assert.Equal(t, uint64(2), exponent)
	assert.InDelta(t, big, math.Ldexp(float64(mantissa), int(2*exponent)), big*1e-9)
}

func TestSimulatorProducesSpectra(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimulatorConfig()
	cfg.FFTSize = 256
	cfg.NumBuffers = 4
	cfg.SampleRate = 1e6
	cfg.ToneFrequency = 250e3
	cfg.IntegrationsExp = 2
	sim, err := NewSimulator(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, sim.Step())
	require.NoError(t, sim.Step())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sim.Wait(ctx), "pending interrupts coalesce into one")

	s := sim.Core().Lock()
	got := s.SpectrometerBuffers()
	s.Unlock()
	require.Len(t, got, 2)

	// the tone at fs/4 lands in bin N/4
	spectrum := got[1]
	peak := 0
	for i, w := range spectrum {
		if magnitude(w) > magnitude(spectrum[peak]) {
			peak = i
		}
	}
	assert.Equal(t, cfg.FFTSize/4, peak)

	rate, err := sim.SampleRate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1e6, rate, 0)
}

func TestSimulatorWaitEndsOnClose(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimulatorConfig()
	cfg.FFTSize = 64
	sim, err := NewSimulator(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, sim.Close())
	require.NoError(t, sim.Close())
	require.ErrorIs(t, sim.Wait(context.Background()), ErrInterruptClosed)
	require.NoError(t, sim.Run(context.Background()))
}

func TestSimulatorPeriod(t *testing.T) {
	t.Parallel()

	sim, err := NewSimulator(SimulatorConfig{
		FFTSize: 1024, NumBuffers: 4, SampleRate: 1.024e6, MaxRate: 100,
	}, nil)
	require.NoError(t, err)

	// 1000 spectra/s capped to 100
	assert.Equal(t, 10*time.Millisecond, sim.Period(0))
	// 1.024e6 / (1024 * 2^10) = 0.9765625 spectra/s
	assert.Equal(t, 1024*time.Millisecond, sim.Period(10))
}

func TestNewSimulatorValidation(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimulatorConfig()
	cfg.FFTSize = 1000
	_, err := NewSimulator(cfg, nil)
	require.Error(t, err)

	cfg = DefaultSimulatorConfig()
	cfg.SampleRate = 0
	_, err = NewSimulator(cfg, nil)
	require.Error(t, err)
}

func magnitude(word uint64) float64 {
	return math.Ldexp(float64(word&(uint64(1)<<MantissaBits-1)), int(2*(word>>MantissaBits)))
}
