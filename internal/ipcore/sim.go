package ipcore

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// SimulatorConfig describes the synthetic signal and timing of a Simulator.
type SimulatorConfig struct {
	FFTSize         int
	NumBuffers      int
	SampleRate      float64 // input samples per second
	ToneFrequency   float64 // Hz, relative to the centre frequency
	ToneAmplitude   float64 // fraction of ADC full scale
	NoiseLevel      float64 // RMS noise in ADC counts per I/Q component
	IntegrationsExp uint8
	MaxRate         float64 // upper bound on spectra per second
	Seed            uint64
}

// DefaultSimulatorConfig returns a configuration that produces a visible
// tone above a noise floor at a few spectra per second.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		FFTSize:         4096,
		NumBuffers:      8,
		SampleRate:      61.44e6,
		ToneFrequency:   5e6,
		ToneAmplitude:   0.25,
		NoiseLevel:      4,
		IntegrationsExp: 14,
		MaxRate:         10,
		Seed:            1,
	}
}

const adcFullScale = 2047

// Simulator is an in-memory IP core whose spectrometer produces spectra of
// a tone in noise. It implements the interrupt waiter and sample rate source
// used with real hardware.
type Simulator struct {
	cfg  SimulatorConfig
	bufs *MemBuffers
	core *IPCore
	log  logger.Logger

	irq       chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// generator state, owned by the goroutine calling Step
	plan   *algofft.Plan[complex128]
	window []float64
	in     []complex128
	out    []complex128
	power  []float64
	rng    *rand.Rand
	phase  float64
	next   int
}

// NewSimulator builds a simulated IP core.
func NewSimulator(cfg SimulatorConfig, log logger.Logger) (*Simulator, error) {
	if cfg.FFTSize < 2 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return nil, fmt.Errorf("simulator fft size must be a power of two, got %d", cfg.FFTSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("simulator sample rate must be positive, got %g", cfg.SampleRate)
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = DefaultSimulatorConfig().MaxRate
	}

	plan, err := algofft.NewPlan64(cfg.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("simulator fft plan: %w", err)
	}

	regs := NewMemRegisters(RegisterSpan)
	regs.Write32(RegProductID, ProductID)
	regs.Write32(RegVersion, 0x00_0a_00_00)
	if err := fieldIntegrationsExp.check(uint32(cfg.IntegrationsExp)); err != nil {
		return nil, err
	}
	fieldIntegrationsExp.set(regs, uint32(cfg.IntegrationsExp))
	fieldLastBuffer.set(regs, uint32(cfg.NumBuffers-1))

	bufs := NewMemBuffers(cfg.NumBuffers, cfg.FFTSize)
	core, err := New(regs, bufs)
	if err != nil {
		return nil, err
	}

	window := make([]float64, cfg.FFTSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(cfg.FFTSize))
	}

	return &Simulator{
		cfg:    cfg,
		bufs:   bufs,
		core:   core,
		log:    log,
		irq:    make(chan struct{}, 1),
		done:   make(chan struct{}),
		plan:   plan,
		window: window,
		in:     make([]complex128, cfg.FFTSize),
		out:    make([]complex128, cfg.FFTSize),
		power:  make([]float64, cfg.FFTSize),
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Core returns the simulated IP core.
func (s *Simulator) Core() *IPCore {
	return s.core
}

// SampleRate returns the configured input sample rate.
func (s *Simulator) SampleRate(context.Context) (float64, error) {
	return s.cfg.SampleRate, nil
}

// Wait blocks until the simulator completes a spectrum. Interrupts raised
// while nobody waits are coalesced into one.
func (s *Simulator) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrInterruptClosed
	case <-s.irq:
		return nil
	}
}

// Close stops Run and makes Wait return ErrInterruptClosed.
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Period returns the time between spectra for an integrations exponent,
// bounded below by the configured maximum rate.
func (s *Simulator) Period(integrationsExp uint8) time.Duration {
	rate := min(s.cfg.SampleRate/(float64(s.cfg.FFTSize)*math.Ldexp(1, int(integrationsExp))), s.cfg.MaxRate)
	return time.Duration(float64(time.Second) / rate)
}

// Run produces spectra at the rate implied by the current integrations
// exponent until ctx is done or the simulator is closed.
func (s *Simulator) Run(ctx context.Context) error {
	if s.log != nil {
		s.log.Info("Simulated spectrometer running",
			logger.Int("fft_size", s.cfg.FFTSize),
			logger.Float64("sample_rate", s.cfg.SampleRate),
			logger.Float64("tone_hz", s.cfg.ToneFrequency),
			logger.Duration("period", s.Period(s.core.IntegrationsExp())))
	}

	timer := time.NewTimer(s.Period(s.core.IntegrationsExp()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-timer.C:
			if err := s.Step(); err != nil {
				return err
			}
			timer.Reset(s.Period(s.core.IntegrationsExp()))
		}
	}
}

// Step writes one spectrum into the next buffer, advances last_buffer and
// raises the interrupt. Step must not be called concurrently with itself.
func (s *Simulator) Step() error {
	exp := s.core.IntegrationsExp()
	if err := s.generate(exp); err != nil {
		return err
	}

	sess := s.core.Lock()
	buf := s.bufs.Buffer(s.next)
	for i, p := range s.power {
		buf[i] = encodePower(p)
	}
	sess.setLastBuffer(s.next)
	s.next = (s.next + 1) % s.bufs.NumBuffers()
	sess.Unlock()

	select {
	case s.irq <- struct{}{}:
	default:
	}
	return nil
}

// generate fills s.power with the integrated power spectrum of one frame.
// All integrations share the same statistics, so one frame scaled by the
// number of integrations stands in for the accumulation.
func (s *Simulator) generate(integrationsExp uint8) error {
	n := len(s.in)
	amplitude := s.cfg.ToneAmplitude * adcFullScale
	step := 2 * math.Pi * s.cfg.ToneFrequency / s.cfg.SampleRate

	for i := range s.in {
		tone := complex(amplitude*math.Cos(s.phase), amplitude*math.Sin(s.phase))
		noise := complex(s.rng.NormFloat64()*s.cfg.NoiseLevel, s.rng.NormFloat64()*s.cfg.NoiseLevel)
		s.in[i] = (tone + noise) * complex(s.window[i], 0)
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}

	if err := s.plan.Forward(s.out, s.in); err != nil {
		return fmt.Errorf("simulator fft: %w", err)
	}

	integrations := math.Ldexp(1, int(integrationsExp))
	for i, x := range s.out[:n] {
		s.power[i] = (real(x)*real(x) + imag(x)*imag(x)) * integrations
	}
	return nil
}

// encodePower converts a non-negative power into a spectrum word, choosing
// the exponent so that the mantissa fits in 56 bits.
func encodePower(p float64) uint64 {
	if p <= 0 || math.IsNaN(p) {
		return 0
	}
	const limit = float64(uint64(1) << MantissaBits)
	var exponent uint64
	for p >= limit && exponent < 255 {
		p /= 4
		exponent++
	}
	return exponent<<MantissaBits | uint64(p)&(uint64(1)<<MantissaBits-1)
}

// MantissaBits mirrors the hardware word layout: 8-bit exponent, 56-bit mantissa.
const MantissaBits = 56
