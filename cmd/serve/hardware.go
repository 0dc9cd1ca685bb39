package serve

import (
	"context"
	"errors"
	"os"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/frontend"
	"github.com/maia-sdr/spectrometerd/internal/ipcore"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/spectrometer"
)

// hardware is an opened IP core together with its interrupt source.
type hardware struct {
	core      *ipcore.IPCore
	interrupt spectrometer.InterruptWaiter

	// sampleRate is used when no front-end source is configured
	sampleRate frontend.SampleRateSource

	// run drives the simulated core, nil on real hardware
	run func(ctx context.Context) error

	closers []func() error
}

func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	return errors.Join(errs...)
}

func openHardware(settings *conf.Settings, log logger.Logger) (*hardware, error) {
	if settings.Hardware.Mode == conf.HardwareModeSim {
		return openSimulator(settings, log)
	}
	return openUIO(&settings.Hardware, log)
}

func openSimulator(settings *conf.Settings, log logger.Logger) (*hardware, error) {
	cfg := ipcore.DefaultSimulatorConfig()
	cfg.FFTSize = settings.Hardware.FFTSize
	cfg.NumBuffers = settings.Hardware.NumBuffers
	sim := &settings.Simulator
	cfg.SampleRate = sim.SampleRate
	cfg.ToneFrequency = sim.ToneFrequency
	cfg.ToneAmplitude = sim.ToneAmplitude
	cfg.NoiseLevel = sim.NoiseLevel
	cfg.MaxRate = sim.MaxRate
	cfg.Seed = sim.Seed

	s, err := ipcore.NewSimulator(cfg, log.Module("simulator"))
	if err != nil {
		return nil, err
	}
	log.Info("Using simulated IP core",
		logger.Float64("sample_rate", cfg.SampleRate),
		logger.Float64("tone_frequency", cfg.ToneFrequency))

	return &hardware{
		core:       s.Core(),
		interrupt:  s,
		sampleRate: s,
		run:        s.Run,
		closers:    []func() error{s.Close},
	}, nil
}

func openUIO(hw *conf.HardwareSettings, log logger.Logger) (_ *hardware, err error) {
	h := &hardware{}
	defer func() {
		if err != nil {
			_ = h.Close()
		}
	}()

	regSize := hw.Registers.Size
	if regSize == 0 {
		regSize = max(ipcore.RegisterSpan, os.Getpagesize())
	}
	regMap, err := ipcore.MapUIO(hw.Registers.Device, hw.Registers.Map, regSize)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, regMap.Close)

	bufSize := hw.Buffers.Size
	if bufSize == 0 {
		bufSize = hw.NumBuffers * hw.FFTSize * 8
	}
	bufMap, err := ipcore.MapUIO(hw.Buffers.Device, hw.Buffers.Map, bufSize)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, bufMap.Close)

	regs, err := ipcore.NewMmapRegisters(regMap)
	if err != nil {
		return nil, err
	}
	bufs, err := ipcore.NewMmapBuffers(bufMap, hw.NumBuffers, hw.FFTSize)
	if err != nil {
		return nil, err
	}
	if h.core, err = ipcore.New(regs, bufs); err != nil {
		return nil, err
	}

	irq, err := ipcore.OpenUIOInterrupt(hw.Interrupt)
	if err != nil {
		return nil, err
	}
	h.interrupt = irq
	h.closers = append(h.closers, irq.Close)

	log.Info("Opened IP core",
		logger.String("registers", hw.Registers.Device),
		logger.String("buffers", hw.Buffers.Device),
		logger.String("interrupt", hw.Interrupt),
		logger.Any("version", h.core.Version()))
	return h, nil
}
