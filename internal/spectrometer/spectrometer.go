// Package spectrometer runs the acquisition loop of the FPGA spectrometer:
// it waits for the spectrometer interrupt, reads the completed hardware
// buffers, converts them to scaled float32 bins and publishes each spectrum
// to the subscribers of a broadcast channel.
package spectrometer

import (
	"context"
	"slices"
	"time"

	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/ipcore"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/observability/metrics"
)

// InterruptWaiter blocks until the next spectrometer interrupt.
type InterruptWaiter interface {
	Wait(ctx context.Context) error
}

// Sender is the publishing side of the spectrum channel.
// *broadcast.Channel[[]byte] satisfies it.
type Sender interface {
	ReceiverCount() int
	Send(payload []byte) (int, error)
}

// Options tunes the acquisition loop.
type Options struct {
	Decoder Decoder

	// DecodeUnlocked copies the buffers while the IP core is locked and
	// decodes the copies after releasing it. When false the lock is held for
	// the whole decode. Either way the hardware buffers are never read
	// without the lock.
	DecodeUnlocked bool

	Metrics metrics.SpectrometerRecorder
	Logger  logger.Logger
}

// DefaultOptions returns the options used by the daemon.
func DefaultOptions() Options {
	return Options{DecodeUnlocked: true}
}

// Spectrometer is the acquisition loop. It owns nothing it is given: the IP
// core, the interrupt source, the configuration cell and the channel are
// shared with the rest of the process.
type Spectrometer struct {
	core      *ipcore.IPCore
	interrupt InterruptWaiter
	config    *Config
	sender    Sender

	decoder  Decoder
	unlocked bool
	metrics  metrics.SpectrometerRecorder
	log      logger.Logger
}

// New wires an acquisition loop. Run starts it.
func New(core *ipcore.IPCore, interrupt InterruptWaiter, config *Config, sender Sender, opts Options) *Spectrometer {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global().Module("spectrometer")
	}
	return &Spectrometer{
		core:      core,
		interrupt: interrupt,
		config:    config,
		sender:    sender,
		decoder:   opts.Decoder,
		unlocked:  opts.DecodeUnlocked,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
}

// Run serves interrupts until ctx is cancelled, in which case it returns
// nil, or until the interrupt source fails. An interrupt source failure is
// the only error Run returns; publishing problems never stop the loop.
func (s *Spectrometer) Run(ctx context.Context) error {
	s.log.Info("Spectrometer acquisition started",
		logger.Bool("decode_unlocked", s.unlocked),
		logger.String("overflow", s.decoder.Overflow.String()))

	for {
		if err := s.interrupt.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("Spectrometer acquisition stopped")
				return nil
			}
			s.metrics.RecordError(metrics.OpInterrupt, "interrupt_source")
			wrapped := interruptError(err)
			s.log.Error("Spectrometer interrupt source failed", logger.Error(wrapped))
			return wrapped
		}
		s.metrics.RecordOperation(metrics.OpInterrupt, metrics.StatusSuccess)
		s.serveInterrupt()
	}
}

// serveInterrupt handles one interrupt: snapshot, decode and publish.
func (s *Spectrometer) serveInterrupt() {
	// The sample rate lives in its own cell and is read before the IP core
	// lock is taken so that the two locks are never nested.
	sampleRate := s.config.SampleRate()

	sess := s.core.Lock()
	snap := sess.Snapshot()
	scale := Scale(snap.IntegrationsExp, sampleRate)

	s.log.Trace("Spectrometer interrupt",
		logger.Int("last_buffer", snap.LastBuffer),
		logger.Float32("samp_rate", sampleRate),
		logger.Int("integrations_exp", int(snap.IntegrationsExp)),
		logger.Float32("scale", scale),
		logger.Int("kurt_1", int(snap.Kurtosis1)),
		logger.Int("kurt_2", int(snap.Kurtosis2)),
		logger.Bool("kurt_enable", snap.KurtosisEnabled))
	s.metrics.ObserveSnapshot(float64(sampleRate), int(snap.IntegrationsExp), float64(scale))
	s.metrics.RecordOperation(metrics.OpSnapshot, metrics.StatusSuccess)

	buffers := sess.SpectrometerBuffers()
	for range buffers {
		s.metrics.RecordOperation(metrics.OpBufferRead, metrics.StatusSuccess)
	}

	if !s.unlocked {
		s.publishAll(buffers, scale)
		sess.Unlock()
		return
	}

	// Buffers nobody will read are dropped here. The views are only valid
	// under the lock, so a receiver subscribing after this count waits for
	// the next interrupt.
	if s.sender.ReceiverCount() == 0 {
		sess.Unlock()
		s.metrics.SetReceivers(0)
		for range buffers {
			s.metrics.RecordOperation(metrics.OpPublish, metrics.StatusNoReceivers)
		}
		return
	}
	copies := make([][]uint64, len(buffers))
	for i, buf := range buffers {
		copies[i] = slices.Clone(buf)
	}
	sess.Unlock()
	s.publishAll(copies, scale)
}

func (s *Spectrometer) publishAll(buffers [][]uint64, scale float32) {
	for _, buf := range buffers {
		s.publish(buf, scale)
	}
}

// publish decodes and sends one buffer if anyone is listening.
func (s *Spectrometer) publish(buf []uint64, scale float32) {
	receivers := s.sender.ReceiverCount()
	s.metrics.SetReceivers(receivers)
	if receivers == 0 {
		s.metrics.RecordOperation(metrics.OpPublish, metrics.StatusNoReceivers)
		return
	}

	start := time.Now()
	payload := s.decoder.Decode(buf, scale)
	s.metrics.RecordDuration(metrics.OpDecode, time.Since(start).Seconds())

	// The last receiver may leave between the count and the send. That is
	// not an error for the loop.
	if _, err := s.sender.Send(payload); err != nil {
		s.metrics.RecordOperation(metrics.OpPublish, metrics.StatusNoReceivers)
		s.log.Debug("Spectrum not delivered", logger.Error(err))
		return
	}
	s.metrics.RecordOperation(metrics.OpPublish, metrics.StatusSuccess)
}

// IsInterruptFailure reports whether err was returned by Run because the
// interrupt source failed.
func IsInterruptFailure(err error) bool {
	return errors.Is(err, ErrInterruptSource)
}
