// Package recorder appends published spectra to a file.
//
// Spectra are staged in a byte ring so that a slow disk never holds up the
// broadcast receiver. When the ring is full the spectrum is dropped.
//
// File format: a sequence of records, each
//
//	int64  timestamp, unix nanoseconds, little-endian
//	uint32 payload length in bytes, little-endian
//	[]byte payload, native-endian float32 bins
package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/sync/errgroup"

	"github.com/maia-sdr/spectrometerd/internal/broadcast"
	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/observability/metrics"
)

// ComponentRecorder identifies errors raised by the recorder
const ComponentRecorder = "recorder"

// HeaderSize is the size of a record header.
const HeaderSize = 12

// Recorder subscribes to the spectrum channel and writes every spectrum it
// receives to a file.
type Recorder struct {
	channel       *broadcast.Channel[[]byte]
	path          string
	flushInterval time.Duration

	mu     sync.Mutex // guards ring; whole records are written under it
	ring   *ringbuffer.RingBuffer
	staged chan struct{}

	metrics *metrics.StreamMetrics
	log     logger.Logger
	now     func() time.Time
}

// New creates a recorder. streamMetrics may be nil.
func New(channel *broadcast.Channel[[]byte], settings *conf.RecorderSettings, streamMetrics *metrics.StreamMetrics) *Recorder {
	return &Recorder{
		channel:       channel,
		path:          settings.Path,
		flushInterval: settings.FlushInterval,
		ring:          ringbuffer.New(settings.RingSize),
		staged:        make(chan struct{}, 1),
		metrics:       streamMetrics,
		log:           logger.Global().Module("recorder"),
		now:           time.Now,
	}
}

// Run records until ctx is done or the channel is closed. Everything staged
// by then is written before Run returns.
func (r *Recorder) Run(ctx context.Context) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return r.fileError("mkdir", err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: path comes from settings
	if err != nil {
		return r.fileError("open", err)
	}

	rx := r.channel.Subscribe()
	defer rx.Close()

	r.metrics.ConsumerConnected(metrics.ConsumerRecorder)
	defer r.metrics.ConsumerDisconnected(metrics.ConsumerRecorder)

	r.log.Info("Recording spectra", logger.String("path", r.path), logger.Int("ring_size", r.ring.Capacity()))

	stopWriter := make(chan struct{})
	var g errgroup.Group

	g.Go(func() error {
		defer close(stopWriter)
		return broadcast.Consume(ctx, rx, func(payload []byte) error {
			r.stage(payload)
			return nil
		}, func(skipped uint64) {
			r.metrics.Lagged(metrics.ConsumerRecorder, skipped)
		})
	})

	g.Go(func() error {
		return r.writeLoop(f, stopWriter)
	})

	err = g.Wait()
	if cerr := f.Close(); cerr != nil && err == nil {
		err = r.fileError("close", cerr)
	}
	r.log.Info("Recorder stopped", logger.String("path", r.path))
	return err
}

// stage copies one record into the ring, or drops it when it does not fit.
func (r *Recorder) stage(payload []byte) {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(r.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))

	r.mu.Lock()
	if r.ring.Free() < HeaderSize+len(payload) {
		r.mu.Unlock()
		r.metrics.Dropped(metrics.ConsumerRecorder, "ring_full")
		return
	}
	_, herr := r.ring.Write(header[:])
	_, perr := r.ring.Write(payload)
	r.mu.Unlock()

	if herr != nil || perr != nil {
		// cannot happen after the Free check
		r.log.Error("Recorder ring write failed", logger.Error(errors.Join(herr, perr)))
		return
	}

	r.metrics.Delivered(metrics.ConsumerRecorder, len(payload))
	select {
	case r.staged <- struct{}{}:
	default:
	}
}

// writeLoop moves staged bytes to w and flushes periodically.
func (r *Recorder) writeLoop(w io.Writer, stop <-chan struct{}) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	buf := make([]byte, r.ring.Capacity())

	var tick <-chan time.Time
	if r.flushInterval > 0 {
		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.staged:
			if err := r.drain(bw, buf); err != nil {
				return err
			}
		case <-tick:
			if err := bw.Flush(); err != nil {
				return r.fileError("flush", err)
			}
		case <-stop:
			if err := r.drain(bw, buf); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return r.fileError("flush", err)
			}
			return nil
		}
	}
}

func (r *Recorder) drain(w io.Writer, buf []byte) error {
	r.mu.Lock()
	n := 0
	if !r.ring.IsEmpty() {
		var err error
		n, err = r.ring.Read(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			r.mu.Unlock()
			return r.fileError("ring read", err)
		}
	}
	r.mu.Unlock()

	if n == 0 {
		return nil
	}
	if _, err := w.Write(buf[:n]); err != nil {
		return r.fileError("write", err)
	}
	return nil
}

func (r *Recorder) fileError(op string, err error) error {
	return errors.New(fmt.Errorf("recorder %s: %w", op, err)).
		Component(ComponentRecorder).
		Category(errors.CategoryFileIO).
		Context("path", r.path).
		Build()
}

// Record is one spectrum read back from a recording.
type Record struct {
	Time    time.Time
	Payload []byte
}

// ReadRecord reads the next record from rd. It returns io.EOF at a clean end
// of input and io.ErrUnexpectedEOF on a truncated record.
func ReadRecord(rd io.Reader) (Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(rd, header[:]); err != nil {
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[0:8]))
	size := binary.LittleEndian.Uint32(header[8:12])

	payload := make([]byte, size)
	if _, err := io.ReadFull(rd, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return Record{Time: time.Unix(0, ts), Payload: payload}, nil
}
