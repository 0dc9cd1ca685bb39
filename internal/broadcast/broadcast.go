// Package broadcast implements a lossy multi-producer, multi-consumer
// channel where every receiver sees every value, unless it falls behind.
//
// Values live in a fixed-size ring. Each receiver keeps its own cursor. A
// sender never waits: when the ring wraps past a slow receiver, that
// receiver gets a *LaggedError with the number of values it missed and
// resumes from the oldest value still retained.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// ComponentBroadcast identifies broadcast errors
const ComponentBroadcast = "broadcast"

var (
	// ErrNoReceivers is returned by Send when nobody is subscribed. The
	// value is discarded.
	ErrNoReceivers = errors.New(errors.NewStd("broadcast: no active receivers")).
			Component(ComponentBroadcast).
			Category(errors.CategoryBroadcast).
			Build()

	// ErrClosed is returned once the channel is closed and drained.
	ErrClosed = errors.New(errors.NewStd("broadcast: channel closed")).
			Component(ComponentBroadcast).
			Category(errors.CategoryState).
			Build()

	// ErrEmpty is returned by TryRecv when no value is pending.
	ErrEmpty = errors.New(errors.NewStd("broadcast: no value pending")).
			Component(ComponentBroadcast).
			Category(errors.CategoryState).
			Build()

	// ErrLagged matches any *LaggedError through errors.Is.
	ErrLagged = errors.NewStd("broadcast: receiver lagged")
)

// LaggedError reports how many values a receiver missed.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged, %d values skipped", e.Skipped)
}

func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}

type slot[T any] struct {
	val T
}

// Channel is a bounded lossy broadcast channel.
type Channel[T any] struct {
	mu        sync.Mutex
	ring      []slot[T]
	tail      uint64 // sequence number of the next value to send
	receivers int
	closed    bool
	wake      chan struct{}

	sent   atomic.Uint64
	lagged atomic.Uint64
}

// New creates a channel retaining up to capacity values. Capacity must be
// at least 1.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("broadcast: capacity must be positive, got %d", capacity))
	}
	return &Channel[T]{
		ring: make([]slot[T], capacity),
		wake: make(chan struct{}),
	}
}

// Capacity returns the number of values retained for slow receivers.
func (c *Channel[T]) Capacity() int {
	return len(c.ring)
}

// Send publishes v to every current receiver without blocking. It returns
// the number of receivers at the time of the send.
func (c *Channel[T]) Send(v T) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if c.receivers == 0 {
		return 0, ErrNoReceivers
	}

	c.ring[c.tail%uint64(len(c.ring))] = slot[T]{val: v}
	c.tail++
	c.sent.Add(1)

	close(c.wake)
	c.wake = make(chan struct{})

	return c.receivers, nil
}

// ReceiverCount returns the number of live receivers.
func (c *Channel[T]) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Subscribe returns a receiver that sees every value sent after this call.
func (c *Channel[T]) Subscribe() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &Receiver[T]{ch: c, next: c.tail}
}

// Close wakes all receivers. They drain what is retained, then get ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.wake)
}

// Sent returns the number of values accepted by Send.
func (c *Channel[T]) Sent() uint64 {
	return c.sent.Load()
}

// Lagged returns the number of lag events reported to receivers.
func (c *Channel[T]) Lagged() uint64 {
	return c.lagged.Load()
}

// Receiver is one subscriber's cursor into a Channel. A Receiver must not
// be used from more than one goroutine at a time.
type Receiver[T any] struct {
	ch     *Channel[T]
	next   uint64
	closed bool
}

// Recv blocks until a value is available, ctx is done or the channel is closed.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, wait, err := r.poll()
		if err == nil || !errors.Is(err, ErrEmpty) {
			return v, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// TryRecv returns the next value without blocking, or ErrEmpty.
func (r *Receiver[T]) TryRecv() (T, error) {
	v, _, err := r.poll()
	return v, err
}

func (r *Receiver[T]) poll() (T, <-chan struct{}, error) {
	var zero T
	c := r.ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return zero, nil, ErrClosed
	}

	if r.next < c.tail {
		capacity := uint64(len(c.ring))
		if c.tail-r.next > capacity {
			oldest := c.tail - capacity
			skipped := oldest - r.next
			r.next = oldest
			c.lagged.Add(1)
			return zero, nil, &LaggedError{Skipped: skipped}
		}
		v := c.ring[r.next%capacity].val
		r.next++
		return v, nil, nil
	}

	if c.closed {
		return zero, nil, ErrClosed
	}
	return zero, c.wake, ErrEmpty
}

// Close unsubscribes the receiver. Safe to call more than once.
func (r *Receiver[T]) Close() {
	c := r.ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	c.receivers--
	if c.receivers == 0 {
		clear(c.ring)
	}
}

// Consume calls fn with every value received on r until ctx is done or the
// channel is closed, both of which return nil. A lag is passed to onLag, if
// set, and consumption continues. An error from fn stops Consume and is
// returned.
func Consume[T any](ctx context.Context, r *Receiver[T], fn func(T) error, onLag func(skipped uint64)) error {
	for {
		v, err := r.Recv(ctx)
		if err != nil {
			var lagged *LaggedError
			switch {
			case errors.As(err, &lagged):
				if onLag != nil {
					onLag(lagged.Skipped)
				}
				continue
			case errors.Is(err, ErrClosed), ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}
