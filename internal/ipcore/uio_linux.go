//go:build linux

package ipcore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// UIOInterrupt waits for interrupts on a /dev/uioN device.
//
// Reading the device returns the running interrupt count; writing 1
// re-enables the interrupt. Several interrupts raised while nobody waits are
// reported by a single Wait.
type UIOInterrupt struct {
	path   string
	fd     int
	wakeR  int
	wakeW  int
	waitMu sync.Mutex
	closed atomic.Bool
	count  uint32
}

// OpenUIOInterrupt opens path and arms the interrupt.
func OpenUIOInterrupt(path string) (*UIOInterrupt, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, hardwareError("open "+path, err)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, hardwareError("wake pipe", err)
	}

	u := &UIOInterrupt{path: path, fd: fd, wakeR: pipe[0], wakeW: pipe[1]}
	if err := u.enable(); err != nil {
		u.closeFDs()
		return nil, err
	}
	return u, nil
}

func (u *UIOInterrupt) enable() error {
	buf := binary.NativeEndian.AppendUint32(nil, 1)
	if _, err := unix.Write(u.fd, buf); err != nil {
		return hardwareError("enable interrupt", err)
	}
	return nil
}

func (u *UIOInterrupt) wake() {
	_, _ = unix.Write(u.wakeW, []byte{0})
}

func (u *UIOInterrupt) drainWake() {
	var buf [64]byte
	for {
		if n, err := unix.Read(u.wakeR, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

// Wait blocks until the next interrupt, ctx cancellation or Close.
func (u *UIOInterrupt) Wait(ctx context.Context) error {
	u.waitMu.Lock()
	defer u.waitMu.Unlock()

	if u.closed.Load() {
		return ErrInterruptClosed
	}

	stop := context.AfterFunc(ctx, u.wake)
	defer stop()

	for {
		fds := []unix.PollFd{
			{Fd: int32(u.fd), Events: unix.POLLIN},
			{Fd: int32(u.wakeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return hardwareError("poll "+u.path, err)
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			u.drainWake()
			if u.closed.Load() {
				return ErrInterruptClosed
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return hardwareError("poll "+u.path, fmt.Errorf("device error, revents %#x", fds[0].Revents))
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		var buf [4]byte
		n, err := unix.Read(u.fd, buf[:])
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			return hardwareError("read "+u.path, err)
		}
		if n != len(buf) {
			return hardwareError("read "+u.path, fmt.Errorf("short read of %d bytes", n))
		}
		u.count = binary.NativeEndian.Uint32(buf[:])

		return u.enable()
	}
}

// Count returns the interrupt count reported by the last Wait.
func (u *UIOInterrupt) Count() uint32 {
	u.waitMu.Lock()
	defer u.waitMu.Unlock()
	return u.count
}

// Close wakes a pending Wait and releases the device.
func (u *UIOInterrupt) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	u.wake()

	u.waitMu.Lock()
	defer u.waitMu.Unlock()
	u.closeFDs()
	return nil
}

func (u *UIOInterrupt) closeFDs() {
	_ = unix.Close(u.fd)
	_ = unix.Close(u.wakeR)
	_ = unix.Close(u.wakeW)
}

// Mapping is a memory-mapped UIO region.
type Mapping struct {
	mem []byte
}

// MapUIO maps region index of a UIO device. UIO selects the region through
// the mmap offset, in units of the page size.
func MapUIO(path string, index, size int) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, hardwareError("open "+path, err)
	}
	defer func() { _ = f.Close() }()

	mem, err := unix.Mmap(int(f.Fd()), int64(index*os.Getpagesize()), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, hardwareError(fmt.Sprintf("mmap %s region %d", path, index), err)
	}
	return &Mapping{mem: mem}, nil
}

// Close unmaps the region.
func (m *Mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if err != nil {
		return hardwareError("munmap", err)
	}
	return nil
}

// MmapRegisters is a register bank backed by a Mapping. Accesses are single
// 32-bit loads and stores.
type MmapRegisters struct {
	m *Mapping
}

// NewMmapRegisters wraps a mapping of at least RegisterSpan bytes.
func NewMmapRegisters(m *Mapping) (*MmapRegisters, error) {
	if len(m.mem) < RegisterSpan {
		return nil, hardwareError("map registers", fmt.Errorf("mapping of %d bytes is smaller than the register map", len(m.mem)))
	}
	return &MmapRegisters{m: m}, nil
}

func (r *MmapRegisters) word(offset uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&r.m.mem[offset]))
}

func (r *MmapRegisters) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(r.word(offset))
}

func (r *MmapRegisters) Write32(offset uint32, value uint32) {
	atomic.StoreUint32(r.word(offset), value)
}

// MmapBuffers views a Mapping as consecutive spectrum buffers.
type MmapBuffers struct {
	bufs [][]uint64
}

// NewMmapBuffers splits the mapping into num buffers of bins words.
func NewMmapBuffers(m *Mapping, num, bins int) (*MmapBuffers, error) {
	need := num * bins * 8
	if len(m.mem) < need {
		return nil, hardwareError("map buffers", fmt.Errorf("mapping of %d bytes cannot hold %d buffers of %d bins", len(m.mem), num, bins))
	}
	base := unsafe.Slice((*uint64)(unsafe.Pointer(&m.mem[0])), num*bins)
	bufs := make([][]uint64, num)
	for i := range bufs {
		bufs[i] = base[i*bins : (i+1)*bins : (i+1)*bins]
	}
	return &MmapBuffers{bufs: bufs}, nil
}

func (b *MmapBuffers) NumBuffers() int {
	return len(b.bufs)
}

func (b *MmapBuffers) Buffer(i int) []uint64 {
	return b.bufs[i]
}
