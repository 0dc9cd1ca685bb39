//go:build !linux

package ipcore

import "context"

// UIOInterrupt is only available on linux.
type UIOInterrupt struct{}

func OpenUIOInterrupt(string) (*UIOInterrupt, error) { return nil, ErrUnsupported }

func (*UIOInterrupt) Wait(context.Context) error { return ErrUnsupported }
func (*UIOInterrupt) Count() uint32              { return 0 }
func (*UIOInterrupt) Close() error               { return nil }

// Mapping is only available on linux.
type Mapping struct{}

func MapUIO(string, int, int) (*Mapping, error) { return nil, ErrUnsupported }

func (*Mapping) Close() error { return nil }

type MmapRegisters struct{}

func NewMmapRegisters(*Mapping) (*MmapRegisters, error) { return nil, ErrUnsupported }

func (*MmapRegisters) Read32(uint32) uint32  { return 0 }
func (*MmapRegisters) Write32(uint32, uint32) {}

type MmapBuffers struct{}

func NewMmapBuffers(*Mapping, int, int) (*MmapBuffers, error) { return nil, ErrUnsupported }

func (*MmapBuffers) NumBuffers() int     { return 0 }
func (*MmapBuffers) Buffer(int) []uint64 { return nil }
