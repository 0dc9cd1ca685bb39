package ipcore

// MemBuffers is spectrum buffer memory held in process memory.
type MemBuffers struct {
	bufs [][]uint64
}

// NewMemBuffers allocates num buffers of bins words each.
func NewMemBuffers(num, bins int) *MemBuffers {
	bufs := make([][]uint64, num)
	for i := range bufs {
		bufs[i] = make([]uint64, bins)
	}
	return &MemBuffers{bufs: bufs}
}

func (m *MemBuffers) NumBuffers() int {
	return len(m.bufs)
}

func (m *MemBuffers) Buffer(i int) []uint64 {
	return m.bufs[i]
}
