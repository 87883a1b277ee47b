package control

// Filter is a fixed-length moving average over raw sensor samples.
// Not safe for concurrent use.
type Filter struct {
	buf    []float64
	next   int // slot holding the oldest sample, overwritten next
	sum    float64
	primed bool
}

// NewFilter creates a Filter averaging the last n samples.
func NewFilter(n int) *Filter {
	if n <= 0 {
		n = 1
	}
	return &Filter{buf: make([]float64, n)}
}

// Record ingests one raw reading, evicting the oldest retained sample.
// The first reading primes every slot so the window is always full.
func (f *Filter) Record(raw float64) {
	if !f.primed {
		for i := range f.buf {
			f.buf[i] = raw
		}
		f.sum = raw * float64(len(f.buf))
		f.primed = true
		return
	}

	f.sum = f.sum - f.buf[f.next] + raw
	f.buf[f.next] = raw
	f.next = (f.next + 1) % len(f.buf)
}

// Average returns the mean of the retained window, or 0 before the first sample.
func (f *Filter) Average() float64 {
	return f.sum / float64(len(f.buf))
}

// Len returns the window length.
func (f *Filter) Len() int {
	return len(f.buf)
}

// Primed reports whether at least one sample has been recorded.
func (f *Filter) Primed() bool {
	return f.primed
}
