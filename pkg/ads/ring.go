package ads

// BufferSize is the capacity of the raw-sample ring.
const BufferSize = 12

// ring holds the most recent raw conversion codes, oldest first.
type ring struct {
	data [BufferSize]int16
	head int // next write position
	n    int
}

func (r *ring) push(v int16) {
	r.data[r.head] = v
	r.head = (r.head + 1) % BufferSize
	if r.n < BufferSize {
		r.n++
	}
}

func (r *ring) reset() {
	r.head = 0
	r.n = 0
}

func (r *ring) len() int   { return r.n }
func (r *ring) full() bool { return r.n == BufferSize }

// latest returns the newest code. Callers check len first.
func (r *ring) latest() int16 {
	return r.data[(r.head+BufferSize-1)%BufferSize]
}

// samples copies the filled part, oldest first, into dst.
func (r *ring) samples(dst []int16) []int16 {
	dst = dst[:0]
	start := (r.head + BufferSize - r.n) % BufferSize
	for i := 0; i < r.n; i++ {
		dst = append(dst, r.data[(start+i)%BufferSize])
	}
	return dst
}

// constant reports whether the ring is full and every code is identical.
func (r *ring) constant() bool {
	if !r.full() {
		return false
	}
	for _, v := range r.data {
		if v != r.data[0] {
			return false
		}
	}
	return true
}
