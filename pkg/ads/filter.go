package ads

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Filter selects how buffered codes are combined into a conversion value.
type Filter uint8

const (
	FilterNone Filter = iota
	FilterMovingAverage
	FilterSavitzkyGolay
)

var filterNames = []string{"none", "average", "savgol"}

func (f Filter) Valid() bool    { return int(f) < len(filterNames) }
func (f Filter) String() string { return name(filterNames, uint8(f)) }

func ParseFilter(s string) (Filter, error) {
	v, err := parseName("filter", filterNames, s)
	return Filter(v), err
}

// Savitzky-Golay polynomial order bounds.
const (
	DefaultSavGolOrder = 2
	MaxSavGolOrder     = 4
)

// savGol holds smoothing weights for a least-squares polynomial fit over the
// full ring, evaluated at the newest sample.
type savGol struct {
	order  int
	coeffs [BufferSize]float32
	norm   float32
}

func newSavGol(order int) (*savGol, error) {
	if order < 1 || order > MaxSavGolOrder {
		return nil, invalid("savgol order", order)
	}
	s := &savGol{order: order}

	// positions relative to the newest sample: -(N-1) .. 0
	var t [BufferSize]float64
	for i := range t {
		t[i] = float64(i - (BufferSize - 1))
	}

	// normal equations (AᵀA) z = e0, solved by Gauss-Jordan elimination
	m := order + 1
	a := make([][]float64, m)
	for j := range a {
		a[j] = make([]float64, m+1)
		for k := 0; k < m; k++ {
			for _, ti := range t {
				a[j][k] += pow(ti, j+k)
			}
		}
	}
	a[0][m] = 1
	for c := 0; c < m; c++ {
		p := c
		for r := c + 1; r < m; r++ {
			if abs(a[r][c]) > abs(a[p][c]) {
				p = r
			}
		}
		a[c], a[p] = a[p], a[c]
		if a[c][c] == 0 {
			return nil, fmt.Errorf("singular savgol system for order %d", order)
		}
		for r := 0; r < m; r++ {
			if r == c {
				continue
			}
			f := a[r][c] / a[c][c]
			for k := c; k <= m; k++ {
				a[r][k] -= f * a[c][k]
			}
		}
	}

	for i, ti := range t {
		var w float64
		for j := 0; j < m; j++ {
			w += a[j][m] / a[j][j] * pow(ti, j)
		}
		s.coeffs[i] = float32(w)
		s.norm += s.coeffs[i]
	}
	if math32.Abs(s.norm) < 1e-6 {
		return nil, fmt.Errorf("degenerate savgol weights for order %d", order)
	}
	return s, nil
}

// apply expects exactly BufferSize samples, oldest first.
func (s *savGol) apply(samples []int16) float32 {
	var acc float32
	for i, v := range samples {
		acc += s.coeffs[i] * float32(v)
	}
	return acc / s.norm
}

func movingAverage(samples []int16) float32 {
	var sum int32
	for _, v := range samples {
		sum += int32(v)
	}
	return float32(sum) / float32(len(samples))
}

func pow(x float64, n int) float64 {
	r := 1.0
	for ; n > 0; n-- {
		r *= x
	}
	return r
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ActivateFilter selects the smoothing applied by ConvValue.
func (d *Device) ActivateFilter(f Filter) error {
	if !f.Valid() {
		return invalid("filter", uint8(f))
	}
	if f == FilterSavitzkyGolay && d.savgol == nil {
		if err := d.SetSavGolOrder(DefaultSavGolOrder); err != nil {
			return err
		}
	}
	d.filter = f
	return nil
}

// DeactivateFilter makes ConvValue return the newest raw code.
func (d *Device) DeactivateFilter() {
	d.filter = FilterNone
}

// FilterStatus returns the active filter.
func (d *Device) FilterStatus() Filter {
	return d.filter
}

// SetSavGolOrder sets the polynomial order of the Savitzky-Golay fit.
// Weights are recomputed only when the order changes.
func (d *Device) SetSavGolOrder(order int) error {
	if d.savgol != nil && d.savgol.order == order {
		return nil
	}
	s, err := newSavGol(order)
	if err != nil {
		return err
	}
	d.savgol = s
	return nil
}

// SavGolOrder returns the configured polynomial order, or 0 before one is set.
func (d *Device) SavGolOrder() int {
	if d.savgol == nil {
		return 0
	}
	return d.savgol.order
}
