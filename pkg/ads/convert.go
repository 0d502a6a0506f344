package ads

import (
	"sort"

	"github.com/chewxy/math32"
	"periph.io/x/conn/v3/physic"
)

// ConversionKind identifies a physical conversion strategy.
type ConversionKind uint8

const (
	ConvLinear ConversionKind = iota
	ConvQuadratic
	ConvTable
)

var conversionNames = []string{"linear", "quadratic", "table"}

func (k ConversionKind) String() string { return name(conversionNames, uint8(k)) }

func ParseConversionKind(s string) (ConversionKind, error) {
	v, err := parseName("conversion", conversionNames, s)
	return ConversionKind(v), err
}

// TablePoint maps a voltage to a physical value.
type TablePoint struct {
	Voltage float32
	Value   float32
}

// Conversion maps a voltage to a physical value.
type Conversion struct {
	kind  ConversionKind
	a     [3]float32 // a0, a1, a2
	table []TablePoint
}

// Linear returns a1·v + a0.
func Linear(a1, a0 float32) Conversion {
	return Conversion{kind: ConvLinear, a: [3]float32{a0, a1, 0}}
}

// Quadratic returns a2·v² + a1·v + a0.
func Quadratic(a2, a1, a0 float32) Conversion {
	return Conversion{kind: ConvQuadratic, a: [3]float32{a0, a1, a2}}
}

// Table interpolates linearly between rows. Voltages must be strictly
// ascending. Inputs outside the table clamp to the edge rows.
func Table(points []TablePoint) (Conversion, error) {
	if len(points) == 0 {
		return Conversion{}, invalid("conversion table", "empty")
	}
	for i, p := range points {
		if !finite(p.Voltage) || !finite(p.Value) {
			return Conversion{}, invalid("conversion table row", i)
		}
		if i > 0 && p.Voltage <= points[i-1].Voltage {
			return Conversion{}, invalid("conversion table order at row", i)
		}
	}
	t := make([]TablePoint, len(points))
	copy(t, points)
	return Conversion{kind: ConvTable, table: t}, nil
}

func (c Conversion) Kind() ConversionKind { return c.kind }

// Coefficients returns a0, a1, a2.
func (c Conversion) Coefficients() [3]float32 { return c.a }

// Points returns a copy of the table rows.
func (c Conversion) Points() []TablePoint {
	return append([]TablePoint(nil), c.table...)
}

func (c Conversion) validate() error {
	switch c.kind {
	case ConvLinear, ConvQuadratic:
		for _, a := range c.a {
			if !finite(a) {
				return invalid("conversion coefficient", a)
			}
		}
	case ConvTable:
		if len(c.table) == 0 {
			return invalid("conversion table", "empty")
		}
	default:
		return invalid("conversion", uint8(c.kind))
	}
	return nil
}

// Apply converts a voltage.
func (c Conversion) Apply(v float32) float32 {
	switch c.kind {
	case ConvQuadratic:
		return (c.a[2]*v+c.a[1])*v + c.a[0]
	case ConvTable:
		return c.interpolate(v)
	default:
		return c.a[1]*v + c.a[0]
	}
}

func (c Conversion) interpolate(v float32) float32 {
	t := c.table
	if v <= t[0].Voltage {
		return t[0].Value
	}
	last := t[len(t)-1]
	if v >= last.Voltage {
		return last.Value
	}
	// first row strictly above v; 1 <= i < len(t)
	i := sort.Search(len(t), func(i int) bool { return t[i].Voltage > v })
	lo, hi := t[i-1], t[i]
	if v == lo.Voltage {
		return lo.Value
	}
	f := (v - lo.Voltage) / (hi.Voltage - lo.Voltage)
	return lo.Value*(1-f) + hi.Value*f
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// SetConversion selects the physical conversion strategy.
func (d *Device) SetConversion(c Conversion) error {
	if err := c.validate(); err != nil {
		return err
	}
	d.conv = c
	return nil
}

// Conversion returns the active physical conversion.
func (d *Device) Conversion() Conversion {
	return d.conv
}

// ConvValue returns the filtered conversion value in codes.
func (d *Device) ConvValue() (float32, error) {
	n := d.ring.len()
	if n == 0 {
		return 0, ErrNotReady
	}
	switch d.filter {
	case FilterMovingAverage:
		return movingAverage(d.ring.samples(d.scratch[:])), nil
	case FilterSavitzkyGolay:
		s := d.ring.samples(d.scratch[:])
		if n < BufferSize || d.savgol == nil {
			return movingAverage(s), nil
		}
		return d.savgol.apply(s), nil
	default:
		return float32(d.ring.latest()), nil
	}
}

// Voltage returns the filtered conversion value scaled by the current gain's bit weight.
func (d *Device) Voltage() (float32, error) {
	c, err := d.ConvValue()
	if err != nil {
		return 0, err
	}
	return c * d.config.Gain().LSB(), nil
}

// Physical returns Voltage mapped through the active conversion.
func (d *Device) Physical() (float32, error) {
	v, err := d.Voltage()
	if err != nil {
		return 0, err
	}
	return d.conv.Apply(v), nil
}

// Potential returns Voltage as a physic.ElectricPotential.
func (d *Device) Potential() (physic.ElectricPotential, error) {
	v, err := d.Voltage()
	if err != nil {
		return 0, err
	}
	return physic.ElectricPotential(float64(v) * float64(physic.Volt)), nil
}
