package ads

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/goads/pkg/bus"
)

// Signal returns the simulated input voltage for a mux setting at an instant.
type Signal func(mux Mux, at time.Time) float32

// ConstantCode returns a Signal that always converts to code at the given gain.
func ConstantCode(code int16, g Gain) Signal {
	v := float32(code) * g.LSB()
	return func(Mux, time.Time) float32 { return v }
}

// SineSignal returns bias + amplitude·sin(2πt/period) plus uniform noise of
// the given peak level. Each input is phase shifted by a quarter period per
// mux index.
func SineSignal(bias, amplitude float32, period time.Duration, noise float32) Signal {
	start := time.Now()
	return func(m Mux, at time.Time) float32 {
		v := bias
		if period > 0 {
			phase := float32(at.Sub(start).Seconds()/period.Seconds()) + float32(m)/4
			v += amplitude * math32.Sin(2*math32.Pi*phase)
		}
		if noise > 0 {
			v += noise * (2*rand.Float32() - 1)
		}
		return v
	}
}

// MockWrite records one register write.
type MockWrite struct {
	Reg   uint8
	Value uint16
}

// Mock simulates an ADS111x at register level. It implements bus.Transport.
type Mock struct {
	mu sync.RWMutex

	addr      bus.Addr
	signal    Signal
	regs      [4]uint16
	began     bool
	absent    bool
	failure   error
	busyPolls int
	busy      int
	active    bool // single-shot conversion in progress
	writes    []MockWrite
	now       func() time.Time
}

var _ bus.Transport = (*Mock)(nil)

// NewMock creates a simulated device at power-on state. A nil signal reads 0 V.
func NewMock(signal Signal) *Mock {
	if signal == nil {
		signal = func(Mux, time.Time) float32 { return 0 }
	}
	m := &Mock{
		addr:   bus.DefaultAddr,
		signal: signal,
		now:    time.Now,
	}
	m.regs[RegConfig] = uint16(DefaultConfig)
	m.regs[RegLowThresh] = DefaultLowThreshold
	m.regs[RegHighThresh] = DefaultHighThreshold
	return m
}

// SetSignal replaces the simulated input.
func (m *Mock) SetSignal(s Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal = s
}

// SetAbsent makes the device stop acknowledging its address.
func (m *Mock) SetAbsent(absent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absent = absent
}

// SetFailure makes every register access fail with err. Nil clears it.
func (m *Mock) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// SetBusyPolls sets how many status reads report busy after a single-shot start.
func (m *Mock) SetBusyPolls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busyPolls = n
}

// Writes returns the register writes seen so far.
func (m *Mock) Writes() []MockWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockWrite(nil), m.writes...)
}

// ResetWrites clears the write log.
func (m *Mock) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

// Register returns the simulated register content.
func (m *Mock) Register(reg uint8) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regs[reg&3]
}

func (m *Mock) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.began = true
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.began = false
	return nil
}

func (m *Mock) Probe() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.began {
		return &bus.BusError{Op: "probe", Addr: m.addr, Err: bus.ErrNotInitialized}
	}
	if m.absent {
		return &bus.BusError{Op: "probe", Addr: m.addr, Err: fmt.Errorf("no ack")}
	}
	return nil
}

func (m *Mock) check(op string, reg uint8) error {
	switch {
	case !m.began:
		return &bus.BusError{Op: op, Addr: m.addr, Reg: reg, Err: bus.ErrNotInitialized}
	case m.absent:
		return &bus.BusError{Op: op, Addr: m.addr, Reg: reg, Err: fmt.Errorf("no ack")}
	case m.failure != nil:
		return &bus.BusError{Op: op, Addr: m.addr, Reg: reg, Err: m.failure}
	case reg > RegHighThresh:
		return &bus.BusError{Op: op, Addr: m.addr, Reg: reg, Err: fmt.Errorf("bad pointer")}
	}
	return nil
}

func (m *Mock) WriteRegister(reg uint8, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("write", reg); err != nil {
		return err
	}
	m.writes = append(m.writes, MockWrite{Reg: reg, Value: value})
	switch reg {
	case RegConversion:
		return nil
	case RegConfig:
		c := Config(value)
		if c.Mode() == ModeSingleShot && c.OS() {
			m.regs[RegConfig] = uint16(c.with(fieldOS, 0))
			m.busy = m.busyPolls
			m.active = true
			if m.busy == 0 {
				m.complete()
			}
			return nil
		}
		// idle single-shot and continuous both read OS=1
		m.regs[RegConfig] = uint16(c.with(fieldOS, 1))
		m.active = false
	default:
		m.regs[reg] = value
	}
	return nil
}

func (m *Mock) ReadRegister(reg uint8) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("read", reg); err != nil {
		return 0, err
	}
	c := Config(m.regs[RegConfig])
	switch reg {
	case RegConfig:
		if m.active {
			if m.busy > 0 {
				m.busy--
				return uint16(c.with(fieldOS, 0)), nil
			}
			m.complete()
		}
		return m.regs[RegConfig], nil
	case RegConversion:
		if c.Mode() == ModeContinuous {
			m.regs[RegConversion] = m.code(c)
		}
	}
	return m.regs[reg], nil
}

// complete finishes a single-shot conversion. Callers hold mu.
func (m *Mock) complete() {
	c := Config(m.regs[RegConfig])
	m.regs[RegConversion] = m.code(c)
	m.regs[RegConfig] = uint16(c.with(fieldOS, 1))
	m.active = false
}

func (m *Mock) code(c Config) uint16 {
	lsb := c.Gain().LSB()
	if lsb == 0 {
		return 0
	}
	v := math32.Round(m.signal(c.Mux(), m.now()) / lsb)
	switch {
	case v > 32767:
		v = 32767
	case v < -32768:
		v = -32768
	}
	return uint16(int16(v))
}
