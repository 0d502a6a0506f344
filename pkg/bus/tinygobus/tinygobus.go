// Package tinygobus implements bus.Transport on top of tinygo.org/x/drivers.I2C,
// which machine.I2C satisfies. It lets the converter driver run directly on a
// microcontroller built with TinyGo.
package tinygobus

import (
	"github.com/itohio/goads/pkg/bus"

	"tinygo.org/x/drivers"
)

// Transport talks to one device on a TinyGo I2C bus.
type Transport struct {
	i2c  drivers.I2C
	addr bus.Addr
	init func() error

	initialized bool
	w           [3]byte
	r           [2]byte
}

var _ bus.Transport = (*Transport)(nil)

// Option customizes a Transport.
type Option func(*Transport)

// WithInit sets the bus initialization run by the first Begin, typically a
// closure configuring machine.I2C with the SDA/SCL pins and frequency.
func WithInit(fn func() error) Option {
	return func(t *Transport) { t.init = fn }
}

// New returns a transport for the device at addr.
func New(i2c drivers.I2C, addr bus.Addr, opts ...Option) *Transport {
	t := &Transport{i2c: i2c, addr: addr}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin runs the bus initialization once.
func (t *Transport) Begin() error {
	if t.initialized {
		return nil
	}
	if t.init != nil {
		if err := t.init(); err != nil {
			return &bus.BusError{Op: "begin", Addr: t.addr, Err: err}
		}
	}
	t.initialized = true
	return nil
}

// Stop marks the transport uninitialized. machine.I2C has no release call.
func (t *Transport) Stop() error {
	t.initialized = false
	return nil
}

func (t *Transport) WriteRegister(reg uint8, value uint16) error {
	if !t.initialized {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	t.w = bus.Encode(reg, value)
	if err := t.i2c.Tx(uint16(t.addr), t.w[:], nil); err != nil {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *Transport) ReadRegister(reg uint8) (uint16, error) {
	if !t.initialized {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	t.w[0] = reg
	if err := t.i2c.Tx(uint16(t.addr), t.w[:1], t.r[:]); err != nil {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: err}
	}
	return bus.Decode(t.r[:]), nil
}

// Probe reads one byte; only an acknowledging device succeeds.
func (t *Transport) Probe() error {
	if !t.initialized {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: bus.ErrNotInitialized}
	}
	if err := t.i2c.Tx(uint16(t.addr), nil, t.r[:1]); err != nil {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: err}
	}
	return nil
}
