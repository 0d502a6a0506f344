// Package periphbus implements bus.Transport on top of periph.io I2C buses.
package periphbus

import (
	"fmt"

	"github.com/itohio/goads/pkg/bus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Transport talks to one device on a periph.io I2C bus.
type Transport struct {
	name   string
	addr   bus.Addr
	b      i2c.Bus
	closer i2c.BusCloser
	dev    i2c.Dev

	initialized bool
}

var _ bus.Transport = (*Transport)(nil)

// New wraps an already opened bus. Stop does not close it.
func New(b i2c.Bus, addr bus.Addr) *Transport {
	return &Transport{b: b, addr: addr}
}

// Open returns a transport that opens the named bus ("" for the first one,
// "1", "/dev/i2c-1", ...) on Begin and closes it on Stop.
func Open(name string, addr bus.Addr) *Transport {
	return &Transport{name: name, addr: addr}
}

// Begin initializes the periph host drivers and opens the bus once.
func (t *Transport) Begin() error {
	if t.initialized {
		return nil
	}
	if t.b == nil {
		if _, err := host.Init(); err != nil {
			return &bus.BusError{Op: "begin", Addr: t.addr, Err: fmt.Errorf("host init: %w", err)}
		}
		bc, err := i2creg.Open(t.name)
		if err != nil {
			return &bus.BusError{Op: "begin", Addr: t.addr, Err: fmt.Errorf("open %q: %w", t.name, err)}
		}
		t.b = bc
		t.closer = bc
	}
	t.dev = i2c.Dev{Bus: t.b, Addr: uint16(t.addr)}
	t.initialized = true
	return nil
}

// Stop closes a bus opened by Begin.
func (t *Transport) Stop() error {
	if !t.initialized {
		return nil
	}
	t.initialized = false
	if t.closer != nil {
		err := t.closer.Close()
		t.closer = nil
		t.b = nil
		if err != nil {
			return &bus.BusError{Op: "stop", Addr: t.addr, Err: err}
		}
	}
	return nil
}

func (t *Transport) WriteRegister(reg uint8, value uint16) error {
	if !t.initialized {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	w := bus.Encode(reg, value)
	if err := t.dev.Tx(w[:], nil); err != nil {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *Transport) ReadRegister(reg uint8) (uint16, error) {
	if !t.initialized {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	var r [2]byte
	if err := t.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: err}
	}
	return bus.Decode(r[:]), nil
}

// Probe reads one byte; only an acknowledging device succeeds.
func (t *Transport) Probe() error {
	if !t.initialized {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: bus.ErrNotInitialized}
	}
	var r [1]byte
	if err := t.dev.Tx(nil, r[:]); err != nil {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: err}
	}
	return nil
}
