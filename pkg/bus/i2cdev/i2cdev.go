// Package i2cdev implements bus.Transport over the Linux i2c-dev character
// device (/dev/i2c-N).
package i2cdev

import (
	"github.com/itohio/goads/pkg/bus"
)

// DefaultDevice is the bus exposed on the Raspberry Pi header.
const DefaultDevice = "/dev/i2c-1"

// Transport talks to one device through /dev/i2c-N.
type Transport struct {
	path string
	addr bus.Addr
	sys  syscalls

	fd          int
	initialized bool
}

var _ bus.Transport = (*Transport)(nil)

// New returns a transport for the device at addr on the bus at path.
func New(path string, addr bus.Addr) *Transport {
	if path == "" {
		path = DefaultDevice
	}
	return &Transport{path: path, addr: addr, sys: hostSyscalls, fd: -1}
}

// syscalls isolates the kernel interface so tests can replace it.
type syscalls struct {
	open     func(path string) (int, error)
	setSlave func(fd int, addr bus.Addr) error
	write    func(fd int, p []byte) (int, error)
	read     func(fd int, p []byte) (int, error)
	close    func(fd int) error
}

// Begin opens the character device and selects the slave address once.
func (t *Transport) Begin() error {
	if t.initialized {
		return nil
	}
	fd, err := t.sys.open(t.path)
	if err != nil {
		return &bus.BusError{Op: "begin", Addr: t.addr, Err: err}
	}
	if err := t.sys.setSlave(fd, t.addr); err != nil {
		t.sys.close(fd)
		return &bus.BusError{Op: "begin", Addr: t.addr, Err: err}
	}
	t.fd = fd
	t.initialized = true
	return nil
}

// Stop closes the character device.
func (t *Transport) Stop() error {
	if !t.initialized {
		return nil
	}
	t.initialized = false
	fd := t.fd
	t.fd = -1
	if err := t.sys.close(fd); err != nil {
		return &bus.BusError{Op: "stop", Addr: t.addr, Err: err}
	}
	return nil
}

func (t *Transport) WriteRegister(reg uint8, value uint16) error {
	if !t.initialized {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	w := bus.Encode(reg, value)
	if err := t.writeFull(w[:]); err != nil {
		return &bus.BusError{Op: "write", Addr: t.addr, Reg: reg, Err: err}
	}
	return nil
}

func (t *Transport) ReadRegister(reg uint8) (uint16, error) {
	if !t.initialized {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	if err := t.writeFull([]byte{reg}); err != nil {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: err}
	}
	var r [2]byte
	n, err := t.sys.read(t.fd, r[:])
	if err == nil && n != len(r) {
		err = errShort
	}
	if err != nil {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: err}
	}
	return bus.Decode(r[:]), nil
}

// Probe reads a single byte from the device.
func (t *Transport) Probe() error {
	if !t.initialized {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: bus.ErrNotInitialized}
	}
	var r [1]byte
	if _, err := t.sys.read(t.fd, r[:]); err != nil {
		return &bus.BusError{Op: "probe", Addr: t.addr, Err: err}
	}
	return nil
}

func (t *Transport) writeFull(p []byte) error {
	n, err := t.sys.write(t.fd, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return errShort
	}
	return nil
}
