// Package bus defines the register-level transport used to talk to an
// ADS111x converter over I2C.
//
// Every register access is pointer-then-data framed: a write sends the
// register pointer followed by two data bytes, a read sends the pointer and
// then reads two bytes. Data is always big-endian.
package bus

import (
	"errors"
	"fmt"
)

// Addr is a 7-bit I2C device address.
type Addr uint8

// Device addresses selected by the level of the ADDR pin.
const (
	AddrGND Addr = 0x48 // ADDR tied to GND (default)
	AddrVDD Addr = 0x49 // ADDR tied to VDD
	AddrSDA Addr = 0x4A // ADDR tied to SDA
	AddrSCL Addr = 0x4B // ADDR tied to SCL

	DefaultAddr = AddrGND
)

// Valid reports whether a is one of the four addresses the converter answers on.
func (a Addr) Valid() bool {
	return a >= AddrGND && a <= AddrSCL
}

// Transport moves 16-bit register values between the host and one device.
//
// Begin must be idempotent: calling it on an already initialized transport
// returns nil. Stop releases the bus and is safe to call more than once.
// No retries are performed; failures are reported as *BusError.
type Transport interface {
	Begin() error
	Stop() error
	WriteRegister(reg uint8, value uint16) error
	ReadRegister(reg uint8) (uint16, error)
	Probe() error
}

// ErrBus matches any *BusError with errors.Is.
var ErrBus = errors.New("bus: transaction failed")

// ErrNotInitialized is wrapped in a BusError when a transport is used before Begin.
var ErrNotInitialized = errors.New("bus: not initialized")

// BusError describes a failed bus transaction. A failed write may leave the
// device register pointer set to Reg.
type BusError struct {
	Op   string // "write", "read", "probe", "begin"
	Addr Addr
	Reg  uint8
	Err  error
}

func (e *BusError) Error() string {
	if e.Op == "probe" || e.Op == "begin" {
		return fmt.Sprintf("bus: %s 0x%02X: %v", e.Op, uint8(e.Addr), e.Err)
	}
	return fmt.Sprintf("bus: %s 0x%02X reg 0x%02X: %v", e.Op, uint8(e.Addr), e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrBus) match any BusError.
func (e *BusError) Is(target error) bool { return target == ErrBus }

// Encode frames a register write: pointer byte followed by the big-endian value.
func Encode(reg uint8, value uint16) [3]byte {
	return [3]byte{reg, byte(value >> 8), byte(value)}
}

// Decode reassembles two big-endian bytes.
func Decode(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
