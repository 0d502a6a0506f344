package bus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecode(t *testing.T) {
	frame := Encode(0x01, 0x8583)
	assert.Equal(t, [3]byte{0x01, 0x85, 0x83}, frame)
	assert.Equal(t, uint16(0x8583), Decode(frame[1:]))
	assert.Equal(t, uint16(0x00FF), Decode([]byte{0x00, 0xFF}))
}

func TestAddrValid(t *testing.T) {
	assert.True(t, AddrGND.Valid())
	assert.True(t, AddrSCL.Valid())
	assert.False(t, Addr(0x47).Valid())
	assert.False(t, Addr(0x4C).Valid())
}

func TestBusError(t *testing.T) {
	cause := errors.New("nack")
	var err error = &BusError{Op: "write", Addr: AddrGND, Reg: 0x01, Err: cause}
	wrapped := fmt.Errorf("set mux: %w", err)

	assert.True(t, errors.Is(wrapped, ErrBus))
	assert.True(t, errors.Is(wrapped, cause))

	var be *BusError
	assert.True(t, errors.As(wrapped, &be))
	assert.Equal(t, uint8(0x01), be.Reg)
	assert.Equal(t, "bus: write 0x48 reg 0x01: nack", err.Error())

	probe := &BusError{Op: "probe", Addr: AddrVDD, Err: cause}
	assert.Equal(t, "bus: probe 0x49: nack", probe.Error())
}
