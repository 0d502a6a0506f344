package periphbus

import (
	"errors"
	"testing"

	"github.com/itohio/goads/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periph.io/x/conn/v3/physic"
)

type fakeBus struct {
	addrs  []uint16
	writes [][]byte
	reply  []byte
	err    error
}

func (f *fakeBus) String() string { return "fake" }

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.addrs = append(f.addrs, addr)
	f.writes = append(f.writes, append([]byte(nil), w...))
	if f.err != nil {
		return f.err
	}
	copy(r, f.reply)
	return nil
}

func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }

func TestTransport(t *testing.T) {
	fb := &fakeBus{reply: []byte{0x7F, 0xFF}}
	tr := New(fb, bus.AddrVDD)

	require.NoError(t, tr.Begin())
	require.NoError(t, tr.Begin())

	require.NoError(t, tr.WriteRegister(0x03, 0x7FFF))
	v, err := tr.ReadRegister(0x03)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7FFF), v)
	require.NoError(t, tr.Probe())

	assert.Equal(t, []uint16{0x49, 0x49, 0x49}, fb.addrs)
	assert.Equal(t, []byte{0x03, 0x7F, 0xFF}, fb.writes[0])
	assert.Equal(t, []byte{0x03}, fb.writes[1])

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Stop())
	assert.ErrorIs(t, tr.WriteRegister(0x01, 0), bus.ErrNotInitialized)
}

func TestTransportFailure(t *testing.T) {
	fb := &fakeBus{err: errors.New("nack")}
	tr := New(fb, bus.AddrGND)
	require.NoError(t, tr.Begin())

	_, err := tr.ReadRegister(0x00)
	var be *bus.BusError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "read", be.Op)
	assert.ErrorIs(t, tr.Probe(), bus.ErrBus)
}
