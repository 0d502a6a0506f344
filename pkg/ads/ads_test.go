package ads

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goads/pkg/bus"
)

type fakeClock struct {
	t     time.Time
	slept time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept += d
	c.t = c.t.Add(d)
}

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDevice(t *testing.T, sig Signal, opts ...Option) (*Device, *Mock, *fakeClock) {
	t.Helper()
	m := NewMock(sig)
	clk := &fakeClock{t: time.Unix(1000, 0)}
	d := New(m, append([]Option{WithClock(clk.now, clk.sleep)}, opts...)...)
	require.NoError(t, d.Begin())
	m.ResetWrites()
	return d, m, clk
}

// sequence returns a Signal yielding the given codes in order, repeating the last one.
func sequence(g Gain, codes ...int16) Signal {
	var mu sync.Mutex
	i := 0
	return func(Mux, time.Time) float32 {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return float32(c) * g.LSB()
	}
}

func TestBeginLoadsDefaults(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)

	assert.Equal(t, Config(0x0583), d.Config())
	assert.Equal(t, MuxAIN0AIN1, d.Mux())
	assert.Equal(t, Gain2V048, d.Gain())
	assert.Equal(t, ModeSingleShot, d.Mode())
	assert.Equal(t, Rate128SPS, d.DataRate())
	assert.Equal(t, CompTraditional, d.CompMode())
	assert.Equal(t, CompActiveLow, d.CompPolarity())
	assert.Equal(t, CompNonLatching, d.CompLatch())
	assert.Equal(t, CompQueueDisable, d.CompQueue())
	lo, hi := d.Thresholds()
	assert.Equal(t, int16(-32768), lo)
	assert.Equal(t, int16(32767), hi)
	assert.True(t, d.Connected())
	assert.Equal(t, FilterNone, d.FilterStatus())
	assert.Equal(t, ConvLinear, d.Conversion().Kind())
}

func TestBeginIdempotent(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	require.NoError(t, d.Begin())
	assert.Empty(t, m.Writes())

	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
	require.NoError(t, d.Begin())
}

func TestBeginAbsent(t *testing.T) {
	m := NewMock(nil)
	m.SetAbsent(true)
	d := New(m)

	err := d.Begin()
	require.Error(t, err)
	assert.True(t, IsAbsent(err))
	assert.ErrorIs(t, err, bus.ErrBus)
	assert.False(t, d.Connected())
}

func TestFieldSetters(t *testing.T) {
	tests := []struct {
		name string
		set  func(d *Device) error
		get  func(d *Device) any
		want any
		word uint16
	}{
		{"mux", func(d *Device) error { return d.SetMux(MuxAIN3GND) }, func(d *Device) any { return d.Mux() }, MuxAIN3GND, 0x7583},
		{"gain", func(d *Device) error { return d.SetGain(Gain6V144) }, func(d *Device) any { return d.Gain() }, Gain6V144, 0x0183},
		{"mode", func(d *Device) error { return d.SetMode(ModeContinuous) }, func(d *Device) any { return d.Mode() }, ModeContinuous, 0x0483},
		{"rate", func(d *Device) error { return d.SetDataRate(Rate860SPS) }, func(d *Device) any { return d.DataRate() }, Rate860SPS, 0x05E3},
		{"comp mode", func(d *Device) error { return d.SetCompMode(CompWindow) }, func(d *Device) any { return d.CompMode() }, CompWindow, 0x0593},
		{"comp polarity", func(d *Device) error { return d.SetCompPolarity(CompActiveHigh) }, func(d *Device) any { return d.CompPolarity() }, CompActiveHigh, 0x058B},
		{"comp latch", func(d *Device) error { return d.SetCompLatch(CompLatching) }, func(d *Device) any { return d.CompLatch() }, CompLatching, 0x0587},
		{"comp queue", func(d *Device) error { return d.SetCompQueue(CompQueue1) }, func(d *Device) any { return d.CompQueue() }, CompQueue1, 0x0580},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m, _ := newTestDevice(t, nil)
			require.NoError(t, tt.set(d))
			assert.Equal(t, tt.want, tt.get(d))
			assert.Equal(t, []MockWrite{{Reg: RegConfig, Value: tt.word}}, m.Writes())
			assert.Equal(t, Config(tt.word), d.Config())
		})
	}
}

func TestFieldRoundTrip(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)
	for g := Gain6V144; g.Valid(); g++ {
		require.NoError(t, d.SetGain(g))
		assert.Equal(t, g, d.Gain())
	}
	for m := MuxAIN0AIN1; m.Valid(); m++ {
		require.NoError(t, d.SetMux(m))
		assert.Equal(t, m, d.Mux())
	}
	for r := Rate8SPS; r.Valid(); r++ {
		require.NoError(t, d.SetDataRate(r))
		assert.Equal(t, r, d.DataRate())
	}
	for q := CompQueue1; q.Valid(); q++ {
		require.NoError(t, d.SetCompQueue(q))
		assert.Equal(t, q, d.CompQueue())
	}

	// cache agrees with the device after a reload
	want := d.Config()
	require.NoError(t, d.Reload())
	assert.Equal(t, want, d.Config())
}

func TestFieldSettersRejectInvalid(t *testing.T) {
	tests := []struct {
		name string
		set  func(d *Device) error
	}{
		{"gain 6", func(d *Device) error { return d.SetGain(Gain(6)) }},
		{"gain 7", func(d *Device) error { return d.SetGain(Gain(7)) }},
		{"mux", func(d *Device) error { return d.SetMux(Mux(8)) }},
		{"mode", func(d *Device) error { return d.SetMode(Mode(2)) }},
		{"rate", func(d *Device) error { return d.SetDataRate(DataRate(8)) }},
		{"comp mode", func(d *Device) error { return d.SetCompMode(CompMode(2)) }},
		{"comp queue", func(d *Device) error { return d.SetCompQueue(CompQueue(4)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m, _ := newTestDevice(t, nil)
			before := d.Config()
			err := tt.set(d)
			assert.ErrorIs(t, err, ErrInvalidField)
			assert.Equal(t, before, d.Config())
			assert.Empty(t, m.Writes())
		})
	}
}

func TestSetterBusFailureKeepsCache(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	m.SetFailure(errors.New("arbitration lost"))

	err := d.SetGain(Gain0V256)
	require.Error(t, err)
	assert.ErrorIs(t, err, bus.ErrBus)
	assert.Equal(t, Gain2V048, d.Gain())
}

func TestSingleShotScenario(t *testing.T) {
	d, m, _ := newTestDevice(t, ConstantCode(16384, Gain6V144))
	require.NoError(t, d.SetGain(Gain6V144))
	m.SetBusyPolls(1)

	ready, err := d.ConversionReady()
	require.NoError(t, err)
	assert.False(t, ready, "nothing started")

	m.ResetWrites()
	require.NoError(t, d.StartSingleShot())
	assert.Equal(t, []MockWrite{{Reg: RegConfig, Value: 0x8183}}, m.Writes())
	assert.Equal(t, Config(0x0183), d.Config(), "OS is never cached")

	_, err = d.ReadConversion()
	assert.ErrorIs(t, err, ErrNotReady)

	raw, err := d.ReadConversion()
	require.NoError(t, err)
	assert.Equal(t, int16(16384), raw)

	v, err := d.Voltage()
	require.NoError(t, err)
	assert.InDelta(t, 16384*0.0001875, v, 1e-5)

	require.NoError(t, d.SetConversion(Linear(10, 0)))
	p, err := d.Physical()
	require.NoError(t, err)
	assert.InDelta(t, 10*v, p, 1e-5)

	pot, err := d.Potential()
	require.NoError(t, err)
	assert.InDelta(t, 3.072, float64(pot)/1e9, 1e-5)

	ready, err = d.ConversionReady()
	require.NoError(t, err)
	assert.False(t, ready, "conversion already consumed")
}

func TestStartSingleShotInContinuousMode(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)
	require.NoError(t, d.SetMode(ModeContinuous))
	assert.ErrorIs(t, d.StartSingleShot(), ErrInvalidField)
}

func TestOpStatus(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	m.SetBusyPolls(2)

	idle, err := d.OpStatus()
	require.NoError(t, err)
	assert.True(t, idle)

	require.NoError(t, d.StartSingleShot())
	for i := 0; i < 2; i++ {
		idle, err = d.OpStatus()
		require.NoError(t, err)
		assert.False(t, idle)
	}
	idle, err = d.OpStatus()
	require.NoError(t, err)
	assert.True(t, idle)
}

func TestContinuousPacing(t *testing.T) {
	d, _, clk := newTestDevice(t, ConstantCode(100, Gain2V048))
	require.NoError(t, d.SetMode(ModeContinuous))
	require.NoError(t, d.SetDataRate(Rate8SPS))
	clk.advance(MuxSettleDelay)

	ready, err := d.ConversionReady()
	require.NoError(t, err)
	assert.True(t, ready)

	raw, err := d.ReadConversion()
	require.NoError(t, err)
	assert.Equal(t, int16(100), raw)

	ready, err = d.ConversionReady()
	require.NoError(t, err)
	assert.False(t, ready)

	clk.advance(125 * time.Millisecond)
	ready, err = d.ConversionReady()
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMuxChangeSettlesAndResets(t *testing.T) {
	d, _, clk := newTestDevice(t, ConstantCode(5, Gain2V048))
	clk.advance(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.StartSingleShot())
		_, err := d.ReadConversion()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, d.BufferFill())
	assert.Zero(t, clk.slept)

	require.NoError(t, d.SetMux(MuxAIN1GND))
	assert.Equal(t, 0, d.BufferFill())

	require.NoError(t, d.StartSingleShot())
	assert.Equal(t, MuxSettleDelay, clk.slept)
}

func TestGainChangeKeepsRawCodes(t *testing.T) {
	d, _, _ := newTestDevice(t, ConstantCode(1000, Gain2V048))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.StartSingleShot())
		_, err := d.ReadConversion()
		require.NoError(t, err)
	}
	require.NoError(t, d.SetGain(Gain0V256))
	assert.Equal(t, []int16{1000, 1000, 1000}, d.Buffer())

	v, err := d.Voltage()
	require.NoError(t, err)
	assert.InDelta(t, 1000*0.0000078125, v, 1e-7)
}

func TestFrozen(t *testing.T) {
	d, m, _ := newTestDevice(t, ConstantCode(42, Gain2V048))
	read := func() {
		require.NoError(t, d.StartSingleShot())
		_, err := d.ReadConversion()
		require.NoError(t, err)
	}

	for i := 0; i < BufferSize-1; i++ {
		read()
		assert.False(t, d.IsValueFrozen())
	}
	read()
	assert.True(t, d.IsValueFrozen())
	assert.Equal(t, BufferSize, d.BufferFill())
	assert.Equal(t, BufferSize, d.BufferCap())

	m.SetSignal(ConstantCode(43, Gain2V048))
	read()
	assert.False(t, d.IsValueFrozen())

	require.NoError(t, d.SetMux(MuxAIN2GND))
	assert.False(t, d.IsValueFrozen())
}

func TestBufferOverflowKeepsNewest(t *testing.T) {
	codes := make([]int16, BufferSize+4)
	for i := range codes {
		codes[i] = int16(i * 10)
	}
	d, _, _ := newTestDevice(t, sequence(Gain2V048, codes...))
	for range codes {
		require.NoError(t, d.StartSingleShot())
		_, err := d.ReadConversion()
		require.NoError(t, err)
	}
	assert.Equal(t, codes[4:], d.Buffer())

	latest, err := d.Latest()
	require.NoError(t, err)
	assert.Equal(t, codes[len(codes)-1], latest)
}

func TestNotReadyBeforeFirstSample(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)
	_, err := d.ConvValue()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.Voltage()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.Physical()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = d.Latest()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestReadWithoutSingleShotStart(t *testing.T) {
	d, m, _ := newTestDevice(t, ConstantCode(7, Gain2V048))

	for i := 0; i < BufferSize; i++ {
		_, err := d.ReadConversion()
		assert.ErrorIs(t, err, ErrNotReady)
	}
	assert.Equal(t, 0, d.BufferFill())
	assert.False(t, d.IsValueFrozen())
	assert.Empty(t, m.Writes())

	require.NoError(t, d.StartSingleShot())
	raw, err := d.ReadConversion()
	require.NoError(t, err)
	assert.Equal(t, int16(7), raw)

	_, err = d.ReadConversion()
	assert.ErrorIs(t, err, ErrNotReady, "conversion already consumed")
	assert.Equal(t, 1, d.BufferFill())
}

func TestThresholds(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)

	err := d.SetThresholds(100, -100)
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Empty(t, m.Writes())

	require.NoError(t, d.SetThresholds(-100, 100))
	lo, hi := d.Thresholds()
	assert.Equal(t, int16(-100), lo)
	assert.Equal(t, int16(100), hi)
	assert.Equal(t, uint16(0xFF9C), m.Register(RegLowThresh))
	assert.Equal(t, uint16(100), m.Register(RegHighThresh))

	require.NoError(t, d.SetCompMode(CompWindow))
	require.NoError(t, d.SetThresholds(100, -100), "window mode does not order thresholds")
}

func TestThresholdBits(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)

	assert.ErrorIs(t, d.SetLowThreshBit(16, true), ErrInvalidField)
	assert.ErrorIs(t, d.SetHighThreshBit(-1, true), ErrInvalidField)
	_, err := d.LowThreshBit(16)
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Empty(t, m.Writes())

	require.NoError(t, d.SetHighThreshBit(15, true))
	assert.Equal(t, []MockWrite{{Reg: RegHighThresh, Value: 0xFFFF}}, m.Writes())
	set, err := d.HighThreshBit(15)
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, d.SetLowThreshBit(15, false))
	set, err = d.LowThreshBit(15)
	require.NoError(t, err)
	assert.False(t, set)
	assert.Equal(t, uint16(0), m.Register(RegLowThresh))
}

func TestPinReadyMode(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	assert.False(t, d.PinReadyMode())

	assert.ErrorIs(t, d.SetPinReadyMode(true, CompQueueDisable), ErrInvalidField)
	assert.Empty(t, m.Writes())

	require.NoError(t, d.SetPinReadyMode(true, CompQueue1))
	assert.True(t, d.PinReadyMode())
	assert.Equal(t, CompQueue1, d.CompQueue())
	assert.Equal(t, uint16(0x0000), m.Register(RegLowThresh))
	assert.Equal(t, uint16(0xFFFF), m.Register(RegHighThresh))

	require.NoError(t, d.SetPinReadyMode(false, CompQueue1))
	assert.False(t, d.PinReadyMode())
	assert.Equal(t, CompQueueDisable, d.CompQueue())
	lo, hi := d.Thresholds()
	assert.Equal(t, int16(-32768), lo)
	assert.Equal(t, int16(32767), hi)
}

type fakePin struct{ level bool }

func (p *fakePin) Get() bool { return p.level }

func TestReadyPin(t *testing.T) {
	pin := &fakePin{level: true}
	d, _, clk := newTestDevice(t, ConstantCode(7, Gain2V048), WithReadyPin(pin))
	require.NoError(t, d.SetMode(ModeContinuous))
	require.NoError(t, d.SetPinReadyMode(true, CompQueue1))
	clk.advance(MuxSettleDelay)

	ready, err := d.ConversionReady()
	require.NoError(t, err)
	assert.False(t, ready, "active-low pin idles high")

	pin.level = false
	ready, err = d.ConversionReady()
	require.NoError(t, err)
	assert.True(t, ready)

	require.NoError(t, d.SetCompPolarity(CompActiveHigh))
	ready, err = d.ConversionReady()
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestRegisterEscapeHatch(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)

	_, err := d.RegisterValue(4)
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.ErrorIs(t, d.SetRegisterValue(RegConversion, 1), ErrInvalidField)
	assert.ErrorIs(t, d.SetRegisterValue(4, 1), ErrInvalidField)
	assert.Empty(t, m.Writes())

	// reserved gain pattern goes through unchecked
	require.NoError(t, d.SetRegisterValue(RegConfig, 0x0F83))
	assert.Equal(t, Gain(7), d.Gain())
	assert.Equal(t, uint16(0x8F83), m.Register(RegConfig))

	v, err := d.RegisterValue(RegHighThresh)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x7FFF), v)

	require.NoError(t, d.SetRegisterValue(RegLowThresh, 0x1234))
	lo, _ := d.Thresholds()
	assert.Equal(t, int16(0x1234), lo)
}

func TestSetRegisterValueStartsConversion(t *testing.T) {
	d, _, _ := newTestDevice(t, ConstantCode(321, Gain2V048))
	require.NoError(t, d.SetRegisterValue(RegConfig, 0x8583))
	raw, err := d.ReadConversion()
	require.NoError(t, err)
	assert.Equal(t, int16(321), raw)
}

func TestSetDefault(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	require.NoError(t, d.SetGain(Gain0V512))
	require.NoError(t, d.SetThresholds(1, 2))
	m.ResetWrites()

	require.NoError(t, d.SetDefault())
	assert.Equal(t, []MockWrite{
		{Reg: RegConfig, Value: 0x0583},
		{Reg: RegLowThresh, Value: DefaultLowThreshold},
		{Reg: RegHighThresh, Value: DefaultHighThreshold},
	}, m.Writes())
	assert.Equal(t, Gain2V048, d.Gain())
}

func TestConnectionStatus(t *testing.T) {
	d, m, _ := newTestDevice(t, nil)
	assert.True(t, d.ConnectionStatus())

	m.SetAbsent(true)
	assert.False(t, d.ConnectionStatus())
	assert.False(t, d.Connected())
	err := d.Probe()
	assert.ErrorIs(t, err, ErrDeviceAbsent)

	m.SetAbsent(false)
	assert.True(t, d.ConnectionStatus())
}

func TestConfigString(t *testing.T) {
	d, _, _ := newTestDevice(t, nil)
	s := d.ConfigString()
	assert.Contains(t, s, "0x0583")
	assert.Contains(t, s, "MUX=AIN0_AIN1")
	assert.Contains(t, s, "PGA=2.048V")
	assert.Contains(t, s, "MODE=single")
	assert.Contains(t, s, "DR=128SPS")
	assert.Contains(t, s, "COMP_QUE=disable")
	assert.Contains(t, s, "LO_THRESH=-32768")
}
