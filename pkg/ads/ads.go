// Package ads drives the ADS1113/ADS1114/ADS1115 16-bit delta-sigma ADCs.
//
// A Device keeps a cached copy of the configuration and threshold registers,
// a ring of the most recent raw conversion codes, an optional smoothing
// filter and a voltage-to-physical conversion. All register access goes
// through a bus.Transport, so the same driver runs against Linux i2c-dev,
// periph.io, a TinyGo board or a serial bridge.
//
// A Device is not safe for concurrent use.
package ads

import (
	"fmt"
	"time"

	"github.com/itohio/goads/pkg/bus"
)

// ReadyPin is the ALERT/RDY input. machine.Pin satisfies it.
type ReadyPin interface {
	Get() bool
}

type Option func(*Device)

// WithReadyPin lets ConversionReady consult the ALERT/RDY pin in
// conversion-ready mode instead of polling registers.
func WithReadyPin(p ReadyPin) Option {
	return func(d *Device) { d.readyPin = p }
}

// WithClock replaces the time source and sleep used for settling and pacing.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(d *Device) {
		d.now = now
		d.sleep = sleep
	}
}

type Device struct {
	tr       bus.Transport
	readyPin ReadyPin
	now      func() time.Time
	sleep    func(time.Duration)

	begun     bool
	connected bool
	config    Config // OS bit always clear
	lowThresh uint16
	hiThresh  uint16

	ring     ring
	scratch  [BufferSize]int16
	pending  bool
	lastRead time.Time
	settled  time.Time // input trustworthy from this instant

	filter Filter
	savgol *savGol
	conv   Conversion
}

// New creates a Device. The cache holds power-on defaults until Begin.
func New(tr bus.Transport, opts ...Option) *Device {
	d := &Device{
		tr:        tr,
		now:       time.Now,
		sleep:     time.Sleep,
		config:    DefaultConfig.with(fieldOS, 0),
		lowThresh: DefaultLowThreshold,
		hiThresh:  DefaultHighThreshold,
		conv:      Linear(1, 0),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Begin initializes the bus, probes the device and loads the register cache.
// Calling it again on a started device is a no-op.
func (d *Device) Begin() error {
	if d.begun {
		return nil
	}
	if err := d.tr.Begin(); err != nil {
		return fmt.Errorf("failed to begin bus: %w", err)
	}
	if err := d.Probe(); err != nil {
		return err
	}
	if err := d.Reload(); err != nil {
		return err
	}
	d.begun = true
	d.settled = d.now().Add(MuxSettleDelay)
	return nil
}

// Stop releases the bus. The cache is kept.
func (d *Device) Stop() error {
	d.begun = false
	d.pending = false
	return d.tr.Stop()
}

// Reload refreshes the cached configuration and thresholds from the device.
func (d *Device) Reload() error {
	for reg := RegConfig; reg <= RegHighThresh; reg++ {
		if _, err := d.RegisterValue(reg); err != nil {
			return err
		}
	}
	return nil
}

// SetDefault writes power-on defaults to the configuration and threshold registers.
func (d *Device) SetDefault() error {
	if err := d.writeConfig(DefaultConfig); err != nil {
		return err
	}
	if err := d.writeThresholds(DefaultLowThreshold, DefaultHighThreshold); err != nil {
		return err
	}
	d.ring.reset()
	d.settled = d.now().Add(MuxSettleDelay)
	return nil
}

func (d *Device) writeConfig(c Config) error {
	c = c.with(fieldOS, 0)
	if err := c.Validate(); err != nil {
		return err
	}
	if err := d.tr.WriteRegister(RegConfig, uint16(c)); err != nil {
		return err
	}
	if c.Mode() != d.config.Mode() {
		d.pending = false
	}
	d.config = c
	return nil
}

func (d *Device) writeThresholds(lo, hi uint16) error {
	if err := d.writeLowThresh(lo); err != nil {
		return err
	}
	return d.writeHighThresh(hi)
}

func (d *Device) writeLowThresh(v uint16) error {
	if err := d.tr.WriteRegister(RegLowThresh, v); err != nil {
		return err
	}
	d.lowThresh = v
	return nil
}

func (d *Device) writeHighThresh(v uint16) error {
	if err := d.tr.WriteRegister(RegHighThresh, v); err != nil {
		return err
	}
	d.hiThresh = v
	return nil
}

func (d *Device) setField(f field, v uint8, valid bool) error {
	if !valid {
		return invalid(f.name, v)
	}
	return d.writeConfig(d.config.with(f, v))
}

// Config returns the cached configuration word.
func (d *Device) Config() Config { return d.config }

// SetMux selects the input pair. The sample ring is cleared and the next
// conversion waits for the input to settle.
func (d *Device) SetMux(m Mux) error {
	if err := d.setField(fieldMux, uint8(m), m.Valid()); err != nil {
		return err
	}
	d.ring.reset()
	d.pending = false
	d.settled = d.now().Add(MuxSettleDelay)
	return nil
}

func (d *Device) Mux() Mux { return d.config.Mux() }

// SetGain selects the full-scale range. Buffered codes are kept and
// reinterpreted with the new bit weight.
func (d *Device) SetGain(g Gain) error {
	return d.setField(fieldGain, uint8(g), g.Valid())
}

func (d *Device) Gain() Gain { return d.config.Gain() }

func (d *Device) SetMode(m Mode) error {
	return d.setField(fieldMode, uint8(m), m.Valid())
}

func (d *Device) Mode() Mode { return d.config.Mode() }

func (d *Device) SetDataRate(r DataRate) error {
	return d.setField(fieldRate, uint8(r), r.Valid())
}

func (d *Device) DataRate() DataRate { return d.config.DataRate() }

func (d *Device) SetCompMode(m CompMode) error {
	return d.setField(fieldCompMode, uint8(m), m.Valid())
}

func (d *Device) CompMode() CompMode { return d.config.CompMode() }

func (d *Device) SetCompPolarity(p CompPolarity) error {
	return d.setField(fieldCompPolarity, uint8(p), p.Valid())
}

func (d *Device) CompPolarity() CompPolarity { return d.config.CompPolarity() }

func (d *Device) SetCompLatch(l CompLatch) error {
	return d.setField(fieldCompLatch, uint8(l), l.Valid())
}

func (d *Device) CompLatch() CompLatch { return d.config.CompLatch() }

func (d *Device) SetCompQueue(q CompQueue) error {
	return d.setField(fieldCompQueue, uint8(q), q.Valid())
}

func (d *Device) CompQueue() CompQueue { return d.config.CompQueue() }

// SetThresholds writes both comparator thresholds. In traditional mode the
// high threshold must not be below the low one.
func (d *Device) SetThresholds(lo, hi int16) error {
	if d.config.CompMode() == CompTraditional && hi < lo {
		return invalid("thresholds", fmt.Sprintf("hi %d < lo %d", hi, lo))
	}
	return d.writeThresholds(uint16(lo), uint16(hi))
}

// Thresholds returns the cached comparator thresholds.
func (d *Device) Thresholds() (lo, hi int16) {
	return int16(d.lowThresh), int16(d.hiThresh)
}

func (d *Device) SetLowThreshBit(bit int, set bool) error {
	if bit < 0 || bit > 15 {
		return invalid("low threshold bit", bit)
	}
	return d.writeLowThresh(setBit(d.lowThresh, bit, set))
}

func (d *Device) LowThreshBit(bit int) (bool, error) {
	if bit < 0 || bit > 15 {
		return false, invalid("low threshold bit", bit)
	}
	return d.lowThresh&(1<<bit) != 0, nil
}

func (d *Device) SetHighThreshBit(bit int, set bool) error {
	if bit < 0 || bit > 15 {
		return invalid("high threshold bit", bit)
	}
	return d.writeHighThresh(setBit(d.hiThresh, bit, set))
}

func (d *Device) HighThreshBit(bit int) (bool, error) {
	if bit < 0 || bit > 15 {
		return false, invalid("high threshold bit", bit)
	}
	return d.hiThresh&(1<<bit) != 0, nil
}

func setBit(w uint16, bit int, set bool) uint16 {
	if set {
		return w | 1<<bit
	}
	return w &^ (1 << bit)
}

// SetPinReadyMode turns ALERT/RDY into a conversion-ready signal asserted
// after every queue conversions. Disabling restores default thresholds and
// disables the comparator.
func (d *Device) SetPinReadyMode(active bool, queue CompQueue) error {
	if !active {
		if err := d.writeThresholds(DefaultLowThreshold, DefaultHighThreshold); err != nil {
			return err
		}
		return d.SetCompQueue(CompQueueDisable)
	}
	if !queue.Valid() || queue == CompQueueDisable {
		return invalid("ready pin queue", queue)
	}
	if err := d.writeThresholds(d.lowThresh&^0x8000, d.hiThresh|0x8000); err != nil {
		return err
	}
	return d.SetCompQueue(queue)
}

// PinReadyMode reports whether ALERT/RDY is configured as a conversion-ready signal.
func (d *Device) PinReadyMode() bool {
	return d.hiThresh&0x8000 != 0 && d.lowThresh&0x8000 == 0 &&
		d.config.CompQueue() != CompQueueDisable
}

// RegisterValue reads a register from the device and refreshes the cache.
func (d *Device) RegisterValue(reg uint8) (uint16, error) {
	if reg > RegHighThresh {
		return 0, invalid("register", reg)
	}
	v, err := d.tr.ReadRegister(reg)
	if err != nil {
		return 0, err
	}
	switch reg {
	case RegConfig:
		d.config = Config(v).with(fieldOS, 0)
	case RegLowThresh:
		d.lowThresh = v
	case RegHighThresh:
		d.hiThresh = v
	}
	return v, nil
}

// SetRegisterValue writes a raw word without field validation. The conversion
// register is read-only.
func (d *Device) SetRegisterValue(reg uint8, v uint16) error {
	if reg == RegConversion || reg > RegHighThresh {
		return invalid("register", reg)
	}
	if err := d.tr.WriteRegister(reg, v); err != nil {
		return err
	}
	switch reg {
	case RegConfig:
		c := Config(v)
		if c.Mux() != d.config.Mux() {
			d.ring.reset()
			d.settled = d.now().Add(MuxSettleDelay)
		}
		d.pending = c.OS() && c.Mode() == ModeSingleShot
		d.config = c.with(fieldOS, 0)
	case RegLowThresh:
		d.lowThresh = v
	case RegHighThresh:
		d.hiThresh = v
	}
	return nil
}

// ConfigString renders the cached configuration, one field per entry.
func (d *Device) ConfigString() string {
	lo, hi := d.Thresholds()
	return fmt.Sprintf("%s LO_THRESH=%d HI_THRESH=%d", d.config, lo, hi)
}
