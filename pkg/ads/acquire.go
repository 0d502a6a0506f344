package ads

import (
	"errors"
	"fmt"
)

// waitSettled blocks until the input has settled after a multiplexer change.
func (d *Device) waitSettled() {
	if wait := d.settled.Sub(d.now()); wait > 0 {
		d.sleep(wait)
	}
}

// StartSingleShot starts one conversion. It is only meaningful in
// single-shot mode.
func (d *Device) StartSingleShot() error {
	if d.config.Mode() != ModeSingleShot {
		return fmt.Errorf("%w: single-shot start in %s mode", ErrInvalidField, d.config.Mode())
	}
	d.waitSettled()
	if err := d.tr.WriteRegister(RegConfig, uint16(d.config.with(fieldOS, 1))); err != nil {
		return err
	}
	d.pending = true
	return nil
}

// OpStatus reads the operational status bit. True means no conversion is in progress.
func (d *Device) OpStatus() (bool, error) {
	v, err := d.tr.ReadRegister(RegConfig)
	if err != nil {
		return false, err
	}
	return Config(v).OS(), nil
}

func (d *Device) pinAsserted() bool {
	level := d.readyPin.Get()
	if d.config.CompPolarity() == CompActiveHigh {
		return level
	}
	return !level
}

// ConversionReady reports whether a completed conversion can be read.
func (d *Device) ConversionReady() (bool, error) {
	if d.config.Mode() == ModeSingleShot {
		if !d.pending {
			return false, nil
		}
		if d.readyPin != nil && d.PinReadyMode() {
			return d.pinAsserted(), nil
		}
		return d.OpStatus()
	}
	if d.now().Before(d.settled) {
		return false, nil
	}
	if d.readyPin != nil && d.PinReadyMode() {
		return d.pinAsserted(), nil
	}
	return d.now().Sub(d.lastRead) >= d.config.DataRate().Period(), nil
}

// ReadConversion reads the conversion register and appends the code to the ring.
// In single-shot mode it returns ErrNotReady when no conversion was started or
// the started one is still in progress.
func (d *Device) ReadConversion() (int16, error) {
	if d.config.Mode() == ModeSingleShot {
		if !d.pending {
			return 0, ErrNotReady
		}
		done, err := d.OpStatus()
		if err != nil {
			return 0, err
		}
		if !done {
			return 0, ErrNotReady
		}
	}
	if d.config.Mode() == ModeContinuous {
		d.waitSettled()
	}
	v, err := d.tr.ReadRegister(RegConversion)
	if err != nil {
		return 0, err
	}
	raw := int16(v)
	d.ring.push(raw)
	d.pending = false
	d.lastRead = d.now()
	return raw, nil
}

// Latest returns the newest buffered code.
func (d *Device) Latest() (int16, error) {
	if d.ring.len() == 0 {
		return 0, ErrNotReady
	}
	return d.ring.latest(), nil
}

// Buffer returns a copy of the buffered codes, oldest first.
func (d *Device) Buffer() []int16 {
	return d.ring.samples(make([]int16, 0, BufferSize))
}

// BufferFill returns the number of buffered codes.
func (d *Device) BufferFill() int { return d.ring.len() }

// BufferCap returns the ring capacity.
func (d *Device) BufferCap() int { return BufferSize }

// IsValueFrozen reports whether the ring is full and every code is identical,
// which indicates a stuck input.
func (d *Device) IsValueFrozen() bool {
	return d.ring.constant()
}

// Probe checks that the device acknowledges its address.
func (d *Device) Probe() error {
	if err := d.tr.Probe(); err != nil {
		d.connected = false
		return fmt.Errorf("%w: %w", ErrDeviceAbsent, err)
	}
	d.connected = true
	return nil
}

// ConnectionStatus probes the device and reports whether it answered.
func (d *Device) ConnectionStatus() bool {
	return d.Probe() == nil
}

// Connected returns the result of the most recent probe without touching the bus.
func (d *Device) Connected() bool { return d.connected }

// IsAbsent reports whether err came from a failed probe.
func IsAbsent(err error) bool { return errors.Is(err, ErrDeviceAbsent) }
