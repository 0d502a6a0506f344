package ads

import (
	"fmt"
	"strings"
	"time"
)

// Register pointers.
const (
	RegConversion uint8 = 0x00
	RegConfig     uint8 = 0x01
	RegLowThresh  uint8 = 0x02
	RegHighThresh uint8 = 0x03
)

// Power-on register values.
const (
	DefaultConfig        Config = 0x8583
	DefaultLowThreshold  uint16 = 0x8000
	DefaultHighThreshold uint16 = 0x7FFF
)

// MuxSettleDelay is the time the input needs after a multiplexer change
// before a conversion can be trusted.
const MuxSettleDelay = 5 * time.Millisecond

// field locates one bitfield inside the configuration word.
type field struct {
	name  string
	shift uint
	width uint
}

var (
	fieldOS           = field{"os", 15, 1}
	fieldMux          = field{"mux", 12, 3}
	fieldGain         = field{"gain", 9, 3}
	fieldMode         = field{"mode", 8, 1}
	fieldRate         = field{"rate", 5, 3}
	fieldCompMode     = field{"comp_mode", 4, 1}
	fieldCompPolarity = field{"comp_polarity", 3, 1}
	fieldCompLatch    = field{"comp_latch", 2, 1}
	fieldCompQueue    = field{"comp_queue", 0, 2}
)

func (f field) mask() uint16 { return (1<<f.width - 1) << f.shift }

func (f field) get(w uint16) uint8 { return uint8((w & f.mask()) >> f.shift) }

func (f field) set(w uint16, v uint8) uint16 {
	return w&^f.mask() | uint16(v)<<f.shift&f.mask()
}

// Config is the 16-bit configuration register.
type Config uint16

func (c Config) OS() bool                   { return fieldOS.get(uint16(c)) == 1 }
func (c Config) Mux() Mux                   { return Mux(fieldMux.get(uint16(c))) }
func (c Config) Gain() Gain                 { return Gain(fieldGain.get(uint16(c))) }
func (c Config) Mode() Mode                 { return Mode(fieldMode.get(uint16(c))) }
func (c Config) DataRate() DataRate         { return DataRate(fieldRate.get(uint16(c))) }
func (c Config) CompMode() CompMode         { return CompMode(fieldCompMode.get(uint16(c))) }
func (c Config) CompPolarity() CompPolarity { return CompPolarity(fieldCompPolarity.get(uint16(c))) }
func (c Config) CompLatch() CompLatch       { return CompLatch(fieldCompLatch.get(uint16(c))) }
func (c Config) CompQueue() CompQueue       { return CompQueue(fieldCompQueue.get(uint16(c))) }

func (c Config) with(f field, v uint8) Config { return Config(f.set(uint16(c), v)) }

// Validate rejects reserved bit patterns.
func (c Config) Validate() error {
	if g := c.Gain(); !g.Valid() {
		return invalid("gain", uint8(g))
	}
	return nil
}

func (c Config) String() string {
	os := 0
	if c.OS() {
		os = 1
	}
	return fmt.Sprintf("0x%04X OS=%d MUX=%s PGA=%s MODE=%s DR=%s COMP_MODE=%s COMP_POL=%s COMP_LAT=%s COMP_QUE=%s",
		uint16(c), os, c.Mux(), c.Gain(), c.Mode(), c.DataRate(),
		c.CompMode(), c.CompPolarity(), c.CompLatch(), c.CompQueue())
}

// Mux selects the measured input pair.
type Mux uint8

const (
	MuxAIN0AIN1 Mux = iota // default
	MuxAIN0AIN3
	MuxAIN1AIN3
	MuxAIN2AIN3
	MuxAIN0GND
	MuxAIN1GND
	MuxAIN2GND
	MuxAIN3GND
)

var muxNames = []string{"AIN0_AIN1", "AIN0_AIN3", "AIN1_AIN3", "AIN2_AIN3", "AIN0_GND", "AIN1_GND", "AIN2_GND", "AIN3_GND"}

func (m Mux) Valid() bool    { return int(m) < len(muxNames) }
func (m Mux) String() string { return name(muxNames, uint8(m)) }
func ParseMux(s string) (Mux, error) {
	v, err := parseName("mux", muxNames, s)
	return Mux(v), err
}

// Gain selects the programmable gain amplifier full-scale range.
type Gain uint8

const (
	Gain6V144 Gain = iota
	Gain4V096
	Gain2V048 // default
	Gain1V024
	Gain0V512
	Gain0V256
)

var gainNames = []string{"6.144V", "4.096V", "2.048V", "1.024V", "0.512V", "0.256V"}

// bit weight in volts per code for each range
var gainLSB = [...]float32{0.0001875, 0.000125, 0.0000625, 0.00003125, 0.000015625, 0.0000078125}

var gainFullScale = [...]float32{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}

func (g Gain) Valid() bool    { return int(g) < len(gainNames) }
func (g Gain) String() string { return name(gainNames, uint8(g)) }

// LSB returns the bit weight in volts per code.
func (g Gain) LSB() float32 {
	if !g.Valid() {
		return 0
	}
	return gainLSB[g]
}

// FullScale returns the full-scale input range in volts.
func (g Gain) FullScale() float32 {
	if !g.Valid() {
		return 0
	}
	return gainFullScale[g]
}

func ParseGain(s string) (Gain, error) {
	v, err := parseName("gain", gainNames, s)
	return Gain(v), err
}

// Mode selects continuous or single-shot conversion.
type Mode uint8

const (
	ModeContinuous Mode = iota
	ModeSingleShot      // default
)

var modeNames = []string{"continuous", "single"}

func (m Mode) Valid() bool    { return int(m) < len(modeNames) }
func (m Mode) String() string { return name(modeNames, uint8(m)) }
func ParseMode(s string) (Mode, error) {
	v, err := parseName("mode", modeNames, s)
	return Mode(v), err
}

// DataRate selects the conversion rate.
type DataRate uint8

const (
	Rate8SPS DataRate = iota
	Rate16SPS
	Rate32SPS
	Rate64SPS
	Rate128SPS // default
	Rate250SPS
	Rate475SPS
	Rate860SPS
)

var rateNames = []string{"8SPS", "16SPS", "32SPS", "64SPS", "128SPS", "250SPS", "475SPS", "860SPS"}

var rateSPS = [...]int{8, 16, 32, 64, 128, 250, 475, 860}

func (r DataRate) Valid() bool    { return int(r) < len(rateNames) }
func (r DataRate) String() string { return name(rateNames, uint8(r)) }

// SPS returns samples per second.
func (r DataRate) SPS() int {
	if !r.Valid() {
		return 0
	}
	return rateSPS[r]
}

// Period returns the duration of one conversion.
func (r DataRate) Period() time.Duration {
	sps := r.SPS()
	if sps == 0 {
		return 0
	}
	return time.Second / time.Duration(sps)
}

// ParseDataRate accepts "128SPS" or "128".
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(strings.ToUpper(s), "SPS") {
		s += "SPS"
	}
	v, err := parseName("rate", rateNames, s)
	return DataRate(v), err
}

// CompMode selects the comparator mode.
type CompMode uint8

const (
	CompTraditional CompMode = iota // default
	CompWindow
)

var compModeNames = []string{"traditional", "window"}

func (c CompMode) Valid() bool    { return int(c) < len(compModeNames) }
func (c CompMode) String() string { return name(compModeNames, uint8(c)) }
func ParseCompMode(s string) (CompMode, error) {
	v, err := parseName("comp_mode", compModeNames, s)
	return CompMode(v), err
}

// CompPolarity selects the ALERT/RDY active level.
type CompPolarity uint8

const (
	CompActiveLow CompPolarity = iota // default
	CompActiveHigh
)

var compPolarityNames = []string{"active_low", "active_high"}

func (c CompPolarity) Valid() bool    { return int(c) < len(compPolarityNames) }
func (c CompPolarity) String() string { return name(compPolarityNames, uint8(c)) }
func ParseCompPolarity(s string) (CompPolarity, error) {
	v, err := parseName("comp_polarity", compPolarityNames, s)
	return CompPolarity(v), err
}

// CompLatch selects whether ALERT/RDY latches once asserted.
type CompLatch uint8

const (
	CompNonLatching CompLatch = iota // default
	CompLatching
)

var compLatchNames = []string{"non_latching", "latching"}

func (c CompLatch) Valid() bool    { return int(c) < len(compLatchNames) }
func (c CompLatch) String() string { return name(compLatchNames, uint8(c)) }
func ParseCompLatch(s string) (CompLatch, error) {
	v, err := parseName("comp_latch", compLatchNames, s)
	return CompLatch(v), err
}

// CompQueue selects after how many conversions ALERT/RDY asserts, or disables the comparator.
type CompQueue uint8

const (
	CompQueue1 CompQueue = iota
	CompQueue2
	CompQueue4
	CompQueueDisable // default
)

var compQueueNames = []string{"assert_1", "assert_2", "assert_4", "disable"}

func (c CompQueue) Valid() bool    { return int(c) < len(compQueueNames) }
func (c CompQueue) String() string { return name(compQueueNames, uint8(c)) }
func ParseCompQueue(s string) (CompQueue, error) {
	v, err := parseName("comp_queue", compQueueNames, s)
	return CompQueue(v), err
}

func name(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("reserved(%d)", v)
}

func parseName(kind string, names []string, s string) (uint8, error) {
	s = strings.TrimSpace(s)
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return uint8(i), nil
		}
	}
	return 0, invalid(kind, fmt.Sprintf("%q", s))
}
