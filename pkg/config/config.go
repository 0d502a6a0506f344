package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/goads/pkg/ads"
)

// Config represents the application configuration.
type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	ADC        ADCConfig        `yaml:"adc"`
	Conversion ConversionConfig `yaml:"conversion"`
	Sampling   SamplingConfig   `yaml:"sampling"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Mock       MockConfig       `yaml:"mock"`
}

// Bus kinds.
const (
	BusI2CDev = "i2cdev"
	BusPeriph = "periph"
	BusSerial = "serial"
	BusMock   = "mock"
)

// BusConfig selects the transport.
type BusConfig struct {
	Kind     string `yaml:"kind"`      // i2cdev, periph, serial or mock
	Device   string `yaml:"device"`    // i2c-dev path or periph bus name
	Port     string `yaml:"port"`      // bridge serial port
	BaudRate int    `yaml:"baud_rate"` // bridge baud rate
	Address  uint8  `yaml:"address"`
}

// ADCConfig contains device settings applied once at startup.
type ADCConfig struct {
	Mux         string `yaml:"mux"`
	Gain        string `yaml:"gain"`
	DataRate    string `yaml:"data_rate"`
	Mode        string `yaml:"mode"`
	Filter      string `yaml:"filter"`       // none, average or savgol
	SavGolOrder int    `yaml:"savgol_order"` // polynomial order for savgol
	ReadyPin    bool   `yaml:"ready_pin"`    // use ALERT/RDY as conversion-ready signal
	ReadyQueue  string `yaml:"ready_queue"`
}

// ConversionConfig describes the voltage to physical value mapping.
type ConversionConfig struct {
	Kind         string     `yaml:"kind"`         // linear, quadratic or table
	Coefficients []float32  `yaml:"coefficients"` // a0, a1[, a2]
	Table        []TableRow `yaml:"table"`
	Unit         string     `yaml:"unit"`
}

// TableRow is one lookup table row.
type TableRow struct {
	Voltage float32 `yaml:"voltage"`
	Value   float32 `yaml:"value"`
}

// SamplingConfig contains control loop parameters.
type SamplingConfig struct {
	Interval   time.Duration `yaml:"interval"`    // poll period
	Timeout    time.Duration `yaml:"timeout"`     // single-shot completion limit
	BufferSize int           `yaml:"buffer_size"` // output channel capacity
}

// TelemetryConfig contains MQTT publishing parameters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MockConfig contains simulated input parameters.
type MockConfig struct {
	Bias       float32       `yaml:"bias"`        // Bias voltage (V)
	Amplitude  float32       `yaml:"amplitude"`   // Sine amplitude (V)
	Period     time.Duration `yaml:"period"`      // Sine period
	NoiseLevel float32       `yaml:"noise_level"` // Noise level (V)
	BusyPolls  int           `yaml:"busy_polls"`  // status reads before a single shot completes
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Kind:     BusI2CDev,
			Device:   "/dev/i2c-1",
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
			Address:  0x48,
		},
		ADC: ADCConfig{
			Mux:         ads.MuxAIN0GND.String(),
			Gain:        ads.Gain4V096.String(),
			DataRate:    ads.Rate128SPS.String(),
			Mode:        ads.ModeSingleShot.String(),
			Filter:      ads.FilterMovingAverage.String(),
			SavGolOrder: ads.DefaultSavGolOrder,
			ReadyQueue:  ads.CompQueue1.String(),
		},
		Conversion: ConversionConfig{
			Kind:         ads.ConvLinear.String(),
			Coefficients: []float32{0, 1},
			Unit:         "V",
		},
		Sampling: SamplingConfig{
			Interval:   100 * time.Millisecond,
			Timeout:    200 * time.Millisecond,
			BufferSize: 100,
		},
		Telemetry: TelemetryConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "adsmon",
			Topic:    "ads111x/sample",
		},
		Mock: MockConfig{
			Bias:       1.0,
			Amplitude:  0.5,
			Period:     10 * time.Second,
			NoiseLevel: 0.001,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Bus.Kind == "" {
		c.Bus.Kind = def.Bus.Kind
	}
	if c.Bus.Device == "" {
		c.Bus.Device = def.Bus.Device
	}
	if c.Bus.Port == "" {
		c.Bus.Port = def.Bus.Port
	}
	if c.Bus.BaudRate == 0 {
		c.Bus.BaudRate = def.Bus.BaudRate
	}
	if c.Bus.Address == 0 {
		c.Bus.Address = def.Bus.Address
	}

	if c.ADC.Mux == "" {
		c.ADC.Mux = def.ADC.Mux
	}
	if c.ADC.Gain == "" {
		c.ADC.Gain = def.ADC.Gain
	}
	if c.ADC.DataRate == "" {
		c.ADC.DataRate = def.ADC.DataRate
	}
	if c.ADC.Mode == "" {
		c.ADC.Mode = def.ADC.Mode
	}
	if c.ADC.Filter == "" {
		c.ADC.Filter = def.ADC.Filter
	}
	if c.ADC.SavGolOrder == 0 {
		c.ADC.SavGolOrder = def.ADC.SavGolOrder
	}
	if c.ADC.ReadyQueue == "" {
		c.ADC.ReadyQueue = def.ADC.ReadyQueue
	}

	if c.Conversion.Kind == "" {
		c.Conversion.Kind = def.Conversion.Kind
	}
	if len(c.Conversion.Coefficients) == 0 && len(c.Conversion.Table) == 0 {
		c.Conversion.Coefficients = def.Conversion.Coefficients
	}

	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = def.Sampling.Interval
	}
	if c.Sampling.Timeout == 0 {
		c.Sampling.Timeout = def.Sampling.Timeout
	}
	if c.Sampling.BufferSize == 0 {
		c.Sampling.BufferSize = def.Sampling.BufferSize
	}

	if c.Telemetry.Broker == "" {
		c.Telemetry.Broker = def.Telemetry.Broker
	}
	if c.Telemetry.ClientID == "" {
		c.Telemetry.ClientID = def.Telemetry.ClientID
	}
	if c.Telemetry.Topic == "" {
		c.Telemetry.Topic = def.Telemetry.Topic
	}

	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
}

// Apply validates every setting first and then writes them to the device.
// An invalid setting leaves the device untouched.
func (a *ADCConfig) Apply(d *ads.Device) error {
	mux, err := ads.ParseMux(a.Mux)
	if err != nil {
		return err
	}
	gain, err := ads.ParseGain(a.Gain)
	if err != nil {
		return err
	}
	rate, err := ads.ParseDataRate(a.DataRate)
	if err != nil {
		return err
	}
	mode, err := ads.ParseMode(a.Mode)
	if err != nil {
		return err
	}
	filter, err := ads.ParseFilter(a.Filter)
	if err != nil {
		return err
	}
	queue, err := ads.ParseCompQueue(a.ReadyQueue)
	if err != nil {
		return err
	}
	if a.ReadyPin && queue == ads.CompQueueDisable {
		return fmt.Errorf("%w: ready pin needs an enabled comparator queue, got %s", ads.ErrInvalidField, queue)
	}
	if filter == ads.FilterSavitzkyGolay && (a.SavGolOrder < 1 || a.SavGolOrder > ads.MaxSavGolOrder) {
		return fmt.Errorf("%w: savgol order %d", ads.ErrInvalidField, a.SavGolOrder)
	}

	if err := d.SetMux(mux); err != nil {
		return fmt.Errorf("failed to set mux: %w", err)
	}
	if err := d.SetGain(gain); err != nil {
		return fmt.Errorf("failed to set gain: %w", err)
	}
	if err := d.SetDataRate(rate); err != nil {
		return fmt.Errorf("failed to set data rate: %w", err)
	}
	if err := d.SetMode(mode); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if a.ReadyPin {
		if err := d.SetPinReadyMode(true, queue); err != nil {
			return fmt.Errorf("failed to enable ready pin: %w", err)
		}
	}
	if filter == ads.FilterSavitzkyGolay {
		if err := d.SetSavGolOrder(a.SavGolOrder); err != nil {
			return err
		}
	}
	if filter == ads.FilterNone {
		d.DeactivateFilter()
		return nil
	}
	return d.ActivateFilter(filter)
}

// Build returns the configured conversion.
func (c *ConversionConfig) Build() (ads.Conversion, error) {
	kind, err := ads.ParseConversionKind(c.Kind)
	if err != nil {
		return ads.Conversion{}, err
	}
	coef := func(i int) float32 {
		if i < len(c.Coefficients) {
			return c.Coefficients[i]
		}
		return 0
	}

	switch kind {
	case ads.ConvLinear:
		if len(c.Coefficients) > 2 {
			return ads.Conversion{}, fmt.Errorf("%w: linear takes 2 coefficients, got %d", ads.ErrInvalidField, len(c.Coefficients))
		}
		return ads.Linear(coef(1), coef(0)), nil
	case ads.ConvQuadratic:
		if len(c.Coefficients) > 3 {
			return ads.Conversion{}, fmt.Errorf("%w: quadratic takes 3 coefficients, got %d", ads.ErrInvalidField, len(c.Coefficients))
		}
		return ads.Quadratic(coef(2), coef(1), coef(0)), nil
	default:
		points := make([]ads.TablePoint, len(c.Table))
		for i, r := range c.Table {
			points[i] = ads.TablePoint{Voltage: r.Voltage, Value: r.Value}
		}
		return ads.Table(points)
	}
}

// Transport returns the bus kind normalized to lower case.
func (b *BusConfig) Transport() string {
	return strings.ToLower(strings.TrimSpace(b.Kind))
}

// Signal returns the simulated input described by the mock section.
func (m *MockConfig) Signal() ads.Signal {
	return ads.SineSignal(m.Bias, m.Amplitude, m.Period, m.NoiseLevel)
}
