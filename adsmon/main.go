package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/itohio/goads/pkg/ads"
	"github.com/itohio/goads/pkg/bus"
	"github.com/itohio/goads/pkg/bus/i2cdev"
	"github.com/itohio/goads/pkg/bus/periphbus"
	"github.com/itohio/goads/pkg/bus/serialbus"
	"github.com/itohio/goads/pkg/config"
	"github.com/itohio/goads/pkg/console"
	"github.com/itohio/goads/pkg/sample"
	"github.com/itohio/goads/pkg/telemetry"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		busFlag     = flag.String("bus", "", "Bus kind override (i2cdev, periph, serial, mock)")
		portFlag    = flag.String("p", "", "Bridge serial port override (e.g., COM3 or /dev/ttyACM0)")
		deviceFlag  = flag.String("d", "", "I2C device override (e.g., /dev/i2c-1 or periph bus name)")
		mockFlag    = flag.Bool("mock", false, "Use simulated device instead of hardware")
		consoleFlag = flag.Bool("console", false, "Run interactive register console instead of sampling")
		averageFlag = flag.Int("average", 1, "Number of samples averaged per published sample")
		listFlag    = flag.Bool("list-ports", false, "List serial ports and exit")
		saveFlag    = flag.Bool("save-config", false, "Write the effective configuration and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := serialbus.Ports()
		if err != nil {
			log.Fatalf("%v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *busFlag != "" {
		cfg.Bus.Kind = *busFlag
	}
	if *mockFlag {
		cfg.Bus.Kind = config.BusMock
	}
	if *portFlag != "" {
		cfg.Bus.Port = *portFlag
	}
	if *deviceFlag != "" {
		cfg.Bus.Device = *deviceFlag
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		return
	}

	dev, err := openDevice(cfg)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	log.Printf("Device ready: %s", dev.ConfigString())

	if *consoleFlag {
		err := console.New(dev, os.Stdout).Run(os.Stdin)
		if err = multierr.Append(err, dev.Stop()); err != nil {
			log.Fatalf("Console failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, dev, *averageFlag); err != nil {
		log.Fatalf("%v", err)
	}
}

// newTransport selects the bus implementation named in the configuration.
func newTransport(cfg *config.Config) (bus.Transport, error) {
	addr := bus.Addr(cfg.Bus.Address)
	if !addr.Valid() {
		return nil, fmt.Errorf("%w: address 0x%02X", ads.ErrInvalidField, cfg.Bus.Address)
	}

	switch cfg.Bus.Transport() {
	case config.BusMock:
		m := ads.NewMock(cfg.Mock.Signal())
		m.SetBusyPolls(cfg.Mock.BusyPolls)
		return m, nil
	case config.BusI2CDev:
		return i2cdev.New(cfg.Bus.Device, addr), nil
	case config.BusPeriph:
		return periphbus.Open(cfg.Bus.Device, addr), nil
	case config.BusSerial:
		return serialbus.New(cfg.Bus.Port, cfg.Bus.BaudRate, addr), nil
	}
	return nil, fmt.Errorf("unknown bus kind %q", cfg.Bus.Kind)
}

// openDevice starts the device and applies the configured settings.
func openDevice(cfg *config.Config) (*ads.Device, error) {
	tr, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	var opts []ads.Option
	if sb, ok := tr.(*serialbus.Transport); ok && cfg.ADC.ReadyPin {
		opts = append(opts, ads.WithReadyPin(sb.ReadyPin()))
	}
	dev := ads.New(tr, opts...)

	if err := dev.Begin(); err != nil {
		return nil, multierr.Append(err, tr.Stop())
	}
	if err := cfg.ADC.Apply(dev); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to apply adc settings: %w", err), dev.Stop())
	}
	conv, err := cfg.Conversion.Build()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to build conversion: %w", err), dev.Stop())
	}
	if err := dev.SetConversion(conv); err != nil {
		return nil, multierr.Append(err, dev.Stop())
	}
	return dev, nil
}

// run samples until ctx is cancelled, logging or publishing every sample.
func run(ctx context.Context, cfg *config.Config, dev *ads.Device, average int) error {
	var pub *telemetry.Publisher
	if cfg.Telemetry.Enabled {
		pub = telemetry.New(cfg.Telemetry)
		if err := pub.Connect(); err != nil {
			return multierr.Append(err, dev.Stop())
		}
	}
	return serve(ctx, cfg, dev, average, pub)
}

// serve owns dev until the sampler has exited, then stops it. pub may be nil.
func serve(ctx context.Context, cfg *config.Config, dev *ads.Device, average int, pub *telemetry.Publisher) (err error) {
	defer func() {
		if pub != nil {
			err = multierr.Append(err, pub.Close())
		}
		err = multierr.Append(err, dev.Stop())
	}()

	samples := sample.NewSampler(dev, cfg.Sampling).Run(ctx)
	samples = sample.NewAveragingStage(average, cfg.Sampling.BufferSize)(samples)

	if pub != nil {
		pub.Run(ctx, samples)
		// the sampler may still be polling dev
		for range samples {
		}
		return nil
	}
	for s := range samples {
		log.Printf("raw=%d voltage=%.6fV physical=%.6f%s fill=%d frozen=%t connected=%t",
			s.Raw, s.Voltage, s.Physical, cfg.Conversion.Unit, s.Fill, s.Frozen, s.Connected)
	}
	return nil
}
