package sample

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/itohio/goads/pkg/ads"
	"github.com/itohio/goads/pkg/config"
)

// Sample is one acquisition cycle as seen by the control loop.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       int16     `json:"raw"`
	Voltage   float32   `json:"voltage"`  // filtered input voltage (V)
	Physical  float32   `json:"physical"` // Voltage after conversion
	Filter    string    `json:"filter"`
	Fill      int       `json:"fill"`
	Frozen    bool      `json:"frozen"`
	Connected bool      `json:"connected"`
}

const minPoll = time.Millisecond

// Sampler owns a device and polls it from a single goroutine.
type Sampler struct {
	dev *ads.Device
	cfg config.SamplingConfig
	now func() time.Time
}

// NewSampler creates a sampler. The device must already be started.
func NewSampler(dev *ads.Device, cfg config.SamplingConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = config.Default().Sampling.Interval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.Default().Sampling.BufferSize
	}
	return &Sampler{dev: dev, cfg: cfg, now: time.Now}
}

// timeout bounds one measurement: two conversion periods plus input settling
// unless configured.
func (s *Sampler) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return 2*s.dev.DataRate().Period() + ads.MuxSettleDelay
}

// Measure acquires one conversion. In single-shot mode it starts the
// conversion first. It polls until the conversion is ready or the timeout
// expires.
func (s *Sampler) Measure(ctx context.Context) (int16, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	if s.dev.Mode() == ads.ModeSingleShot {
		if err := s.dev.StartSingleShot(); err != nil {
			return 0, fmt.Errorf("failed to start conversion: %w", err)
		}
	}

	poll := s.dev.DataRate().Period() / 4
	if poll < minPoll {
		poll = minPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ready, err := s.dev.ConversionReady()
		if err != nil {
			return 0, fmt.Errorf("failed to poll conversion: %w", err)
		}
		if ready {
			raw, err := s.dev.ReadConversion()
			if !errors.Is(err, ads.ErrNotReady) {
				return raw, err
			}
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("failed to measure: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Poll runs one acquisition cycle and builds a Sample from the device state.
func (s *Sampler) Poll(ctx context.Context) (Sample, error) {
	smp := Sample{
		Timestamp: s.now(),
		Filter:    s.dev.FilterStatus().String(),
	}

	raw, err := s.Measure(ctx)
	if err != nil {
		smp.Connected = s.dev.ConnectionStatus()
		smp.Fill = s.dev.BufferFill()
		smp.Frozen = s.dev.IsValueFrozen()
		return smp, err
	}

	smp.Raw = raw
	smp.Connected = true
	smp.Fill = s.dev.BufferFill()
	smp.Frozen = s.dev.IsValueFrozen()
	if smp.Voltage, err = s.dev.Voltage(); err != nil {
		return smp, err
	}
	if smp.Physical, err = s.dev.Physical(); err != nil {
		return smp, err
	}
	return smp, nil
}

// Run polls the device every interval until ctx is cancelled and closes the
// returned channel afterwards. Failed cycles are still emitted so consumers
// can see the device drop out.
func (s *Sampler) Run(ctx context.Context) <-chan Sample {
	out := make(chan Sample, s.cfg.BufferSize)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		connected, frozen := true, false
		for {
			smp, err := s.Poll(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("Failed to sample: %v", err)
			}
			if connected != smp.Connected {
				if smp.Connected {
					log.Printf("Device reconnected")
				} else {
					log.Printf("Device absent, samples are stale")
				}
				connected = smp.Connected
			}
			if smp.Frozen && !frozen {
				log.Printf("Conversion value frozen at %d", smp.Raw)
			}
			frozen = smp.Frozen

			select {
			case out <- smp:
			default:
				log.Printf("Sampler output channel full, dropping sample")
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
