package sample

import (
	"log"
	"time"
)

// Stage transforms a sample stream.
type Stage func(in <-chan Sample) <-chan Sample

// NewAveragingStage emits the mean of every windowSize connected samples.
// Disconnected samples pass through immediately and restart the window.
func NewAveragingStage(windowSize int, bufSize int) Stage {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Sample, 0, windowSize)
			for smp := range in {
				if !smp.Connected {
					buffer = buffer[:0]
					send(out, smp)
					continue
				}

				buffer = append(buffer, smp)
				if len(buffer) < windowSize {
					continue
				}
				send(out, averageSamples(buffer))
				buffer = buffer[:0]
			}

			if len(buffer) > 0 {
				send(out, averageSamples(buffer))
			}
		}()

		return out
	}
}

func send(out chan<- Sample, smp Sample) {
	select {
	case out <- smp:
	case <-time.After(time.Second):
		log.Printf("Averaging stage output channel full, dropping sample")
	}
}

// averageSamples averages voltage and physical value. Everything else comes
// from the most recent sample.
func averageSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumVoltage, sumPhysical float32
	for _, s := range samples {
		sumVoltage += s.Voltage
		sumPhysical += s.Physical
	}

	avg := samples[len(samples)-1]
	n := float32(len(samples))
	avg.Voltage = sumVoltage / n
	avg.Physical = sumPhysical / n
	return avg
}
