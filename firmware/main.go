//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/itohio/goads/pkg/bridge"
	"github.com/itohio/goads/pkg/bus"
	"github.com/itohio/goads/pkg/bus/tinygobus"
)

var (
	uart = machine.UART0
	i2c  = machine.I2C0

	// Serial buffer for reading lines
	serialBuffer [LINE_BUFFER_SIZE]byte
	serialPos    int
	overflow     bool
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	PIN_READY.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	handler := &bridge.Handler{
		Open: func(addr bus.Addr) bus.Transport {
			return tinygobus.New(i2c, addr, tinygobus.WithInit(configureI2C))
		},
		Ready: PIN_READY.Get,
	}

	for {
		processSerial(handler)
		time.Sleep(100 * time.Microsecond)
	}
}

var i2cConfigured bool

// configureI2C runs once for all device addresses.
func configureI2C() error {
	if i2cConfigured {
		return nil
	}
	err := i2c.Configure(machine.I2CConfig{
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
		Frequency: I2C_FREQUENCY,
	})
	if err != nil {
		return err
	}
	i2cConfigured = true
	return nil
}

func processSerial(h *bridge.Handler) {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if overflow {
				respond("ERR line too long")
			} else if serialPos > 0 {
				respond(h.Handle(string(serialBuffer[:serialPos])))
			}
			serialPos = 0
			overflow = false
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			overflow = true
		}
	}
}

func respond(line string) {
	uart.Write([]byte(line))
	uart.Write([]byte{'\n'})
}
