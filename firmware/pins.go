//go:build tinygo

package main

import "machine"

const (
	// Request lines are at most "W 48 01 8583" plus slack
	LINE_BUFFER_SIZE = 32

	// I2C configuration
	PIN_SDA       = machine.SDA_PIN
	PIN_SCL       = machine.SCL_PIN
	I2C_FREQUENCY = machine.TWI_FREQ_400KHZ

	// ALERT/RDY input from the converter, open drain
	PIN_READY = machine.D7

	// Serial configuration
	// A register read is "R 48 00\n" (8 bytes) answered by "OK 1234\n" (8 bytes).
	// At 860 SPS that is ~14 kB/s in both directions; 115200 baud carries 11.5 kB/s,
	// so the host polls in bursts and relies on the ready pin at the highest rates.
	UART_BAUD_RATE = 115200
)
