//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Single-wire bus with the MAX31850 thermocouple converters
	PIN_ONEWIRE = machine.D7

	// Pressure transducer inputs, in channel order
	PIN_P0 = machine.A0
	PIN_P1 = machine.A1
	PIN_P2 = machine.A2
	PIN_P3 = machine.A3

	// Serial configuration
	// A DATA frame is 56 bytes; 10 frames/sec * 56 bytes = 560 bytes/sec.
	// 115200 8N1 carries 11,520 bytes/sec, leaving room for queries.
	UART_BAUD_RATE = 115200
)
