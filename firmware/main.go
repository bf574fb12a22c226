//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"log"
	"machine"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/board"
	tgonewire "tinygo.org/x/drivers/onewire"
)

var uart = machine.UART0

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// Pressure inputs with highest resolution
	machine.InitADC()
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	var inputs []analog.Input
	for _, pin := range []machine.Pin{PIN_P0, PIN_P1, PIN_P2, PIN_P3} {
		adc := machine.ADC{Pin: pin}
		adc.Configure(adcConfig)
		inputs = append(inputs, adc)
	}

	ow := tgonewire.New(PIN_ONEWIRE)
	ow.Configure(tgonewire.Config{})

	// Diagnostics share the serial line; the host skips bytes that do not
	// start a frame.
	b := board.New(newBus(ow), analog.NewReader(inputs...), board.DefaultConfig(), board.Options{
		Logger: log.New(uart, "", 0),
	})
	for _, c := range b.Begin() {
		println(c.String())
	}

	for {
		for uart.Buffered() > 0 {
			data, err := uart.ReadByte()
			if err != nil {
				break
			}
			if err := b.HandleByte(data, uart); err != nil {
				println("command:", err.Error())
			}
		}

		if err := b.Step(time.Now(), uart); err != nil {
			println("sample:", err.Error())
		}

		// Small delay to prevent tight loop
		time.Sleep(100 * time.Microsecond)
	}
}
