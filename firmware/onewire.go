//go:build tinygo

package main

import (
	"github.com/itohio/goptprobe/pkg/onewire"
	tgonewire "tinygo.org/x/drivers/onewire"
)

// ROM commands not covered by the driver's own sequencing.
const (
	romMatch  = 0x55
	romSkip   = 0xCC
	romSearch = 0xF0
)

// bus adapts the TinyGo bit-banged driver to onewire.Bus. The driver
// enumerates the whole bus at once, so Search replays that list.
type bus struct {
	dev   tgonewire.Device
	found [][]uint8
	next  int
	done  bool
}

var _ onewire.Bus = (*bus)(nil)

func newBus(dev tgonewire.Device) *bus {
	return &bus{dev: dev}
}

func (b *bus) Reset() bool {
	return b.dev.Reset() == nil
}

func (b *bus) Search(addr *onewire.Address) bool {
	if !b.done {
		found, err := b.dev.Search(romSearch)
		if err != nil {
			found = nil
		}
		b.found = found
		b.next = 0
		b.done = true
	}
	for b.next < len(b.found) {
		rom := b.found[b.next]
		b.next++
		if len(rom) != onewire.AddressLen {
			continue
		}
		copy(addr[:], rom)
		return true
	}
	return false
}

func (b *bus) ResetSearch() {
	b.found = nil
	b.next = 0
	b.done = false
}

func (b *bus) Select(addr onewire.Address) {
	b.dev.Write(romMatch)
	for _, v := range addr {
		b.dev.Write(v)
	}
}

func (b *bus) Skip() {
	b.dev.Write(romSkip)
}

func (b *bus) Write(v byte) {
	b.dev.Write(v)
}

func (b *bus) ReadBytes(buf []byte) {
	for i := range buf {
		buf[i] = b.dev.Read()
	}
}

func (b *bus) ReadBit() bool {
	return b.dev.ReadBit() != 0
}
