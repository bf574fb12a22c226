package ptprobe

import (
	"time"

	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/packet"
	"github.com/itohio/goptprobe/pkg/sensor"
)

// Value is one channel slot of a sample.
type Value struct {
	Active bool
	Value  float32
	Code   sensor.Code // non-zero when the slot carries an error
}

// OK reports whether the slot holds a usable value.
func (v Value) OK() bool {
	return v.Active && v.Code == sensor.OK
}

// Sample is a decoded DATA frame.
type Sample struct {
	Timestamp time.Duration // board uptime
	Received  time.Time
	T         [channel.NumChannels]Value
	P         [channel.NumChannels]Value
	Tref      [channel.NumChannels]Value
}

// NewSample converts a decoded DATA frame.
func NewSample(d packet.Data, received time.Time) Sample {
	return Sample{
		Timestamp: time.Duration(d.Timestamp) * time.Millisecond,
		Received:  received,
		T:         values(d.T),
		P:         values(d.P),
		Tref:      values(d.Tref),
	}
}

func values(g packet.Group) [channel.NumChannels]Value {
	var v [channel.NumChannels]Value
	for ch := range v {
		if !g.Active(ch) {
			continue
		}
		v[ch].Active = true
		if g.Err(ch) {
			v[ch].Code = sensor.Code(g.Codes[ch])
		} else {
			v[ch].Value = g.Values[ch]
		}
	}
	return v
}
