package sample

import (
	"github.com/itohio/goptprobe/pkg/ptprobe"
	"github.com/itohio/goptprobe/pkg/sensor"
)

// NewAveraging creates a stage that averages each block of windowSize
// consecutive samples into one. A trailing partial block is averaged when
// the input closes.
func NewAveraging(windowSize int, bufSize int) Stage {
	if windowSize <= 1 {
		return nil
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan ptprobe.Sample) <-chan ptprobe.Sample {
		out := make(chan ptprobe.Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]ptprobe.Sample, 0, windowSize)
			for s := range in {
				buffer = append(buffer, s)
				if len(buffer) == windowSize {
					send(out, Average(buffer))
					buffer = buffer[:0]
				}
			}
			if len(buffer) > 0 {
				send(out, Average(buffer))
			}
		}()

		return out
	}
}

// Average combines samples slot by slot. Only usable values are averaged;
// a slot with none keeps the state of the most recent sample so its error
// code survives. Timestamps come from the most recent sample.
func Average(samples []ptprobe.Sample) ptprobe.Sample {
	if len(samples) == 0 {
		return ptprobe.Sample{}
	}

	last := samples[len(samples)-1]
	avg := ptprobe.Sample{
		Timestamp: last.Timestamp,
		Received:  last.Received,
	}
	for ch := range avg.T {
		avg.T[ch] = averageSlot(samples, last.T[ch], func(s *ptprobe.Sample) ptprobe.Value { return s.T[ch] })
		avg.P[ch] = averageSlot(samples, last.P[ch], func(s *ptprobe.Sample) ptprobe.Value { return s.P[ch] })
		avg.Tref[ch] = averageSlot(samples, last.Tref[ch], func(s *ptprobe.Sample) ptprobe.Value { return s.Tref[ch] })
	}
	return avg
}

func averageSlot(samples []ptprobe.Sample, last ptprobe.Value, slot func(*ptprobe.Sample) ptprobe.Value) ptprobe.Value {
	var sum float64
	n := 0
	for i := range samples {
		v := slot(&samples[i])
		if v.OK() {
			sum += float64(v.Value)
			n++
		}
	}
	if n == 0 {
		return last
	}
	return ptprobe.Value{
		Active: true,
		Value:  float32(sum / float64(n)),
		Code:   sensor.OK,
	}
}
