// Package sample post-processes probe samples on the host: channel-based
// stages for averaging and decimation, and slice downsampling for display.
package sample

import (
	"log"
	"time"

	"github.com/itohio/goptprobe/pkg/ptprobe"
)

// DefaultBufferSize is the output buffer of each stage.
const DefaultBufferSize = 100

// Stage transforms a stream of samples. The output channel is closed after
// the input channel is closed and drained.
type Stage func(in <-chan ptprobe.Sample) <-chan ptprobe.Sample

// Chain connects stages in order. With no stages it passes samples through.
func Chain(stages ...Stage) Stage {
	return func(in <-chan ptprobe.Sample) <-chan ptprobe.Sample {
		out := in
		for _, s := range stages {
			if s != nil {
				out = s(out)
			}
		}
		return out
	}
}

// NewDecimator keeps every nth sample, starting with the first.
func NewDecimator(n int, bufSize int) Stage {
	if n <= 1 {
		return nil
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan ptprobe.Sample) <-chan ptprobe.Sample {
		out := make(chan ptprobe.Sample, bufSize)

		go func() {
			defer close(out)

			i := 0
			for s := range in {
				if i%n == 0 {
					send(out, s)
				}
				i++
			}
		}()

		return out
	}
}

// send forwards a sample, dropping it if the consumer stalls.
func send(out chan<- ptprobe.Sample, s ptprobe.Sample) {
	select {
	case out <- s:
	case <-time.After(time.Second):
		log.Printf("Sample stage output channel full, dropping sample")
	}
}
