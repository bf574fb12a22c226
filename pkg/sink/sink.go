// Package sink stores samples received during a run.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/itohio/goptprobe/pkg/ptprobe"
	"github.com/itohio/goptprobe/pkg/sample"
)

// Sink consumes run samples.
type Sink interface {
	Write(s ptprobe.Sample) error
	Close() error
}

var (
	_ Sink = (*CSV)(nil)
	_ Sink = (*List)(nil)
	_ Sink = Multi(nil)
)

// Open creates a CSV sink writing to path, or to stdout for "-". Stdout
// is left open when the sink is closed.
func Open(path string, stdout io.Writer) (*CSV, error) {
	if path == "" || path == "-" {
		return NewCSV(nopCloser{stdout}), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewCSV(f), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// List keeps samples in memory.
type List struct {
	mu      sync.RWMutex
	samples []ptprobe.Sample
}

// NewList creates an empty list sink.
func NewList() *List {
	return &List{}
}

func (l *List) Write(s ptprobe.Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, s)
	return nil
}

func (l *List) Close() error { return nil }

// Len returns the number of stored samples.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Samples returns a copy of the stored samples.
func (l *List) Samples() []ptprobe.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sample.DownsampleSamples(nil, l.samples, 0)
}

// Downsampled returns at most maxPoints evenly spaced samples.
func (l *List) Downsampled(dst []ptprobe.Sample, maxPoints int) []ptprobe.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sample.DownsampleSamples(dst, l.samples, maxPoints)
}

// Multi fans samples out to several sinks.
type Multi []Sink

func (m Multi) Write(s ptprobe.Sample) error {
	var errs []error
	for _, k := range m {
		if err := k.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, k := range m {
		if err := k.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
