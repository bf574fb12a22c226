package sample

import "github.com/itohio/goptprobe/pkg/ptprobe"

// DownsampleSamples picks at most maxPoints evenly spaced samples into dst,
// reusing its capacity. The first and the most recent sample are always
// kept. A non-positive maxPoints copies everything.
func DownsampleSamples(dst []ptprobe.Sample, samples []ptprobe.Sample, maxPoints int) []ptprobe.Sample {
	n := len(samples)
	if maxPoints <= 0 || n <= maxPoints {
		maxPoints = n
	}
	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]ptprobe.Sample, 0, maxPoints)
	}

	switch {
	case maxPoints == 0:
		return dst
	case maxPoints == n:
		return append(dst, samples...)
	case maxPoints == 1:
		return append(dst, samples[n-1])
	}

	for i := range maxPoints {
		dst = append(dst, samples[i*(n-1)/(maxPoints-1)])
	}
	return dst
}
