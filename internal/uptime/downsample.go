package uptime

import (
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// parallelThreshold is the slice length above which failed samples are zeroed in parallel
const parallelThreshold = 4096

// Downsample keeps every failed sample and every factor-th successful sample, then
// returns the result sorted by timestamp ascending with failure response times zeroed.
// A trailing group of fewer than factor successes is dropped.
func Downsample(samples []Sample, factor int) []Sample {
	if factor < 1 {
		factor = 1
	}

	failures := make([]Sample, 0)
	successes := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Success {
			successes = append(successes, s)
		} else {
			failures = append(failures, s)
		}
	}

	keep := len(successes) / factor
	result := make([]Sample, 0, len(failures)+keep)
	result = append(result, failures...)
	for i := 0; i < keep; i++ {
		result = append(result, successes[i*factor])
	}

	slices.SortStableFunc(result, func(a, b Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	ZeroFailedResponseTimes(result)
	return result
}

// Factor returns the smallest downsample factor that keeps at most maxPoints of the
// given number of successful samples. maxPoints <= 0 disables downsampling.
func Factor(successes, maxPoints int) int {
	if maxPoints <= 0 || successes <= maxPoints {
		return 1
	}
	return (successes + maxPoints - 1) / maxPoints
}

// ZeroFailedResponseTimes sets the response time of every failed sample to zero in place.
// Large slices are split into chunks handled concurrently; chunks never overlap.
func ZeroFailedResponseTimes(samples []Sample) {
	if len(samples) < parallelThreshold {
		zeroFailed(samples)
		return
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(samples) + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < len(samples); start += chunk {
		part := samples[start:min(start+chunk, len(samples))]
		g.Go(func() error {
			zeroFailed(part)
			return nil
		})
	}
	_ = g.Wait()
}

func zeroFailed(samples []Sample) {
	for i := range samples {
		if !samples[i].Success {
			samples[i].ResponseTime = 0
		}
	}
}
