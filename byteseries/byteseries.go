// Copyright 2024 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Package byteseries implements ByteSeries, an append-only (time,
// cumulative-bytes) log used by the writer state tracker to compute
// throughput and ETA. It generalizes the teacher's dot-per-MiB progress
// accounting into a queryable time series.
package byteseries

import (
	"sort"
	"time"
)

// Sample is one (seconds-since-start, cumulative-bytes) observation.
type Sample struct {
	T     float64
	Bytes uint64
}

// Series is an append-only sequence of Samples keyed by a start Instant.
// The zero value is ready to use: the first sample is implicitly (0, 0).
type Series struct {
	start   time.Time
	samples []Sample
}

// New creates a Series whose t=0 origin is the given instant.
func New(start time.Time) *Series {
	return &Series{start: start}
}

// Start returns the series' t=0 origin.
func (s *Series) Start() time.Time {
	return s.start
}

// Elapsed converts a wall-clock instant to the series' t coordinate.
func (s *Series) Elapsed(now time.Time) float64 {
	return now.Sub(s.start).Seconds()
}

// Append adds a sample at the given wall-clock instant. Times must be
// non-decreasing; a sample at or before the previous one's t is still
// appended (monotonic non-decreasing, not strictly increasing) so that
// zero-duration checkpoints don't panic.
func (s *Series) Append(now time.Time, cumulativeBytes uint64) {
	t := s.Elapsed(now)
	if len(s.samples) > 0 && t < s.samples[len(s.samples)-1].T {
		t = s.samples[len(s.samples)-1].T
	}
	s.samples = append(s.samples, Sample{T: t, Bytes: cumulativeBytes})
}

// Samples returns the recorded samples, not including the implicit (0,0)
// origin.
func (s *Series) Samples() []Sample {
	return s.samples
}

// Last returns the most recent cumulative byte count, or 0 if no samples
// have been appended yet.
func (s *Series) Last() uint64 {
	if len(s.samples) == 0 {
		return 0
	}
	return s.samples[len(s.samples)-1].Bytes
}

// LastT returns the t coordinate of the most recent sample, or 0 if empty.
func (s *Series) LastT() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	return s.samples[len(s.samples)-1].T
}

// preceding returns the index of the last sample with T <= t, or -1 if t is
// before the first sample (i.e. within the implicit origin segment).
func (s *Series) preceding(t float64) int {
	// binary search for the rightmost sample with T <= t
	i := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].T > t
	})
	return i - 1
}

// Interp linearly interpolates the cumulative byte count at time t.
// interp(t<0) clamps to 0; interp(t>=last) returns the last cumulative
// value; interp between two samples (or between the origin and the first
// sample) is piecewise linear.
func (s *Series) Interp(t float64) float64 {
	if t < 0 {
		return 0
	}
	if len(s.samples) == 0 {
		return 0
	}
	if t >= s.samples[len(s.samples)-1].T {
		return float64(s.samples[len(s.samples)-1].Bytes)
	}

	idx := s.preceding(t)
	var t0, t1 float64
	var b0, b1 float64
	if idx < 0 {
		t0, b0 = 0, 0
	} else {
		t0, b0 = s.samples[idx].T, float64(s.samples[idx].Bytes)
	}
	t1, b1 = s.samples[idx+1].T, float64(s.samples[idx+1].Bytes)

	if t1 == t0 {
		return b1
	}
	frac := (t - t0) / (t1 - t0)
	return b0 + frac*(b1-b0)
}

// WindowedSpeed returns the average bytes/sec over the trailing window of
// duration w ending at t: (interp(t) - interp(t-w)) / w.
func (s *Series) WindowedSpeed(t, w float64) float64 {
	if w <= 0 {
		return 0
	}
	return (s.Interp(t) - s.Interp(t-w)) / w
}

// AverageSpeed returns the total average speed from the series' origin to
// its last sample.
func (s *Series) AverageSpeed() float64 {
	last := s.LastT()
	if last <= 0 {
		return 0
	}
	return float64(s.Last()) / last
}

// ETA estimates the remaining duration to reach targetBytes, based on the
// windowed speed over the trailing `window` seconds ending at the series'
// last sample. Returns false if the speed is non-positive (stalled or
// going backwards) or the target is already reached.
func (s *Series) ETA(targetBytes uint64, window float64) (time.Duration, bool) {
	last := s.Last()
	if last >= targetBytes {
		return 0, false
	}
	t := s.LastT()
	speed := s.WindowedSpeed(t, window)
	if speed <= 0 || window > t {
		// Fall back to the lifetime average if the windowed speed is
		// degenerate (e.g. fewer samples than the window covers).
		speed = s.AverageSpeed()
	}
	if speed <= 0 {
		return 0, false
	}
	remaining := float64(targetBytes - last)
	seconds := remaining / speed
	return time.Duration(seconds * float64(time.Second)), true
}
