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

package byteseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// S6 from spec.md: samples {(0.1,10),(0.2,20),(0.5,30),(1.0,40),(1.5,80),(2.0,100)}
func TestInterpS6(t *testing.T) {
	start := time.Now()
	s := New(start)
	for _, samp := range []Sample{
		{0.1, 10}, {0.2, 20}, {0.5, 30}, {1.0, 40}, {1.5, 80}, {2.0, 100},
	} {
		s.Append(start.Add(time.Duration(samp.T*float64(time.Second))), samp.Bytes)
	}

	assert.InDelta(t, 35.0, s.Interp(0.75), 0.001)
	assert.InDelta(t, 0.0, s.Interp(-10), 0.001)
	assert.InDelta(t, 100.0, s.Interp(3.0), 0.001)
}

func TestInterpEmpty(t *testing.T) {
	s := New(time.Now())
	assert.Equal(t, 0.0, s.Interp(5))
	assert.Equal(t, 0.0, s.Interp(-5))
}

func TestInterpBeforeFirstSample(t *testing.T) {
	start := time.Now()
	s := New(start)
	s.Append(start.Add(2*time.Second), 200)

	// t=1 is between the implicit (0,0) origin and the first sample (2,200)
	assert.InDelta(t, 100.0, s.Interp(1), 0.001)
}

func TestMonotonicAppendClampsBackwardsTime(t *testing.T) {
	start := time.Now()
	s := New(start)
	s.Append(start.Add(2*time.Second), 100)
	// A checkpoint arriving with an earlier (or equal) timestamp must not
	// regress the series' t coordinate.
	s.Append(start.Add(1*time.Second), 150)

	samples := s.Samples()
	assert.Len(t, samples, 2)
	assert.GreaterOrEqual(t, samples[1].T, samples[0].T)
	assert.Equal(t, uint64(150), s.Last())
}

func TestWindowedSpeedAndAverage(t *testing.T) {
	start := time.Now()
	s := New(start)
	s.Append(start.Add(1*time.Second), 100)
	s.Append(start.Add(2*time.Second), 300)

	// average over [1,2] window ending at t=2: (300-100)/1 = 200 B/s
	assert.InDelta(t, 200.0, s.WindowedSpeed(2, 1), 0.001)
	// lifetime average: 300 bytes / 2 seconds = 150 B/s
	assert.InDelta(t, 150.0, s.AverageSpeed(), 0.001)
}

func TestETA(t *testing.T) {
	start := time.Now()
	s := New(start)
	s.Append(start.Add(1*time.Second), 100)

	eta, ok := s.ETA(200, 5)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, eta.Seconds(), 0.01)

	// already reached: no ETA
	_, ok = s.ETA(50, 5)
	assert.False(t, ok)
}

func TestETAStalledSpeed(t *testing.T) {
	start := time.Now()
	s := New(start)
	s.Append(start, 0)
	s.Append(start, 0)

	_, ok := s.ETA(100, 5)
	assert.False(t, ok)
}
