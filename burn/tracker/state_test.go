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

package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifd3f/caligula/ipc"
)

func TestApproximateRatioCompressedUsesReadHist(t *testing.T) {
	now := time.Now()
	s := New(now, 80, true)
	msg := ipc.TotalBytes(20, 100000)
	s = OnStatus(s, now, &msg)

	assert.InDelta(t, 0.25, s.ApproximateRatio(), 1e-9)
}

func TestApproximateRatioUncompressedUsesWriteHist(t *testing.T) {
	now := time.Now()
	s := New(now, 80, false)
	msg := ipc.TotalBytes(20, 40)
	s = OnStatus(s, now, &msg)

	assert.InDelta(t, 0.5, s.ApproximateRatio(), 1e-9)
}

func TestWritingTransitionsToVerifying(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	finished := ipc.FinishedWriting(true)
	s = OnStatus(s, now, &finished)

	require.Equal(t, Verifying, s.Phase)
	assert.Equal(t, uint64(0), s.TotalWriteBytes)
	require.NotNil(t, s.VerifyHist)
}

func TestWritingToFinishedWithoutVerify(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	finished := ipc.FinishedWriting(false)
	s = OnStatus(s, now, &finished)

	assert.Equal(t, Finished, s.Phase)
	assert.Nil(t, s.Err)
}

func TestWritingErrorTransitionsToFinished(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	errMsg := ipc.Error(ipc.ErrorKind{Tag: ipc.ErrVerificationFailed})
	s = OnStatus(s, now, &errMsg)

	require.Equal(t, Finished, s.Phase)
	require.NotNil(t, s.Err)
	assert.Equal(t, ipc.ErrVerificationFailed, s.Err.Tag)
}

func TestVerifyingSuccessTransitionsToFinished(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	finished := ipc.FinishedWriting(true)
	s = OnStatus(s, now, &finished)

	success := ipc.Success()
	s = OnStatus(s, now.Add(time.Second), &success)

	assert.Equal(t, Finished, s.Phase)
	assert.Nil(t, s.Err)
}

func TestFinishedIsFixedPoint(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	success := ipc.Success()
	s = OnStatus(s, now, &success)
	require.Equal(t, Finished, s.Phase)

	before := s
	total := ipc.TotalBytes(1, 2)
	after := OnStatus(s, now.Add(time.Second), &total)
	assert.Equal(t, before, after)
}

func TestStreamClosedWithoutTerminalIsUnexpectedTermination(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	s = OnStreamClosed(s)

	require.Equal(t, Finished, s.Phase)
	require.NotNil(t, s.Err)
	assert.Equal(t, ipc.ErrUnexpectedTermination, s.Err.Tag)
}

func TestStreamClosedAfterFinishedIsNoop(t *testing.T) {
	now := time.Now()
	s := New(now, 100, false)
	success := ipc.Success()
	s = OnStatus(s, now, &success)

	s2 := OnStreamClosed(s)
	assert.Equal(t, s, s2)
}
