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

// Package tracker implements the parent-side writer state machine: a pure
// function that folds a stream of ipc.StatusMessage frames into a
// Writing/Verifying/Finished state, carrying the byteseries.Series needed
// for throughput and ETA.
package tracker

import (
	"time"

	"github.com/ifd3f/caligula/byteseries"
	"github.com/ifd3f/caligula/ipc"
)

// Phase discriminates the three states a writer child passes through.
type Phase int

const (
	Writing Phase = iota
	Verifying
	Finished
)

// State is the tracker's current snapshot. Only the fields relevant to
// Phase are meaningful; the rest are carried from whichever phase set
// them last.
type State struct {
	Phase Phase

	InputFileBytes uint64
	Compressed     bool

	ReadHist  *byteseries.Series // source bytes consumed (Writing only)
	WriteHist *byteseries.Series // destination bytes written
	VerifyHist *byteseries.Series // destination bytes verified (Verifying/Finished)

	TotalWriteBytes uint64 // frozen write_hist.Last() once verify starts

	Err *ipc.ErrorKind
}

// New starts a tracker in the Writing phase, per spec.md §4.4.
func New(now time.Time, inputFileBytes uint64, compressed bool) State {
	return State{
		Phase:          Writing,
		InputFileBytes: inputFileBytes,
		Compressed:     compressed,
		ReadHist:       byteseries.New(now),
		WriteHist:      byteseries.New(now),
	}
}

// OnStatus folds one StatusMessage into the state, implementing spec.md
// §4.4's transition table. Finished is a fixed point (invariant 6 of
// spec.md §8): any message received after Finished leaves state
// unchanged.
func OnStatus(state State, now time.Time, msg *ipc.StatusMessage) State {
	switch state.Phase {
	case Writing:
		return onStatusWriting(state, now, msg)
	case Verifying:
		return onStatusVerifying(state, now, msg)
	default:
		return state
	}
}

// OnStreamClosed folds the "child stream closed without a terminal
// message" event, which both Writing and Verifying map to
// UnexpectedTermination.
func OnStreamClosed(state State) State {
	if state.Phase == Finished {
		return state
	}
	kind := ipc.ErrorKind{Tag: ipc.ErrUnexpectedTermination}
	state.Phase = Finished
	state.Err = &kind
	return state
}

func onStatusWriting(state State, now time.Time, msg *ipc.StatusMessage) State {
	switch msg.Tag {
	case ipc.TagTotalBytes:
		state.ReadHist.Append(now, msg.Src)
		state.WriteHist.Append(now, msg.Dest)
		return state
	case ipc.TagFinishedWriting:
		state.TotalWriteBytes = state.WriteHist.Last()
		if !msg.Verifying {
			state.Phase = Finished
			return state
		}
		state.Phase = Verifying
		state.VerifyHist = byteseries.New(now)
		return state
	case ipc.TagError:
		state.Phase = Finished
		kind := msg.Err
		state.Err = &kind
		return state
	case ipc.TagSuccess:
		state.Phase = Finished
		return state
	default:
		return state
	}
}

func onStatusVerifying(state State, now time.Time, msg *ipc.StatusMessage) State {
	switch msg.Tag {
	case ipc.TagTotalBytes:
		state.VerifyHist.Append(now, msg.Dest)
		return state
	case ipc.TagSuccess:
		state.Phase = Finished
		return state
	case ipc.TagError:
		state.Phase = Finished
		kind := msg.Err
		state.Err = &kind
		return state
	default:
		return state
	}
}

// ApproximateRatio implements spec.md §4.4's approximate_ratio(): for an
// uncompressed source total_raw_bytes is known to equal input_file_bytes,
// so write_hist/input_file_bytes is exact; for a compressed source the
// decompressed total is unknown, so the ratio falls back to
// read_hist/input_file_bytes — the pre-decompression position against
// the one size the engine actually knows up front.
func (s State) ApproximateRatio() float64 {
	if s.InputFileBytes == 0 {
		return 1
	}
	switch s.Phase {
	case Writing:
		if !s.Compressed {
			return float64(s.WriteHist.Last()) / float64(s.InputFileBytes)
		}
		return float64(s.ReadHist.Last()) / float64(s.InputFileBytes)
	case Verifying:
		return float64(s.VerifyHist.Last()) / float64(s.InputFileBytes)
	default:
		return 1
	}
}

// ETAWrite implements spec.md §4.4's eta_write(), estimating time to
// input_file_bytes along whichever series ApproximateRatio uses. window
// is the trailing-speed window in seconds, matching byteseries.Series.ETA.
func (s State) ETAWrite(window float64) (time.Duration, bool) {
	switch s.Phase {
	case Writing:
		if !s.Compressed {
			return s.WriteHist.ETA(s.InputFileBytes, window)
		}
		return s.ReadHist.ETA(s.InputFileBytes, window)
	case Verifying:
		return s.VerifyHist.ETA(s.InputFileBytes, window)
	default:
		return 0, false
	}
}
