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

package burn

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/ifd3f/caligula/compress"
	"github.com/ifd3f/caligula/ipc"
)

// sourceReadBufferSize sizes the bufio.Reader sitting between the raw
// source file and the decompressor, so short reads from a slow
// decompression consumer don't turn into one read(2) syscall apiece.
const sourceReadBufferSize = 64 * 1024

// Config is the write/verify engine's input, a close relative of
// ipc.WriterConfig with the config resolved to concrete paths and a
// target already known to the caller.
type Config struct {
	SourcePath        string
	DestPath          string
	Target            ipc.TargetType
	Verify            bool
	Compression       ipc.CompressionTag
	BlockSizeOverride int

	// CheckpointBlocks overrides CheckpointBlocks for this run; 0 means
	// use the package default. Exposed mainly so tests can exercise a
	// specific cadence without waiting through a real one.
	CheckpointBlocks int
}

func (c Config) checkpointBlocks() int {
	if c.CheckpointBlocks > 0 {
		return c.CheckpointBlocks
	}
	return CheckpointBlocks
}

// Emit sends one StatusMessage frame to the parent. Engine.Run stops and
// returns the emit error immediately if Emit fails — a broken pipe means
// nobody is listening for further progress.
type Emit func(ipc.StatusMessage) error

// Run executes the write phase and, if cfg.Verify, the verify phase,
// emitting every frame of spec.md §4.1's algorithm via emit. It returns a
// non-nil error only when emit itself fails; engine-detected failures
// (bad reads, short writes, mismatches) are reported as an Error frame
// and Run returns nil.
func Run(cfg Config, emit Emit) error {
	format := resolveFormat(cfg.Compression, cfg.SourcePath)
	relaxDirect := format != compress.Identity

	srcFile, err := os.Open(cfg.SourcePath)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer srcFile.Close()

	fi, err := srcFile.Stat()
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	inputFileBytes := uint64(fi.Size())

	bd, err := OpenDestination(cfg.DestPath, cfg.Target, relaxDirect)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer bd.Close()
	applyBlockSizeOverride(bd, cfg.BlockSizeOverride)

	if err := emit(ipc.InitSuccess(inputFileBytes)); err != nil {
		return err
	}

	counting := &countingReader{r: srcFile}
	buffered := bufio.NewReaderSize(counting, sourceReadBufferSize)
	decoder, err := compress.NewDecoder(format, buffered)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer decoder.Close()

	destBytes, err := writePhase(bd, decoder, counting, cfg.checkpointBlocks(), emit)
	if err != nil {
		return err
	}
	if destBytes.terminal {
		return nil
	}

	if err := emit(ipc.FinishedWriting(cfg.Verify)); err != nil {
		return err
	}

	if !cfg.Verify {
		return emit(ipc.Success())
	}

	if err := bd.Close(); err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}

	return verifyPhase(cfg, inputFileBytes, format, cfg.checkpointBlocks(), emit)
}

// phaseResult distinguishes "the loop emitted a terminal Error frame
// itself" (terminal=true, caller should stop) from "the loop finished
// cleanly" (caller proceeds to FinishedWriting).
type phaseResult struct {
	terminal bool
}

// writePhase implements spec.md §4.1's write-phase algorithm, steps 2-5.
func writePhase(bd *BlockDevice, decoder io.Reader, counting *countingReader, checkpointBlocks int, emit Emit) (phaseResult, error) {
	buf := make([]byte, bd.OpBufferSize)
	var destBytes uint64
	iter := 0

	for {
		n, rerr := io.ReadFull(decoder, buf)
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return phaseResult{terminal: true}, emit(ipc.Error(classifyErr(rerr)))
		}
		if n == 0 {
			break
		}
		if n < len(buf) {
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}

		written, werr := bd.Write(buf)
		destBytes += uint64(written)
		if written < len(buf) {
			// A short write means the destination is exhausted, even if
			// the underlying error is something other than ENOSPC.
			return phaseResult{terminal: true}, emit(ipc.Error(ipc.ErrorKind{Tag: ipc.ErrEndOfOutput}))
		}
		if werr != nil {
			return phaseResult{terminal: true}, emit(ipc.Error(classifyErr(werr)))
		}

		iter++
		if iter%checkpointBlocks == 0 {
			if err := bd.Sync(); err != nil {
				return phaseResult{terminal: true}, emit(ipc.Error(classifyErr(err)))
			}
			if err := emit(ipc.TotalBytes(counting.n, destBytes)); err != nil {
				return phaseResult{terminal: true}, err
			}
		}

		if n < len(buf) {
			break
		}
	}

	if err := bd.Sync(); err != nil {
		return phaseResult{terminal: true}, emit(ipc.Error(classifyErr(err)))
	}
	if err := emit(ipc.TotalBytes(counting.n, destBytes)); err != nil {
		return phaseResult{terminal: true}, err
	}
	return phaseResult{}, nil
}

// verifyPhase implements spec.md §4.1's verify-phase algorithm: re-open
// the destination read-only, rewind and re-decode the source, and compare
// block by block up to inputFileBytes — never the trailing zero padding.
func verifyPhase(cfg Config, inputFileBytes uint64, format compress.Format, checkpointBlocks int, emit Emit) error {
	srcFile, err := os.Open(cfg.SourcePath)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer srcFile.Close()

	bd, err := OpenDestinationReadOnly(cfg.DestPath, cfg.Target)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer bd.Close()
	applyBlockSizeOverride(bd, cfg.BlockSizeOverride)

	counting := &countingReader{r: srcFile}
	buffered := bufio.NewReaderSize(counting, sourceReadBufferSize)
	decoder, err := compress.NewDecoder(format, buffered)
	if err != nil {
		return emit(ipc.Error(classifyErr(err)))
	}
	defer decoder.Close()

	return verifyLoop(bd, decoder, counting, inputFileBytes, checkpointBlocks, emit)
}

// verifyLoop is the block-by-block compare described by spec.md §4.1's
// verify-phase algorithm, factored out of verifyPhase so it can run
// against a BlockDevice/decoder pair built either by OpenDestinationReadOnly
// (production) or directly (tests that need exact buffer sizes).
func verifyLoop(bd *BlockDevice, decoder io.Reader, counting *countingReader, inputFileBytes uint64, checkpointBlocks int, emit Emit) error {
	srcBuf := make([]byte, bd.OpBufferSize)
	destBuf := make([]byte, bd.OpBufferSize)

	var verified uint64
	var remaining = inputFileBytes
	iter := 0
	for remaining > 0 {
		want := uint64(len(srcBuf))
		if remaining < want {
			want = remaining
		}

		n, rerr := io.ReadFull(decoder, srcBuf[:want])
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return emit(ipc.Error(classifyErr(rerr)))
		}
		if uint64(n) < want {
			return emit(ipc.Error(ipc.ErrorKind{Tag: ipc.ErrUnexpectedTermination}))
		}

		if _, derr := io.ReadFull(bd, destBuf[:want]); derr != nil {
			return emit(ipc.Error(ipc.ErrorKind{Tag: ipc.ErrEndOfOutput}))
		}

		if !bytes.Equal(srcBuf[:want], destBuf[:want]) {
			return emit(ipc.Error(ipc.ErrorKind{Tag: ipc.ErrVerificationFailed}))
		}

		verified += want
		remaining -= want
		iter++

		if iter%checkpointBlocks == 0 {
			if err := emit(ipc.TotalBytes(counting.n, verified)); err != nil {
				return err
			}
		}
	}

	if err := emit(ipc.TotalBytes(counting.n, verified)); err != nil {
		return err
	}
	return emit(ipc.Success())
}

func applyBlockSizeOverride(bd *BlockDevice, override int) {
	if override <= 0 {
		return
	}
	bd.SectorSize = override
	bd.OpBufferSize = opBufferSizeFor(override)
}

func resolveFormat(tag ipc.CompressionTag, sourcePath string) compress.Format {
	switch tag {
	case ipc.CompressionAuto, "":
		return compress.DetectFromFileName(sourcePath)
	case ipc.CompressionNone:
		return compress.Identity
	case ipc.CompressionGzip:
		return compress.Gzip
	case ipc.CompressionBzip2:
		return compress.Bzip2
	case ipc.CompressionXz:
		return compress.Xz
	case ipc.CompressionZstd:
		return compress.Zstd
	default:
		return compress.Identity
	}
}
