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
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifd3f/caligula/compress"
	"github.com/ifd3f/caligula/ipc"
)

func openTestBlockDevice(t *testing.T, path string, opBufferSize, sectorSize int, capacity uint64) *BlockDevice {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	bd := &BlockDevice{Path: path, Target: ipc.TargetDisk, SectorSize: sectorSize, OpBufferSize: opBufferSize, f: f}
	bd.SetCapacity(capacity)
	return bd
}

func collectingEmit() (Emit, *[]ipc.StatusMessage) {
	var msgs []ipc.StatusMessage
	return func(m ipc.StatusMessage) error {
		msgs = append(msgs, m)
		return nil
	}, &msgs
}

// S1: buf_size=16, file_size=1024, disk_size=2048, block_size=8, checkpoint=16.
func TestWritePhaseS1(t *testing.T) {
	dir := t.TempDir()
	file := make([]byte, 1024)
	_, err := rand.Read(file)
	require.NoError(t, err)

	destPath := filepath.Join(dir, "disk.img")
	bd := openTestBlockDevice(t, destPath, 16, 8, 2048)

	counting := &countingReader{r: newByteReader(file)}
	decoder := bufio.NewReaderSize(counting, sourceReadBufferSize)
	emit, msgs := collectingEmit()

	result, err := writePhase(bd, decoder, counting, 16, emit)
	require.NoError(t, err)
	assert.False(t, result.terminal)

	var totalBytesMsgs []ipc.StatusMessage
	for _, m := range *msgs {
		if m.Tag == ipc.TagTotalBytes {
			totalBytesMsgs = append(totalBytesMsgs, m)
		}
	}
	require.Len(t, totalBytesMsgs, 5)
	wantDest := []uint64{256, 512, 768, 1024, 1024}
	for i, m := range totalBytesMsgs {
		assert.Equal(t, wantDest[i], m.Dest, "event %d", i)
		assert.Equal(t, uint64(1024), m.Src, "event %d", i)
	}

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, file, got[:1024])
}

// S2: file_size=2000, disk_size=1024 -> Error(EndOfOutput); disk == file[..1024].
func TestWritePhaseS2DestinationExhausted(t *testing.T) {
	dir := t.TempDir()
	file := make([]byte, 2000)
	_, err := rand.Read(file)
	require.NoError(t, err)

	destPath := filepath.Join(dir, "disk.img")
	bd := openTestBlockDevice(t, destPath, 16, 8, 1024)

	counting := &countingReader{r: newByteReader(file)}
	decoder := bufio.NewReaderSize(counting, sourceReadBufferSize)
	emit, msgs := collectingEmit()

	result, err := writePhase(bd, decoder, counting, 32, emit)
	require.NoError(t, err)
	assert.True(t, result.terminal)

	last := (*msgs)[len(*msgs)-1]
	require.Equal(t, ipc.TagError, last.Tag)
	assert.Equal(t, ipc.ErrEndOfOutput, last.Err.Tag)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, file[:1024], got[:1024])
}

// S3: verify a source against an identical destination succeeds.
func TestVerifyPhaseS3Success(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	srcPath := filepath.Join(dir, "src.img")
	destPath := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(srcPath, data, 0644))
	require.NoError(t, os.WriteFile(destPath, data, 0644))

	cfg := Config{SourcePath: srcPath, DestPath: destPath, Target: ipc.TargetDisk, Compression: ipc.CompressionNone}
	bd := openTestBlockDevice(t, destPath, 256, 8, uint64(len(data)))
	emit, msgs := collectingEmit()

	err = verifyWithBlockDevice(t, cfg, bd, uint64(len(data)), 32, emit)
	require.NoError(t, err)

	last := (*msgs)[len(*msgs)-1]
	assert.Equal(t, ipc.TagSuccess, last.Tag)
}

// S4: a single flipped byte in the destination fails verification.
func TestVerifyPhaseS4Mismatch(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	corrupted := append([]byte(nil), data...)
	corrupted[10] ^= 0xFF

	srcPath := filepath.Join(dir, "src.img")
	destPath := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(srcPath, data, 0644))
	require.NoError(t, os.WriteFile(destPath, corrupted, 0644))

	cfg := Config{SourcePath: srcPath, DestPath: destPath, Target: ipc.TargetDisk, Compression: ipc.CompressionNone}
	bd := openTestBlockDevice(t, destPath, 256, 8, uint64(len(data)))
	emit, msgs := collectingEmit()

	err = verifyWithBlockDevice(t, cfg, bd, uint64(len(data)), 32, emit)
	require.NoError(t, err)

	last := (*msgs)[len(*msgs)-1]
	require.Equal(t, ipc.TagError, last.Tag)
	assert.Equal(t, ipc.ErrVerificationFailed, last.Err.Tag)
}

// S5: misaligned file size (4231) against a larger disk with random tail
// bytes beyond the source length still verifies successfully, since the
// trailing padding is never compared.
func TestVerifyPhaseS5MisalignedSuccess(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 4231)
	_, err := rand.Read(data)
	require.NoError(t, err)

	disk := make([]byte, 16384)
	copy(disk, data)
	_, err = rand.Read(disk[4231:])
	require.NoError(t, err)

	srcPath := filepath.Join(dir, "src.img")
	destPath := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(srcPath, data, 0644))
	require.NoError(t, os.WriteFile(destPath, disk, 0644))

	cfg := Config{SourcePath: srcPath, DestPath: destPath, Target: ipc.TargetDisk, Compression: ipc.CompressionNone}
	bd := openTestBlockDevice(t, destPath, 256, 8, uint64(len(disk)))
	emit, msgs := collectingEmit()

	err = verifyWithBlockDevice(t, cfg, bd, uint64(len(data)), 32, emit)
	require.NoError(t, err)

	last := (*msgs)[len(*msgs)-1]
	assert.Equal(t, ipc.TagSuccess, last.Tag)
}

// Misaligned edge-case sizes spec.md §4.1 calls out explicitly: a write
// followed by a verify must round-trip cleanly regardless of how the
// source length interacts with the op buffer size.
func TestWriteThenVerifyEdgeCaseSizes(t *testing.T) {
	sizes := []int{0, 1, 33, 382, 438, 993}
	for _, size := range sizes {
		size := size
		t.Run(sizeLabel(size), func(t *testing.T) {
			dir := t.TempDir()
			data := make([]byte, size)
			if size > 0 {
				_, err := rand.Read(data)
				require.NoError(t, err)
			}

			srcPath := filepath.Join(dir, "src.img")
			destPath := filepath.Join(dir, "disk.img")
			require.NoError(t, os.WriteFile(srcPath, data, 0644))

			writeBD := openTestBlockDevice(t, destPath, 16, 8, 4096)
			counting := &countingReader{r: newByteReader(data)}
			decoder := bufio.NewReaderSize(counting, sourceReadBufferSize)
			emit, _ := collectingEmit()
			result, err := writePhase(writeBD, decoder, counting, 4, emit)
			require.NoError(t, err)
			require.False(t, result.terminal)
			require.NoError(t, writeBD.Close())

			cfg := Config{SourcePath: srcPath, DestPath: destPath, Target: ipc.TargetDisk, Compression: ipc.CompressionNone}
			verifyBD := openTestBlockDevice(t, destPath, 16, 8, 4096)
			vemit, vmsgs := collectingEmit()
			err = verifyWithBlockDevice(t, cfg, verifyBD, uint64(size), 4, vemit)
			require.NoError(t, err)

			last := (*vmsgs)[len(*vmsgs)-1]
			assert.Equal(t, ipc.TagSuccess, last.Tag)
		})
	}
}

func sizeLabel(n int) string {
	return fmt.Sprintf("size_%d", n)
}

// verifyWithBlockDevice runs verifyLoop against an already-opened
// BlockDevice rather than one OpenDestinationReadOnly would produce,
// so tests can exercise exact buffer sizes and capacities.
func verifyWithBlockDevice(t *testing.T, cfg Config, bd *BlockDevice, inputFileBytes uint64, checkpointBlocks int, emit Emit) error {
	t.Helper()
	srcFile, err := os.Open(cfg.SourcePath)
	require.NoError(t, err)
	defer srcFile.Close()
	defer bd.Close()

	counting := &countingReader{r: bufio.NewReader(srcFile)}
	decoder, err := compress.NewDecoder(compress.Identity, counting)
	require.NoError(t, err)
	defer decoder.Close()

	return verifyLoop(bd, decoder, counting, inputFileBytes, checkpointBlocks, emit)
}

func newByteReader(b []byte) io.Reader {
	return &byteReader{data: b}
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
