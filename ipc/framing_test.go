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

package ipc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	msgs := []StatusMessage{
		InitSuccess(1024),
		TotalBytes(256, 256),
		FinishedWriting(true),
		Success(),
		Error(ErrorKind{Tag: ErrVerificationFailed}),
	}

	for _, m := range msgs {
		require.NoError(t, enc.EncodeStatus(m))
	}
	for _, want := range msgs {
		got, err := dec.DecodeStatus()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeEOFOnCleanClose(t *testing.T) {
	var buf bytes.Buffer
	dec := NewDecoder(&buf)
	_, err := dec.DecodeStatus()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeShortLengthPrefixIsFramingError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, 0x01})
	dec := NewDecoder(buf)
	_, err := dec.DecodeStatus()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFramingFailed)
}

func TestDecodeTruncatedPayloadIsFramingError(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.EncodeStatus(Success()))

	truncated := bytes.NewBuffer(buf.Bytes()[:buf.Len()-1])
	dec := NewDecoder(truncated)
	_, err := dec.DecodeStatus()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFramingFailed)
}

func TestDaemonMessagesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	req := SpawnWriter("/tmp/child.log", WriterConfig{SourcePath: "/img.bin", DestPath: "/dev/sdx"})
	require.NoError(t, enc.Encode(&req))

	got, err := dec.DecodeDaemonRequest()
	require.NoError(t, err)
	assert.Equal(t, req, got)
}
