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

package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFromFileName(t *testing.T) {
	cases := map[string]Format{
		"disk.img.gz":  Gzip,
		"disk.img.bz2": Bzip2,
		"disk.img.xz":  Xz,
		"disk.img.zst": Zstd,
		"disk.img":     Identity,
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectFromFileName(name), name)
	}
}

func TestIdentityDecoderPassesThrough(t *testing.T) {
	dec, err := NewDecoder(Identity, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	defer dec.Close()

	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestGzipDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("hello, gzip"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	dec, err := NewDecoder(Gzip, &buf)
	require.NoError(t, err)
	defer dec.Close()

	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, "hello, gzip", string(got))
}

func TestUnsupportedFormatError(t *testing.T) {
	_, err := NewDecoder(Format("rar"), bytes.NewReader(nil))
	require.Error(t, err)
	var unsupported *ErrUnsupportedFormat
	assert.ErrorAs(t, err, &unsupported)
}
