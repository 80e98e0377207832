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

//go:build !nozstd

package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// newZstdDecoder wraps r in a streaming zstd decoder, gated by the
// `nozstd` build tag exactly like the teacher's own
// compressor_zstd.go (`!nozstd`). Same library as the teacher
// (github.com/klauspost/compress/zstd).
func newZstdDecoder(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "compress: failed to open zstd stream")
	}
	return dec.IOReadCloser(), nil
}
