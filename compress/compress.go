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

// Package compress dispatches a source image's compression format to a
// streaming decoder. This module only ever decompresses (it never
// produces compressed output), so the interface is decode-only, unlike
// the teacher's symmetric artifact.Compressor.
package compress

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format identifies a source's compression.
type Format string

const (
	Identity Format = "none"
	Gzip     Format = "gz"
	Bzip2    Format = "bz2"
	Xz       Format = "xz"
	Zstd     Format = "zst"
)

// ErrUnsupportedFormat is returned when a format name is not recognized,
// or is recognized but not compiled into this build (DESIGN NOTES §9's
// "feature matrix").
type ErrUnsupportedFormat struct {
	Format Format
}

func (e *ErrUnsupportedFormat) Error() string {
	return "compress: unsupported format: " + string(e.Format)
}

// DetectFromFileName maps a file extension to a Format, for the CLI's
// `--compression auto` mode.
func DetectFromFileName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return Gzip
	case ".bz2":
		return Bzip2
	case ".xz":
		return Xz
	case ".zst", ".zstd":
		return Zstd
	default:
		return Identity
	}
}

// NewDecoder wraps r in a streaming decompressor for the given format.
// The returned ReadCloser's Close releases decoder-internal resources
// (e.g. a zstd decoder's goroutines); it never closes r itself, since the
// engine also needs to track r's raw position for TotalBytes.src.
func NewDecoder(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case Identity, "":
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := gzip.NewReader(bufio.NewReader(r))
		if err != nil {
			return nil, errors.Wrap(err, "compress: failed to open gzip stream")
		}
		return gz, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(bufio.NewReader(r))), nil
	case Xz:
		return newXzDecoder(r)
	case Zstd:
		return newZstdDecoder(r)
	default:
		return nil, &ErrUnsupportedFormat{Format: format}
	}
}
