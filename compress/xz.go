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
	"io"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// newXzDecoder wraps r in a pure-Go xz stream reader. The teacher's own
// xz/lzma compressor (vendor/.../mender-artifact/artifact/compressor_lzma.go)
// binds github.com/remyoudompheng/go-liblzma, which requires cgo and a
// system liblzma; that's a poor fit for a tool whose whole job is running
// as an escalated child on arbitrary user machines, so this module uses
// the pure-Go github.com/ulikunitz/xz decoder instead (see DESIGN.md).
func newXzDecoder(r io.Reader) (io.ReadCloser, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "compress: failed to open xz stream")
	}
	return io.NopCloser(zr), nil
}
