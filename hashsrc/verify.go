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

package hashsrc

import (
	"bytes"
	"hash"
	"io"

	"github.com/pkg/errors"
)

// ErrHashMismatch is returned by VerifyingReader.Close (or surfaced
// through VerifyHash) when the streamed digest doesn't match spec.
var ErrHashMismatch = errors.New("hashsrc: hash mismatch")

// VerifyingReader tees everything read through r into a running digest,
// adapted from the teacher's artifact.Checksum reader: the digest can
// only be checked once the caller has consumed the whole stream, so the
// comparison happens in Close rather than Read.
type VerifyingReader struct {
	r    io.Reader
	h    hash.Hash
	want []byte
}

// NewVerifyingReader wraps r so that once it has been fully read, Close
// reports whether the stream matched spec's digest. spec.Policy must be
// PolicyVerify.
func NewVerifyingReader(r io.Reader, spec HashSpec) (*VerifyingReader, error) {
	h, err := newHash(spec.Algorithm)
	if err != nil {
		return nil, err
	}
	return &VerifyingReader{r: io.TeeReader(r, h), h: h, want: spec.Digest}, nil
}

func (v *VerifyingReader) Read(p []byte) (int, error) {
	return v.r.Read(p)
}

// Close compares the digest accumulated so far against the expected
// value. Call it only after the stream has been fully consumed;
// otherwise the digest will be over a truncated prefix.
func (v *VerifyingReader) Close() error {
	if !bytes.Equal(v.h.Sum(nil), v.want) {
		return ErrHashMismatch
	}
	return nil
}

// VerifyHash streams r to completion through spec's algorithm and
// reports whether the resulting digest matches. spec.Policy must be
// PolicyVerify; callers route Ask/Skip before reaching here.
func VerifyHash(spec HashSpec, r io.Reader) error {
	vr, err := NewVerifyingReader(r, spec)
	if err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, vr); err != nil {
		return errors.Wrap(err, "hashsrc: failed to read source while hashing")
	}
	return vr.Close()
}
