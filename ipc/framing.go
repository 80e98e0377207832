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
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/pkg/errors"
)

// ErrFramingFailed wraps any length-prefix or payload decode failure. The
// parent treats a framing failure on a child's socket the same as a clean
// close: it synthesizes Error(UnexpectedTermination).
var ErrFramingFailed = errors.New("ipc: framing failed")

// maxFrameLen guards against a corrupt or hostile length prefix causing an
// unbounded allocation; no legitimate StatusMessage or daemon message
// approaches this size.
const maxFrameLen = 16 * 1024 * 1024

// Encoder writes length-prefixed, gob-encoded frames to an underlying
// writer. The wire format is a 4-byte big-endian length followed by that
// many bytes of gob-encoded payload, per spec.md §4.3 — no compression, no
// checksums, since the stream never leaves the host.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame. Callers must not call Encode concurrently from
// multiple goroutines on the same Encoder; each endpoint is single-threaded
// cooperative per spec.md §5.
func (e *Encoder) Encode(v interface{}) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return errors.Wrap(err, "ipc: failed to encode frame")
	}
	if payload.Len() > maxFrameLen {
		return errors.Errorf("ipc: frame too large: %d bytes", payload.Len())
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(payload.Len()))

	if _, err := e.w.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "ipc: failed to write length prefix")
	}
	if _, err := e.w.Write(payload.Bytes()); err != nil {
		return errors.Wrap(err, "ipc: failed to write frame payload")
	}
	return nil
}

// Decoder reads length-prefixed, gob-encoded frames from an underlying
// reader.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads exactly one frame and decodes it into *v (an
// interface{}-typed pointer previously passed to gob.Register, or a
// concrete pointer type). io.EOF is returned verbatim when the stream
// closes cleanly between frames (the caller's job to turn that into
// UnexpectedTermination); any other failure is wrapped in
// ErrFramingFailed.
func (d *Decoder) Decode(v interface{}) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(d.r, lenPrefix[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrapf(ErrFramingFailed, "reading length prefix: %v", err)
	}

	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return errors.Wrapf(ErrFramingFailed, "frame length %d exceeds max %d", n, maxFrameLen)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return errors.Wrapf(ErrFramingFailed, "reading %d byte payload: %v", n, err)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return errors.Wrapf(ErrFramingFailed, "decoding payload: %v", err)
	}
	return nil
}

// EncodeStatus and DecodeStatus are typed convenience wrappers around the
// generic Encoder/Decoder for the common case of a StatusMessage stream.
func (e *Encoder) EncodeStatus(msg StatusMessage) error {
	return e.Encode(&msg)
}

func (d *Decoder) DecodeStatus() (StatusMessage, error) {
	var msg StatusMessage
	if err := d.Decode(&msg); err != nil {
		return StatusMessage{}, err
	}
	return msg, nil
}
