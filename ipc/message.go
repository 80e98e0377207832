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

// Package ipc defines the wire types and length-prefixed framing codec
// shared between the parent herder and its writer/escalated-daemon
// children.
package ipc

import "fmt"

// TargetType classifies the destination of a burn.
type TargetType int

const (
	TargetFile TargetType = iota
	TargetDisk
	TargetPartition
)

// CompressionTag identifies the source's compression format.
type CompressionTag string

const (
	CompressionAuto  CompressionTag = "auto"
	CompressionNone  CompressionTag = "none"
	CompressionGzip  CompressionTag = "gz"
	CompressionBzip2 CompressionTag = "bz2"
	CompressionXz    CompressionTag = "xz"
	CompressionZstd  CompressionTag = "zst"
)

// WriterConfig is sent from the parent to a child exactly once, at spawn
// time (JSON-encoded, per the child positional-argument contract). It is
// immutable for the lifetime of the child.
type WriterConfig struct {
	SourcePath       string         `json:"source_path"`
	DestPath         string         `json:"dest_path"`
	Verify           bool           `json:"verify"`
	Compression      CompressionTag `json:"compression"`
	Target           TargetType     `json:"target"`
	BlockSizeOverride int          `json:"block_size_override,omitempty"`
}

// ErrorKindTag discriminates the ErrorKind variants.
type ErrorKindTag string

const (
	ErrEndOfOutput          ErrorKindTag = "end_of_output"
	ErrPermissionDenied     ErrorKindTag = "permission_denied"
	ErrVerificationFailed   ErrorKindTag = "verification_failed"
	ErrUnexpectedTermination ErrorKindTag = "unexpected_termination"
	ErrUnknown              ErrorKindTag = "unknown"
)

// ErrorKind is the terminal error taxonomy of spec.md §3/§7.
type ErrorKind struct {
	Tag     ErrorKindTag `json:"tag"`
	Message string       `json:"message,omitempty"` // only set for Unknown
}

func (e ErrorKind) Error() string {
	if e.Tag == ErrUnknown && e.Message != "" {
		return e.Message
	}
	return string(e.Tag)
}

func NewUnknownError(err error) ErrorKind {
	return ErrorKind{Tag: ErrUnknown, Message: err.Error()}
}

// MessageTag discriminates the StatusMessage tagged union.
type MessageTag string

const (
	TagInitSuccess     MessageTag = "init_success"
	TagTotalBytes      MessageTag = "total_bytes"
	TagFinishedWriting MessageTag = "finished_writing"
	TagSuccess         MessageTag = "success"
	TagError           MessageTag = "error"
)

// StatusMessage is the tagged union sent from a writer child to the
// parent, one per frame. Exactly the fields relevant to Tag are
// populated; unused fields are left at the zero value.
type StatusMessage struct {
	Tag MessageTag `json:"tag"`

	// InitSuccess
	InputFileBytes uint64 `json:"input_file_bytes,omitempty"`

	// TotalBytes
	Src  uint64 `json:"src,omitempty"`
	Dest uint64 `json:"dest,omitempty"`

	// FinishedWriting
	Verifying bool `json:"verifying,omitempty"`

	// Error
	Err ErrorKind `json:"err,omitempty"`
}

func InitSuccess(inputFileBytes uint64) StatusMessage {
	return StatusMessage{Tag: TagInitSuccess, InputFileBytes: inputFileBytes}
}

func TotalBytes(src, dest uint64) StatusMessage {
	return StatusMessage{Tag: TagTotalBytes, Src: src, Dest: dest}
}

func FinishedWriting(verifying bool) StatusMessage {
	return StatusMessage{Tag: TagFinishedWriting, Verifying: verifying}
}

func Success() StatusMessage {
	return StatusMessage{Tag: TagSuccess}
}

func Error(kind ErrorKind) StatusMessage {
	return StatusMessage{Tag: TagError, Err: kind}
}

func (m StatusMessage) String() string {
	switch m.Tag {
	case TagInitSuccess:
		return fmt.Sprintf("InitSuccess{input_file_bytes=%d}", m.InputFileBytes)
	case TagTotalBytes:
		return fmt.Sprintf("TotalBytes{src=%d, dest=%d}", m.Src, m.Dest)
	case TagFinishedWriting:
		return fmt.Sprintf("FinishedWriting{verifying=%v}", m.Verifying)
	case TagSuccess:
		return "Success"
	case TagError:
		return fmt.Sprintf("Error(%s)", m.Err.Error())
	default:
		return fmt.Sprintf("StatusMessage{tag=%s}", m.Tag)
	}
}

// IsTerminal reports whether this message ends the stream (invariant iii
// of spec.md §3).
func (m StatusMessage) IsTerminal() bool {
	return m.Tag == TagSuccess || m.Tag == TagError
}
