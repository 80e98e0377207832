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

// DaemonRequestTag discriminates messages sent to the escalated daemon.
type DaemonRequestTag string

const (
	DaemonReqSpawnWriter DaemonRequestTag = "spawn_writer"
)

// DaemonRequest is sent from the parent to an already-running escalated
// daemon, asking it to run a writer with its already-elevated
// privileges.
type DaemonRequest struct {
	Tag DaemonRequestTag `json:"tag"`

	// SpawnWriter
	LogFile string       `json:"log_file,omitempty"`
	Config  WriterConfig `json:"config,omitempty"`
}

func SpawnWriter(logFile string, config WriterConfig) DaemonRequest {
	return DaemonRequest{Tag: DaemonReqSpawnWriter, LogFile: logFile, Config: config}
}

// DaemonEventTag discriminates messages sent back from the escalated
// daemon.
type DaemonEventTag string

const (
	DaemonEvtChildExited DaemonEventTag = "child_exited"
	DaemonEvtFatalError  DaemonEventTag = "fatal_error"
)

// DaemonEvent is sent from the escalated daemon to the parent. Spawning a
// writer is not acknowledged synchronously; the daemon reports the
// resulting child's exit asynchronously via ChildExited, and any
// unrecoverable daemon-level failure via FatalError, which terminates the
// daemon's request loop.
type DaemonEvent struct {
	Tag DaemonEventTag `json:"tag"`

	// ChildExited
	ChildID int `json:"child_id,omitempty"`
	Code    int `json:"code,omitempty"`

	// FatalError
	Error string `json:"error,omitempty"`
}

func ChildExited(childID, code int) DaemonEvent {
	return DaemonEvent{Tag: DaemonEvtChildExited, ChildID: childID, Code: code}
}

func FatalError(err error) DaemonEvent {
	return DaemonEvent{Tag: DaemonEvtFatalError, Error: err.Error()}
}

func (e *Encoder) EncodeDaemonRequest(req DaemonRequest) error {
	return e.Encode(&req)
}

func (e *Encoder) EncodeDaemonEvent(evt DaemonEvent) error {
	return e.Encode(&evt)
}

func (d *Decoder) DecodeDaemonRequest() (DaemonRequest, error) {
	var req DaemonRequest
	if err := d.Decode(&req); err != nil {
		return DaemonRequest{}, err
	}
	return req, nil
}

func (d *Decoder) DecodeDaemonEvent() (DaemonEvent, error) {
	var evt DaemonEvent
	if err := d.Decode(&evt); err != nil {
		return DaemonEvent{}, err
	}
	return evt, nil
}
