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

package herding

import (
	"os/exec"

	"github.com/pkg/errors"
)

// escalationCandidates is the PATH probe order for spec.md §4.2's
// privilege-escalation strategy: "probing PATH for {sudo, doas, su} in
// that order". A GUI authorization-prompt strategy (the macOS
// AuthorizationExecuteWithPrivileges-style path spec.md alludes to for
// "the other family") is not implemented in this module.
var escalationCandidates = []string{"sudo", "doas", "su"}

// ErrNoEscalationTool is returned when none of the candidate binaries are
// on PATH.
var ErrNoEscalationTool = errors.New("herding: no sudo, doas, or su found on PATH")

// EscalationTool names the PATH-resolved elevation binary and how to
// invoke it: sudo and doas both accept "<tool> <command...>" directly,
// while su needs "-c" and a single shell-quoted command string — callers
// use Wrap to get the right argv shape either way.
type EscalationTool struct {
	Name string
	Path string
}

// FindEscalationTool probes PATH in the order spec.md §4.2 names.
func FindEscalationTool() (*EscalationTool, error) {
	for _, name := range escalationCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return &EscalationTool{Name: name, Path: path}, nil
		}
	}
	return nil, ErrNoEscalationTool
}

// Wrap builds the argv that re-invokes argv0 with args under this
// elevation tool. sudo/doas take the command directly; su requires
// "-c" plus a single shell-escaped string, since it execs a shell rather
// than the target program.
func (t *EscalationTool) Wrap(argv0 string, args ...string) (string, []string) {
	full := append([]string{argv0}, args...)
	if t.Name == "su" {
		return t.Path, []string{"-c", shellJoin(full)}
	}
	return t.Path, full
}

// shellJoin quotes each argument for a POSIX shell's "-c" string, the
// only place this module builds a shell command line instead of calling
// exec.Command with an explicit argv (which needs no quoting at all).
func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += shellQuote(a)
	}
	return out
}

func shellQuote(s string) string {
	quoted := "'"
	for _, r := range s {
		if r == '\'' {
			quoted += `'\''`
		} else {
			quoted += string(r)
		}
	}
	return quoted + "'"
}
