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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapSudoPassesArgvThrough(t *testing.T) {
	tool := &EscalationTool{Name: "sudo", Path: "/usr/bin/sudo"}
	path, args := tool.Wrap("/bin/caligula", "a", "b c")
	assert.Equal(t, "/usr/bin/sudo", path)
	assert.Equal(t, []string{"/bin/caligula", "a", "b c"}, args)
}

func TestWrapDoasPassesArgvThrough(t *testing.T) {
	tool := &EscalationTool{Name: "doas", Path: "/usr/bin/doas"}
	path, args := tool.Wrap("/bin/caligula", "a")
	assert.Equal(t, "/usr/bin/doas", path)
	assert.Equal(t, []string{"/bin/caligula", "a"}, args)
}

func TestWrapSuShellQuotesCommand(t *testing.T) {
	tool := &EscalationTool{Name: "su", Path: "/bin/su"}
	path, args := tool.Wrap("/bin/caligula", "a b", "it's fine")
	assert.Equal(t, "/bin/su", path)
	assert.Equal(t, "-c", args[0])
	assert.Equal(t, `'/bin/caligula' 'a b' 'it'\''s fine'`, args[1])
}

func TestFindEscalationToolReturnsToolOrSentinel(t *testing.T) {
	// sudo/doas/su are not guaranteed to exist in every test environment,
	// so this only asserts the PATH-probe loop doesn't panic and returns
	// the documented sentinel when none are found.
	_, err := FindEscalationTool()
	if err != nil {
		assert.ErrorIs(t, err, ErrNoEscalationTool)
	}
}
