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
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHashSuccess(t *testing.T) {
	sum := sha256.Sum256([]byte("hello world"))
	spec := HashSpec{Policy: PolicyVerify, Algorithm: SHA256, Digest: sum[:]}

	err := VerifyHash(spec, strings.NewReader("hello world"))
	assert.NoError(t, err)
}

func TestVerifyHashMismatch(t *testing.T) {
	sum := sha256.Sum256([]byte("hello world"))
	spec := HashSpec{Policy: PolicyVerify, Algorithm: SHA256, Digest: sum[:]}

	err := VerifyHash(spec, strings.NewReader("goodbye world"))
	assert.ErrorIs(t, err, ErrHashMismatch)
}
