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

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ifd3f/caligula/ipc"
)

func TestLooksLikePartition(t *testing.T) {
	assert.False(t, looksLikePartition("/dev/sda"))
	assert.True(t, looksLikePartition("/dev/sda1"))
	assert.True(t, looksLikePartition("/dev/sdb12"))
	assert.False(t, looksLikePartition("/dev/nvme0n1"))
	assert.True(t, looksLikePartition("/dev/nvme0n1p1"))
	assert.False(t, looksLikePartition("/dev/mmcblk0"))
	assert.True(t, looksLikePartition("/dev/mmcblk0p2"))
}

func TestClassifyTargetMissingPathIsFile(t *testing.T) {
	assert.Equal(t, ipc.TargetFile, ClassifyTarget("/nonexistent/path/abc"))
}
