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

package burn

import (
	"io"
	"syscall"
)

// capacityWriter caps writes to a fixed remaining byte budget, adapted
// from the teacher's utils.LimitedWriter. A raw block device already
// enforces its own capacity by construction, but a regular file backing
// a BlockDevice (tests, or a TargetDisk destination whose size was
// queried once at open time) would otherwise grow without bound, masking
// the "destination exhausted before source" case spec.md §4.1 requires.
type capacityWriter struct {
	w         io.Writer
	remaining uint64
}

func (lw *capacityWriter) Write(p []byte) (int, error) {
	if lw.w == nil {
		return 0, syscall.EBADF
	}
	toWrite := p
	var selferr error
	if uint64(len(p)) > lw.remaining {
		toWrite = p[:lw.remaining]
		selferr = syscall.ENOSPC
	}

	n, err := lw.w.Write(toWrite)
	lw.remaining -= uint64(n)
	if err != nil {
		selferr = err
	}
	return n, selferr
}
