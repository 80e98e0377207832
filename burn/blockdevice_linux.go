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

//go:build linux

package burn

import (
	"os"

	"golang.org/x/sys/unix"
)

// directIOFlags returns the write-side open flags for a raw block or
// partition target (spec.md §4.1): O_DIRECT|O_SYNC normally, relaxed to
// O_SYNC alone when the source is compressed and decompression is the
// throughput bottleneck rather than the destination write path.
func directIOFlags(relaxDirect bool) int {
	if relaxDirect {
		return unix.O_SYNC
	}
	return unix.O_DIRECT | unix.O_SYNC
}

// directIOReadFlags returns the read-side open flags used for the verify
// pass. O_DIRECT avoids re-reading through a page cache that was just
// warmed by the write pass, which would otherwise mask a bad write.
func directIOReadFlags() int {
	return unix.O_DIRECT
}

// syncData invokes fdatasync, the sync_data primitive spec.md §4.1 calls
// for at each checkpoint. O_SYNC already makes every write synchronous, so
// this is mostly belt-and-suspenders for metadata.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
