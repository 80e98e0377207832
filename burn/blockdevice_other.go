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

//go:build !linux

package burn

import "os"

// directIOFlags has no portable O_DIRECT equivalent outside Linux; plain
// O_SYNC is the fallback spec.md §4.1 describes for "systems without a
// sync_data primitive". No F_NOCACHE advisory is issued after open, so
// the page cache is not bypassed on these platforms.
func directIOFlags(relaxDirect bool) int {
	return os.O_SYNC
}

func directIOReadFlags() int {
	return 0
}

// syncData falls back to a plain fsync. Block/partition targets are
// opened with O_SYNC, so for them it has nothing left to flush; regular
// file destinations are not opened with O_SYNC and are flushed here.
func syncData(f *os.File) error {
	return f.Sync()
}
