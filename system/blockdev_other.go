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

package system

import "os"

// GetBlockDeviceSize has no portable ioctl-free implementation outside
// Linux in this module; burning to a raw device is Linux/macOS-only (macOS
// would need its own DKIOCGETBLOCKCOUNT/DKIOCGETBLOCKSIZE ioctls, not
// implemented here). Regular files fall back to Stat.
func GetBlockDeviceSize(file *os.File) (uint64, error) {
	fi, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode().IsRegular() {
		return uint64(fi.Size()), nil
	}
	return 0, ErrNotABlockDevice
}

// GetBlockDeviceSectorSize has no portable fallback; regular files have no
// meaningful sector size, so a conservative default is used for alignment
// purposes only.
func GetBlockDeviceSectorSize(file *os.File) (int, error) {
	fi, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode().IsRegular() {
		return 512, nil
	}
	return 0, ErrNotABlockDevice
}
