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

package system

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// GetBlockDeviceSize returns the capacity in bytes of the block device
// backing file, via BLKGETSIZE64.
func GetBlockDeviceSize(file *os.File) (uint64, error) {
	sz, err := unix.IoctlGetUint64(int(file.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		if err == unix.ENOTTY {
			return 0, ErrNotABlockDevice
		}
		return 0, errors.Wrap(err, "BLKGETSIZE64 ioctl failed")
	}
	return sz, nil
}

// GetBlockDeviceSectorSize returns the logical sector size of the block
// device, via BLKSSZGET. All writes to the device must be aligned to, and
// a multiple of, this size (spec.md §4.1).
func GetBlockDeviceSectorSize(file *os.File) (int, error) {
	sz, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err != nil {
		if err == unix.ENOTTY {
			return 0, ErrNotABlockDevice
		}
		return 0, errors.Wrap(err, "BLKSSZGET ioctl failed")
	}
	return sz, nil
}
