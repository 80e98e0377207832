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
	"os"
	"regexp"

	"github.com/ifd3f/caligula/ipc"
)

// partitionPatterns recognizes the two Linux device-naming conventions
// for "this is a partition of some other whole disk": sdX-style names
// suffix a bare digit (sda -> sda1), while nvme/mmcblk names need a "p"
// separator before the partition number (nvme0n1 -> nvme0n1p1) since
// their disk name already ends in a digit.
var partitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^sd[a-z]+[0-9]+$`),
	regexp.MustCompile(`^(nvme[0-9]+n[0-9]+|mmcblk[0-9]+)p[0-9]+$`),
}

// ClassifyTarget inspects path to decide which ipc.TargetType a burn
// destination is: a regular file, a whole disk, or a partition of one.
// Non-existent paths (common for a plain output file) are treated as
// TargetFile, since OpenDestination will create them.
func ClassifyTarget(path string) ipc.TargetType {
	fi, err := os.Stat(path)
	if err != nil {
		return ipc.TargetFile
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return ipc.TargetFile
	}
	if looksLikePartition(path) {
		return ipc.TargetPartition
	}
	return ipc.TargetDisk
}

func looksLikePartition(path string) bool {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	for _, pat := range partitionPatterns {
		if pat.MatchString(base) {
			return true
		}
	}
	return false
}
