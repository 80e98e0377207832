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

// Package device enumerates candidate burn destinations under /sys/block,
// the same sysfs tree the teacher's system.ioctl.go consults for UBI
// devices, for the interactive disk picker (spec.md §6, "--show-all-disks").
package device

import (
	"strings"

	sysfs "github.com/ungerik/go-sysfs"
)

// Disk describes one block device candidate.
type Disk struct {
	Name      string // e.g. "sda", "nvme0n1"
	Path      string // e.g. "/dev/sda"
	SizeBytes uint64
	Removable bool
	Model     string
}

// ListCandidates enumerates /sys/block entries. Partitions and loop/ram/dm
// devices are excluded by default since they are never a sensible whole-
// disk burn target; showAll only affects the Removable filter applied by
// the caller, not this exclusion, which spec.md treats as unconditional.
func ListCandidates() ([]Disk, error) {
	var disks []Disk
	for _, obj := range sysfs.Block.Objects() {
		name := obj.Name()
		if isExcludedKind(name) {
			continue
		}

		disk := Disk{Name: name, Path: "/dev/" + name}

		if size := obj.Attribute("size"); size.Exists() {
			sectors, err := size.ReadUint64()
			if err == nil {
				disk.SizeBytes = sectors * 512
			}
		}
		if removable := obj.Attribute("removable"); removable.Exists() {
			v, err := removable.ReadInt()
			disk.Removable = err == nil && v == 1
		}
		if model := obj.Attribute("device/model"); model.Exists() {
			if s, err := model.Read(); err == nil {
				disk.Model = strings.TrimSpace(s)
			}
		}

		disks = append(disks, disk)
	}
	return disks, nil
}

// isExcludedKind reports whether a /sys/block entry is never a sensible
// whole-disk burn target: loopback, ramdisk, and device-mapper nodes.
func isExcludedKind(name string) bool {
	switch {
	case strings.HasPrefix(name, "loop"):
		return true
	case strings.HasPrefix(name, "ram"):
		return true
	case strings.HasPrefix(name, "dm-"):
		return true
	default:
		return false
	}
}

// FilterRemovable returns only the removable disks unless showAll is set,
// matching the default of spec.md §6's --show-all-disks flag.
func FilterRemovable(disks []Disk, showAll bool) []Disk {
	if showAll {
		return disks
	}
	var out []Disk
	for _, d := range disks {
		if d.Removable {
			out = append(out, d)
		}
	}
	return out
}
