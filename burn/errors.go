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
	"errors"
	"os"

	"github.com/ifd3f/caligula/ipc"
)

// classifyErr maps a raw I/O error to the ErrorKind taxonomy of spec.md
// §7: permission-denied errors get their own tag so the parent can offer
// to escalate; everything else is Unknown, message preserved for the log.
func classifyErr(err error) ipc.ErrorKind {
	if errors.Is(err, os.ErrPermission) {
		return ipc.ErrorKind{Tag: ipc.ErrPermissionDenied}
	}
	return ipc.NewUnknownError(err)
}
