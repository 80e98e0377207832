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
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// hashFileNames is the 24-name convention of spec.md §6: one name per
// algorithm, in both singular and plural form, and both cases.
var hashFileNames = func() []string {
	algs := []string{"md5", "sha1", "sha224", "sha256", "sha384", "sha512"}
	var names []string
	for _, a := range algs {
		names = append(names,
			a+"sum.txt", a+"sums.txt",
			strings.ToUpper(a)+"SUM.txt", strings.ToUpper(a)+"SUMS.txt",
		)
	}
	return names
}()

// algorithmForFileName recovers the Algorithm a hash-file's own name
// implies, so FindHashFile's caller knows which digest algorithm the
// parsed entry is in.
func algorithmForFileName(name string) Algorithm {
	lower := strings.ToLower(name)
	for _, alg := range []Algorithm{MD5, SHA1, SHA224, SHA256, SHA384, SHA512} {
		if strings.HasPrefix(lower, string(alg)) {
			return alg
		}
	}
	return ""
}

// FindHashFile looks in imagePath's directory for one of the 24
// recognized checksum-file names and, if found, parses it for a line
// naming imagePath's basename. Returns ok=false (no error) when no
// recognized file exists or none of its lines reference this image.
func FindHashFile(imagePath string) (HashSpec, bool, error) {
	dir := filepath.Dir(imagePath)
	base := filepath.Base(imagePath)

	for _, name := range hashFileNames {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return HashSpec{}, false, errors.Wrapf(err, "hashsrc: failed to open %s", path)
		}

		digest, found, err := scanForEntry(f, base)
		f.Close()
		if err != nil {
			return HashSpec{}, false, err
		}
		if !found {
			continue
		}

		alg := algorithmForFileName(name)
		raw, err := decodeDigest(digest, digestLen[alg])
		if err != nil {
			return HashSpec{}, false, errors.Wrapf(err, "hashsrc: malformed digest for %s in %s", base, path)
		}
		return HashSpec{Policy: PolicyVerify, Algorithm: alg, Digest: raw}, true, nil
	}

	return HashSpec{}, false, nil
}

// scanForEntry parses "<hex-digest> <whitespace> <filename>" lines and
// returns the digest for the line whose filename matches want.
// Coreutils-style sum files mark binary mode with a "*" before the
// filename; it's stripped before comparing.
func scanForEntry(r *os.File, want string) (string, bool, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		digest := fields[0]
		name := strings.TrimPrefix(strings.Join(fields[1:], " "), "*")
		if name == want {
			return digest, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, errors.Wrap(err, "hashsrc: failed to scan hash file")
	}
	return "", false, nil
}
