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

// Package hashsrc implements the source-image hash policy: parsing the
// -s/--hash CLI argument, discovering a sibling checksum file, and
// streaming-verifying a digest while the image is read. See spec.md §6
// ("Hash argument grammar", "Hash-file convention").
package hashsrc

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/pkg/errors"
)

// Algorithm identifies one of the supported digest algorithms, keyed by
// their canonical SRI-style name.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA224 Algorithm = "sha224"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// digestLen is the raw (undecoded) digest length in bytes for each
// algorithm, used both to validate an explicit alg-digest pair and to
// infer the algorithm from a bare digest's decoded length.
var digestLen = map[Algorithm]int{
	MD5:    16,
	SHA1:   20,
	SHA224: 28,
	SHA256: 32,
	SHA384: 48,
	SHA512: 64,
}

// newHash constructs the hash.Hash for an algorithm.
func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA224:
		return sha256.New224(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, errors.Errorf("hashsrc: unsupported algorithm %q", alg)
	}
}

// Policy discriminates the three non-digest hash arguments: prompt the
// user (Ask), verify nothing (Skip/None are synonyms spec.md treats
// identically), or verify against a concrete Spec.
type Policy int

const (
	PolicyAsk Policy = iota
	PolicySkip
	PolicyVerify
)

// HashSpec is the parsed result of the -s/--hash argument.
type HashSpec struct {
	Policy    Policy
	Algorithm Algorithm
	Digest    []byte // raw bytes, only set when Policy == PolicyVerify
}

// ParseHashArg implements spec.md §6's hash argument grammar:
// "ask" (prompt), "skip"/"none" (no verification), "<alg>-<b16|b64>"
// (SRI-style, algorithm explicit), or a bare base-16/base-64 digest whose
// algorithm is inferred from its decoded length.
func ParseHashArg(s string) (HashSpec, error) {
	switch strings.ToLower(s) {
	case "ask":
		return HashSpec{Policy: PolicyAsk}, nil
	case "skip", "none":
		return HashSpec{Policy: PolicySkip}, nil
	}

	if alg, rest, ok := strings.Cut(s, "-"); ok {
		if _, known := digestLen[Algorithm(strings.ToLower(alg))]; known {
			return parseExplicit(Algorithm(strings.ToLower(alg)), rest)
		}
	}

	return parseBareDigest(s)
}

// parseExplicit handles the "<alg>-<b16|b64>" SRI-style form, where the
// algorithm is already known and only the encoding needs to be guessed.
func parseExplicit(alg Algorithm, encoded string) (HashSpec, error) {
	digest, err := decodeDigest(encoded, digestLen[alg])
	if err != nil {
		return HashSpec{}, errors.Wrapf(err, "hashsrc: invalid %s digest %q", alg, encoded)
	}
	return HashSpec{Policy: PolicyVerify, Algorithm: alg, Digest: digest}, nil
}

// parseBareDigest handles a digest with no algorithm prefix: try both
// encodings and match the decoded length against the known algorithm
// table, per spec.md §6's "algorithm inferred from length" rule.
func parseBareDigest(s string) (HashSpec, error) {
	for _, decode := range []func(string) ([]byte, error){hex.DecodeString, decodeB64} {
		raw, err := decode(s)
		if err != nil {
			continue
		}
		for alg, n := range digestLen {
			if n == len(raw) {
				return HashSpec{Policy: PolicyVerify, Algorithm: alg, Digest: raw}, nil
			}
		}
	}
	return HashSpec{}, errors.Errorf("hashsrc: %q is not a recognized hash argument (ask/skip/none/alg-digest/bare digest)", s)
}

func decodeDigest(encoded string, wantLen int) ([]byte, error) {
	if raw, err := hex.DecodeString(encoded); err == nil && len(raw) == wantLen {
		return raw, nil
	}
	if raw, err := decodeB64(encoded); err == nil && len(raw) == wantLen {
		return raw, nil
	}
	return nil, errors.Errorf("digest %q does not decode to %d bytes in hex or base64", encoded, wantLen)
}

func decodeB64(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
