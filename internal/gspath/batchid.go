// Copyright 2026 The Online Services Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gspath

import (
	"crypto/md5"
	"encoding/hex"
	"flag"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// Scope selects which part of a path a batch ID is derived from.
//
// Backfill markers have historically hashed the full path while the
// streaming handler hashes the last two segments. Both are kept addressable
// until it is settled which one downstream tables have persisted.
type Scope int

const (
	// ScopeFullPath hashes the whole "gs://..." path.
	ScopeFullPath Scope = iota
	// ScopeSuffix hashes the last two "/"-separated segments of the path.
	ScopeSuffix
)

var _ flag.Value = (*Scope)(nil)

func (s *Scope) String() string {
	if s != nil && *s == ScopeSuffix {
		return "suffix"
	}
	return "path"
}

// Set implements flag.Value.
func (s *Scope) Set(v string) error {
	switch v {
	case "path":
		*s = ScopeFullPath
	case "suffix":
		*s = ScopeSuffix
	default:
		return errors.Fmt("unknown batch ID scope %q, want \"path\" or \"suffix\"", v)
	}
	return nil
}

// BatchID returns the hex MD5 digest identifying the batch of events stored
// at p.
func BatchID(p Path, s Scope) string {
	in := string(p)
	if s == ScopeSuffix {
		in = suffix(in)
	}
	sum := md5.Sum([]byte(in))
	return hex.EncodeToString(sum[:])
}

func suffix(p string) string {
	segs := strings.Split(p, "/")
	if len(segs) > 2 {
		segs = segs[len(segs)-2:]
	}
	return strings.Join(segs, "/")
}
