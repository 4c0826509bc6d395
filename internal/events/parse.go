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

// Package events decodes event files and normalises events into warehouse
// rows.
package events

import (
	"bufio"
	"bytes"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"go.chromium.org/luci/common/errors"
)

// Payload is the decoded content of an event file.
type Payload struct {
	// Elements are the JSON values found in the file. Nil if the file is not
	// JSON.
	Elements []any
	// Raw is the text of a file that is not JSON.
	Raw string
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decompress gunzips data if it starts with the gzip magic number and
// returns it untouched otherwise.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Fmt("opening gzip stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Fmt("reading gzip stream: %w", err)
	}
	return out, nil
}

// Parse decodes an event file.
//
// A JSON object is a batch of one, a JSON array is a batch of its elements,
// and newline-delimited JSON is a batch of its lines. Anything else is
// returned as Raw.
func Parse(data []byte) (*Payload, error) {
	data, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	if v, err := decode(data); err == nil {
		switch v := v.(type) {
		case map[string]any:
			return &Payload{Elements: []any{v}}, nil
		case []any:
			return &Payload{Elements: v}, nil
		}
	}
	if elems, ok := decodeLines(data); ok {
		return &Payload{Elements: elems}, nil
	}
	return &Payload{Raw: string(data)}, nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data")
	}
	return v, nil
}

// decodeLines decodes newline-delimited JSON objects. It reports false if
// any non-blank line is not a JSON object or there are none.
func decodeLines(data []byte) ([]any, bool) {
	var out []any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := decode(line)
		if err != nil {
			return nil, false
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	if sc.Err() != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}
