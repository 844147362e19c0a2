// Copyright 2026 The IPC Fabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire implements the framed JSON message codec described in
// spec.md §4.1: concatenated JSON objects with no separator other than
// "}{", CR/LF-insensitive, plus streaming reassembly so a transport can
// hand the codec arbitrarily-split reads.
package wire

import (
	"encoding/json"
	"strings"
)

// Decode interprets data as a run of concatenated frame objects and
// returns one Frame per element, normalizing missing fields to null. It
// never returns an error: malformed input yields a single synthetic
// error frame instead, per spec.md §4.1.
func Decode(data []byte) []Frame {
	s := stripCRLF(string(data))
	s = strings.ReplaceAll(s, "}{", "},{")
	wrapped := "[" + s + "]"

	var v interface{}
	if err := json.Unmarshal([]byte(wrapped), &v); err != nil {
		return []Frame{errorFrame(ErrCodeNotJSON)}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return []Frame{errorFrame(ErrCodeNotArray)}
	}

	frames := make([]Frame, 0, len(arr))
	for _, elem := range arr {
		frames = append(frames, normalize(elem))
	}
	return frames
}

// Encode serializes f with nulls standing in for any nil field, matching
// spec.md §4.1's "Encode" paragraph. json.RawMessage's own MarshalJSON
// already renders a nil Data as null, so a direct marshal suffices.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Prepare builds and encodes a frame from the (data) call shape.
func Prepare(data interface{}) ([]byte, error) {
	f, err := New(nil, nil, data, nil)
	if err != nil {
		return nil, err
	}
	return Encode(f)
}

// PrepareCmd builds and encodes a frame from the (command, data) shape.
func PrepareCmd(command string, data interface{}) ([]byte, error) {
	f, err := New(nil, Str(command), data, nil)
	if err != nil {
		return nil, err
	}
	return Encode(f)
}

// PrepareTo builds and encodes a frame from the (id, command, data) shape.
func PrepareTo(id, command string, data interface{}) ([]byte, error) {
	f, err := New(Str(id), Str(command), data, nil)
	if err != nil {
		return nil, err
	}
	return Encode(f)
}

// PrepareDelivery builds and encodes a frame from the full (id, command,
// data, delivery) shape.
func PrepareDelivery(id, command string, data interface{}, delivery string) ([]byte, error) {
	f, err := New(Str(id), Str(command), data, Str(delivery))
	if err != nil {
		return nil, err
	}
	return Encode(f)
}

func stripCRLF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func errorFrame(code int) Frame {
	raw, _ := json.Marshal(code)
	return Frame{ID: nil, Command: Str(CmdError), Data: raw, Delivery: nil}
}

func normalize(elem interface{}) Frame {
	m, ok := elem.(map[string]interface{})
	if !ok {
		raw, _ := json.Marshal(elem)
		if raw == nil {
			raw = json.RawMessage("null")
		}
		return Frame{Data: raw}
	}
	f := Frame{
		ID:       stringField(m, "id"),
		Command:  stringField(m, "command"),
		Delivery: stringField(m, "delivery"),
	}
	if raw, present := m["data"]; present {
		b, err := json.Marshal(raw)
		if err == nil {
			f.Data = b
		}
	}
	if f.Data == nil {
		f.Data = json.RawMessage("null")
	}
	return f
}

func stringField(m map[string]interface{}, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
