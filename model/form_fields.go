/*
Copyright 2024 Docsync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Field is a single named form value.
type Field struct {
	Name  string
	Value string
}

// FormFields is an ordered mapping of field name to value. The order in which
// fields were captured is kept through JSON encoding and decoding.
type FormFields []Field

// NewFormFields builds FormFields from alternating name/value pairs.
// A trailing name without a value is ignored.
func NewFormFields(pairs ...string) FormFields {
	fields := make(FormFields, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields.Set(pairs[i], pairs[i+1])
	}
	return fields
}

// Get returns the value stored under name, or "" if absent.
func (f FormFields) Get(name string) string {
	for _, field := range f {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

// Has reports whether name is present.
func (f FormFields) Has(name string) bool {
	for _, field := range f {
		if field.Name == name {
			return true
		}
	}
	return false
}

// Set updates name in place when present, otherwise appends it.
func (f *FormFields) Set(name, value string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Name: name, Value: value})
}

// Names returns the field names in capture order.
func (f FormFields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Clone returns a copy that shares no backing array with f.
func (f FormFields) Clone() FormFields {
	if f == nil {
		return nil
	}
	out := make(FormFields, len(f))
	copy(out, f)
	return out
}

// Flatten returns the fields keyed by their snake_case column names,
// which is how the registration backend stores them.
func (f FormFields) Flatten() map[string]string {
	out := make(map[string]string, len(f))
	for _, field := range f {
		out[snakeCase(field.Name)] = field.Value
	}
	return out
}

func (f FormFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order. Scalar non-string values
// written by older clients are kept in their JSON text form; null becomes "".
func (f *FormFields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("form fields: expected object, got %v", tok)
	}

	fields := FormFields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("form fields: expected string key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("form fields: field %q: %w", key, err)
		}
		value, err := fieldValue(raw)
		if err != nil {
			return fmt.Errorf("form fields: field %q: %w", key, err)
		}
		fields.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = fields
	return nil
}

func fieldValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case trimmed[0] == '{', trimmed[0] == '[':
		return "", fmt.Errorf("nested values are not supported")
	default:
		return string(trimmed), nil
	}
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
