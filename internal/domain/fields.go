package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// protectedKeys are managed by the server and never accepted from input.
var protectedKeys = []string{"_id", "__v", "createdAt", "updatedAt", "createdBy", "companyId"}

// ProtectedKeys returns the reserved record keys.
func ProtectedKeys() []string {
	out := make([]string, len(protectedKeys))
	copy(out, protectedKeys)
	return out
}

// IsProtectedKey reports whether key is reserved.
func IsProtectedKey(key string) bool {
	for _, k := range protectedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Field is one business attribute of a record.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Fields is an ordered string to string mapping. It encodes as a JSON object
// and keeps the order keys were first seen in.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key in place, or appends it.
func (f Fields) Set(key, value string) Fields {
	for i := range f {
		if f[i].Key == key {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Key: key, Value: value})
}

// Merge returns a copy of f with every field in patch applied.
func (f Fields) Merge(patch Fields) Fields {
	out := make(Fields, len(f), len(f)+len(patch))
	copy(out, f)
	for _, field := range patch {
		out = out.Set(field.Key, field.Value)
	}
	return out
}

// Sanitize drops reserved keys. Duplicate keys collapse, last value wins.
func (f Fields) Sanitize() Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if IsProtectedKey(field.Key) {
			continue
		}
		out = out.Set(field.Key, field.Value)
	}
	return out
}

// Keys returns field names in order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f))
	for i, field := range f {
		keys[i] = field.Key
	}
	return keys
}

// MarshalJSON renders the fields as an object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string values, preserving key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("fields: expected object")
	}
	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("fields: expected string key")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("fields: %q must be a string: %w", key, err)
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}
