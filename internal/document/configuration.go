// Package document models the remote configuration payload: a flat JSON
// object of arbitrary values with an optional integer version under "ver".
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// VersionKey is the payload field carrying the configuration version.
const VersionKey = "ver"

// NoVersion is the version of a payload without a usable "ver" field, and
// of a store that has not fetched anything yet.
const NoVersion = -1

var (
	// ErrMalformed is returned when the payload is not valid JSON.
	ErrMalformed = errors.New("malformed JSON payload")
	// ErrNotObject is returned when the payload is valid JSON but not an object.
	ErrNotObject = errors.New("payload is not a JSON object")
)

// Configuration is an immutable set of configuration values plus the
// version they were published under. The version key is not part of Values.
type Configuration struct {
	values  map[string]Value
	version int
	// payload holds the bytes Decode parsed, if any.
	payload []byte
}

// New builds a Configuration. A "ver" entry in values is dropped; pass the
// version explicitly.
func New(values map[string]Value, version int) Configuration {
	fields := cloneFields(values)
	delete(fields, VersionKey)
	return Configuration{values: fields, version: version}
}

// Empty returns a Configuration with no values and no version.
func Empty() Configuration {
	return Configuration{values: map[string]Value{}, version: NoVersion}
}

// Decode parses a raw payload. The payload must be a single JSON object.
func Decode(data []byte) (Configuration, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Configuration{}, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return Configuration{}, fmt.Errorf("%w: got %T", ErrNotObject, raw)
	}

	fields := make(map[string]Value, len(obj))
	for k, item := range obj {
		v, err := fromInterface(item)
		if err != nil {
			return Configuration{}, fmt.Errorf("%w: field %q: %v", ErrMalformed, k, err)
		}
		fields[k] = v
	}

	version := ParseVersion(fields[VersionKey])
	delete(fields, VersionKey)
	return Configuration{values: fields, version: version, payload: bytes.Clone(data)}, nil
}

// ParseVersion extracts an integer version from v. Anything that is not an
// integer literal within int range yields NoVersion, so "2.0" and "2e0"
// count as unversioned: publishers must write the version as a plain integer.
func ParseVersion(v Value) int {
	n, ok := v.AsInt()
	if !ok || n != int64(int(n)) {
		return NoVersion
	}
	return int(n)
}

// Encode serializes the configuration into payload form. A Configuration
// produced by Decode returns the decoded bytes verbatim. Otherwise the values
// are written with sorted keys and the version under "ver" unless it is
// NoVersion.
func (c Configuration) Encode() ([]byte, error) {
	if c.payload != nil {
		return bytes.Clone(c.payload), nil
	}
	fields := cloneFields(c.values)
	if c.version != NoVersion {
		fields[VersionKey] = Int(int64(c.version))
	}

	var buf bytes.Buffer
	if err := encodeFields(&buf, fields); err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	return buf.Bytes(), nil
}

// Version returns the configuration version, or NoVersion.
func (c Configuration) Version() int { return c.version }

// Values returns a copy of the configuration values.
func (c Configuration) Values() map[string]Value { return cloneFields(c.values) }

// Get returns a single value by key.
func (c Configuration) Get(key string) (Value, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of values.
func (c Configuration) Len() int { return len(c.values) }

// Equal reports whether both configurations carry the same version and
// structurally equal values.
func (c Configuration) Equal(o Configuration) bool {
	return c.version == o.version && fieldsEqual(c.values, o.values)
}
