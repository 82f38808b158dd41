package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// The well-known addressing value meaning "visible to anyone".
const Public = "https://www.w3.org/ns/activitystreams#Public"

// Generic, schema-less ActivityStreams document (activity or object), as decoded from JSON.
//
// Values are the types produced by `encoding/json` with UseNumber: string, json.Number, bool, nil, map[string]any and []any. Numbers keep their original text, so large integer IDs survive a round trip. Accessors return "absent" instead of erroring on missing or mis-typed keys, and setters return a copy instead of modifying the receiver.
type Object map[string]any

// Parses a JSON document. The top level must be a single JSON object.
func ParseJSON(b []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("activity document is not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after activity document")
	}
	return Object(obj), nil
}

func (o Object) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Returns the "type" field, or empty string.
func (o Object) Type() string {
	t, _ := o.String("type")
	return t
}

// Returns the "id" field, or empty string.
func (o Object) ID() string {
	id, _ := o.String("id")
	return id
}

func (o Object) String(key string) (string, bool) {
	s, ok := o[key].(string)
	return s, ok
}

func (o Object) Bool(key string) (bool, bool) {
	b, ok := o[key].(bool)
	return b, ok
}

func (o Object) Map(key string) (Object, bool) {
	return AsObject(o[key])
}

func (o Object) List(key string) ([]any, bool) {
	l, ok := o[key].([]any)
	return l, ok
}

// Returns string elements of a list field, skipping any non-string elements. A bare string value is returned as a single-element list.
func (o Object) Strings(key string) []string {
	switch v := o[key].(type) {
	case string:
		return []string{v}
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Returns a shallow copy of the object with key set to val. The receiver is not modified.
func (o Object) Set(key string, val any) Object {
	out := make(Object, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[key] = normalize(val)
	return out
}

// Sets several keys at once; see Set.
func (o Object) SetAll(vals map[string]any) Object {
	out := make(Object, len(o)+len(vals))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range vals {
		out[k] = normalize(v)
	}
	return out
}

// Returns a deep copy of the object.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	return Object(cloneMap(o))
}

// Interprets an arbitrary value as an Object, if it is a map.
func AsObject(v any) (Object, bool) {
	switch m := v.(type) {
	case Object:
		return m, m != nil
	case map[string]any:
		return Object(m), m != nil
	}
	return nil, false
}

// nested Objects are stored as plain maps so that reflect.DeepEqual and JSON encoding behave the same as for freshly decoded documents
func normalize(val any) any {
	switch v := val.(type) {
	case Object:
		return map[string]any(v)
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []Object:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = map[string]any(m)
		}
		return out
	}
	return val
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case Object:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	}
	return val
}
