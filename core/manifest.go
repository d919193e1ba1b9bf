package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Manifest is one registry file: a named, ordered list of entries.
type Manifest struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"commands"`
}

// Verdict is the outcome of ValidateManifest.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type rawManifest struct {
	Name     *string     `json:"name"`
	Commands *[]rawEntry `json:"commands"`
}

// ParseManifest decodes a registry file. Unknown fields are ignored; missing
// required fields and wrong types fail with MalformedManifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewError(MalformedManifest, describeJSONError(err), err)
	}
	if raw.Name == nil {
		return nil, NewError(MalformedManifest, "missing field `name`", nil)
	}
	if raw.Commands == nil {
		return nil, NewError(MalformedManifest, "missing field `commands`", nil)
	}

	m := &Manifest{Name: *raw.Name, Entries: make([]Entry, 0, len(*raw.Commands))}
	for i, re := range *raw.Commands {
		entry, reason := re.entry()
		if reason != "" {
			return nil, NewError(MalformedManifest, fmt.Sprintf("commands[%d]: %s", i, reason), nil)
		}
		m.Entries = append(m.Entries, entry)
	}
	return m, nil
}

// ValidateManifest checks an arbitrary document against the manifest schema
// without side effects.
func ValidateManifest(data []byte) Verdict {
	if _, err := ParseManifest(data); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return Verdict{Valid: false, Reason: e.Message}
		}
		return Verdict{Valid: false, Reason: err.Error()}
	}
	return Verdict{Valid: true}
}

func describeJSONError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("invalid JSON at offset %d: %s", syntaxErr.Offset, syntaxErr.Error())
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			return fmt.Sprintf("invalid type: expected an object, got %s", typeErr.Value)
		}
		return fmt.Sprintf("invalid type for field `%s`: expected %s, got %s", field, kindName(typeErr.Type), typeErr.Value)
	default:
		return fmt.Sprintf("invalid JSON: %v", err)
	}
}

func kindName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	default:
		return t.Kind().String()
	}
}
