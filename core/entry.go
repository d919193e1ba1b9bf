package core

import (
	"encoding/json"
	"fmt"
)

// Placeholder documents one templated argument of an invocation.
type Placeholder struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Entry is one command definition and the unit of indexing.
//
// Two entries are equal only when every field matches, including the order of
// placeholders and whether placeholders were given at all. Storage identity is
// narrower: it derives from Invocation alone (see Identity).
type Entry struct {
	Invocation   string        `json:"command"`
	Description  string        `json:"description"`
	Placeholders []Placeholder `json:"placeholders"`
}

// ID returns the storage identity of the entry.
func (e Entry) ID() string {
	return Identity(e.Invocation)
}

// Equal reports full-value equality.
func (e Entry) Equal(other Entry) bool {
	if e.Invocation != other.Invocation || e.Description != other.Description {
		return false
	}
	if (e.Placeholders == nil) != (other.Placeholders == nil) {
		return false
	}
	if len(e.Placeholders) != len(other.Placeholders) {
		return false
	}
	for i := range e.Placeholders {
		if e.Placeholders[i] != other.Placeholders[i] {
			return false
		}
	}
	return true
}

// Key returns a canonical encoding of the entry. Key(a) == Key(b) iff a.Equal(b).
func (e Entry) Key() string {
	// Marshalling a struct of strings cannot fail.
	b, _ := json.Marshal(e)
	return string(b)
}

// EmbeddingText is the projection embedded for indexing: command and intent together.
func (e Entry) EmbeddingText() string {
	return fmt.Sprintf("%s : %s", e.Invocation, e.Description)
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	return e.EmbeddingText()
}

// Payload serializes the entry into the structured document attached to an index record.
// A nil placeholder list is omitted so that it decodes back to nil.
func (e Entry) Payload() map[string]any {
	payload := map[string]any{
		"command":     e.Invocation,
		"description": e.Description,
	}
	if e.Placeholders != nil {
		items := make([]any, 0, len(e.Placeholders))
		for _, p := range e.Placeholders {
			items = append(items, map[string]any{
				"name":        p.Name,
				"description": p.Description,
			})
		}
		payload["placeholders"] = items
	}
	return payload
}

// DecodePayload turns an index payload back into an Entry.
func DecodePayload(payload map[string]any) (Entry, error) {
	if payload == nil {
		return Entry{}, NewError(MalformedPayload, "empty payload", nil)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, NewError(MalformedPayload, "payload is not serializable", err)
	}
	entry, err := DecodeEntry(b)
	if err != nil {
		return Entry{}, NewError(MalformedPayload, "payload does not hold an entry", err)
	}
	return entry, nil
}

// DecodeEntry parses a single JSON entry with the same strictness as ParseManifest.
func DecodeEntry(data []byte) (Entry, error) {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, NewError(MalformedManifest, describeJSONError(err), err)
	}
	entry, reason := raw.entry()
	if reason != "" {
		return Entry{}, NewError(MalformedManifest, reason, nil)
	}
	return entry, nil
}

type rawPlaceholder struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type rawEntry struct {
	Command      *string           `json:"command"`
	Description  *string           `json:"description"`
	Placeholders *[]rawPlaceholder `json:"placeholders"`
}

// entry converts the raw form, returning a non-empty reason when a required field is missing.
func (r rawEntry) entry() (Entry, string) {
	if r.Command == nil {
		return Entry{}, "missing field `command`"
	}
	if r.Description == nil {
		return Entry{}, "missing field `description`"
	}
	entry := Entry{Invocation: *r.Command, Description: *r.Description}
	if r.Placeholders == nil {
		return entry, ""
	}
	entry.Placeholders = make([]Placeholder, 0, len(*r.Placeholders))
	for i, p := range *r.Placeholders {
		if p.Name == nil {
			return Entry{}, fmt.Sprintf("placeholders[%d]: missing field `name`", i)
		}
		if p.Description == nil {
			return Entry{}, fmt.Sprintf("placeholders[%d]: missing field `description`", i)
		}
		entry.Placeholders = append(entry.Placeholders, Placeholder{Name: *p.Name, Description: *p.Description})
	}
	return entry, ""
}
