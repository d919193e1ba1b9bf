// Package core holds the registry data model shared by every other package.
//
// A registry is a git repository of JSON manifests. Each manifest names a list
// of entries (CLI invocations with a description and optional placeholders).
// Entries are compared by full value when diffing two revisions, but are keyed
// in the vector index by an identity derived from the invocation alone:
//
//   - Entry.Equal / Entry.Key: full-value equality, drives the diff
//   - Identity / Entry.ID: UUIDv5 of the invocation, drives storage
//
// A description change therefore shows up in a diff as one removed and one
// added entry that share the same storage identity.
package core
