// Package gitrev reads registry manifests at the two revisions of a push.
//
// An Extractor clones the registry repository into a Workspace, resolves the
// before and after commits and returns the text of every changed manifest at
// the revisions that matter for its change kind. Every failure is fatal to the
// reconciliation and happens before the index is touched.
package gitrev
