package core

import "strings"

// ZeroHash is sent by git hosts as "before" on a branch's first push and as
// "after" when a branch is deleted.
const ZeroHash = "0000000000000000000000000000000000000000"

// Revision is the pair of commits a push moved a registry between.
type Revision struct {
	Before  string `json:"before"`
	After   string `json:"after"`
	RepoURL string `json:"repository"`
}

// Changes lists the manifest paths a push reports, by kind.
type Changes struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Len returns the total number of paths.
func (c Changes) Len() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// PathFilter selects the paths that hold manifests.
type PathFilter interface {
	Match(path string) bool
}

// Filter keeps only the paths accepted by f.
func (c Changes) Filter(f PathFilter) Changes {
	keep := func(paths []string) []string {
		var out []string
		for _, p := range paths {
			if f.Match(p) {
				out = append(out, p)
			}
		}
		return out
	}
	return Changes{
		Added:    keep(c.Added),
		Removed:  keep(c.Removed),
		Modified: keep(c.Modified),
	}
}

// ManifestFile is the raw text of one registry file at one revision.
type ManifestFile struct {
	Path    string
	Content string
}

// ModifiedFile holds both sides of a modified registry file.
type ModifiedFile struct {
	Path     string
	Current  string
	Previous string
}

// RawDiff is the file content a push touched, before any parsing.
type RawDiff struct {
	Added    []ManifestFile
	Removed  []ManifestFile
	Modified []ModifiedFile
}

// PushEvent is the subset of a git-hosting push webhook the service consumes.
type PushEvent struct {
	Before     string        `json:"before"`
	After      string        `json:"after"`
	HeadCommit *HeadCommit   `json:"head_commit"`
	Repository RepositoryRef `json:"repository"`
}

// HeadCommit describes the files touched by the pushed head commit.
type HeadCommit struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
	Author   Author   `json:"author"`
}

// Author identifies who pushed the head commit. It is only logged.
type Author struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RepositoryRef locates the pushed repository.
type RepositoryRef struct {
	URL      string `json:"url"`
	CloneURL string `json:"clone_url,omitempty"`
}

// Revision returns the commit pair of the push. clone_url is preferred when the
// host sends it because url may point at the web page rather than the git remote.
func (p *PushEvent) Revision() Revision {
	url := p.Repository.CloneURL
	if url == "" {
		url = p.Repository.URL
	}
	return Revision{Before: p.Before, After: p.After, RepoURL: url}
}

// Changes returns the paths of the head commit accepted by f.
func (p *PushEvent) Changes(f PathFilter) Changes {
	if p.HeadCommit == nil {
		return Changes{}
	}
	c := Changes{
		Added:    p.HeadCommit.Added,
		Removed:  p.HeadCommit.Removed,
		Modified: p.HeadCommit.Modified,
	}
	if f == nil {
		return c
	}
	return c.Filter(f)
}

// SuffixFilter matches paths by file suffix.
type SuffixFilter string

// Match reports whether path ends with s.
func (s SuffixFilter) Match(path string) bool {
	return strings.HasSuffix(path, string(s))
}
