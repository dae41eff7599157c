// Package release defines the types and errors shared by the registry, the
// providers, the sync engine and the download manager.
package release

import (
	"net/url"
	"path"
	"strings"
)

// SourceID is the canonical URL of a tracked upstream source.
type SourceID string

// String returns the id as a plain string.
func (id SourceID) String() string {
	return string(id)
}

// Kind identifies which provider variant claims a source.
type Kind string

const (
	KindRepository Kind = "repository"
	KindCatalogMod Kind = "catalog-mod"
)

// ArchiveExtension is the suffix providers look for when picking the primary asset.
const ArchiveExtension = ".zip"

// ReleaseInfo is a snapshot of one upstream release.
// Optional fields are empty when upstream did not provide them.
type ReleaseInfo struct {
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	PublishedAt string `json:"publishedAt,omitempty"`
	AssetURL    string `json:"assetUrl,omitempty"`
	AssetName   string `json:"assetName,omitempty"`
	IsFresh     bool   `json:"isFresh"`
}

// SameArtifact reports whether two snapshots describe the same release for
// change detection. Only the version and the asset URL take part.
func (r ReleaseInfo) SameArtifact(other ReleaseInfo) bool {
	return r.Version == other.Version && r.AssetURL == other.AssetURL
}

// TrackedSource is a registered source with its current and previous release.
type TrackedSource struct {
	ID       SourceID     `json:"id"`
	Current  *ReleaseInfo `json:"current"`
	Previous *ReleaseInfo `json:"previous"`
}

// Clone returns a deep copy so callers never share release pointers with the registry.
func (t TrackedSource) Clone() TrackedSource {
	out := TrackedSource{ID: t.ID}
	if t.Current != nil {
		c := *t.Current
		out.Current = &c
	}
	if t.Previous != nil {
		p := *t.Previous
		out.Previous = &p
	}
	return out
}

// IsArchive reports whether name ends in the supported archive extension, ignoring case.
func IsArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ArchiveExtension)
}

// AssetNameFromURL derives the file name of an asset from its download URL.
func AssetNameFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		parts := strings.Split(raw, "/")
		return parts[len(parts)-1]
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
