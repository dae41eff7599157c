package syncer

import "github.com/modwatch/modwatch/internal/release"

// Rotate applies a fetched release to src and reports whether it changed.
//
// Only (version, assetUrl) decide change. On change, previous becomes a copy
// of current and fetched becomes current with IsFresh set. Otherwise current
// is kept as is, with IsFresh cleared.
func Rotate(src *release.TrackedSource, fetched release.ReleaseInfo) bool {
	if src.Current != nil && src.Current.SameArtifact(fetched) {
		src.Current.IsFresh = false
		return false
	}

	if src.Current != nil {
		prev := *src.Current
		src.Previous = &prev
	}
	fetched.IsFresh = true
	src.Current = &fetched
	return true
}
