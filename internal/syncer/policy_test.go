package syncer

import (
	"testing"

	"github.com/modwatch/modwatch/internal/release"
)

func TestRotate(t *testing.T) {
	tests := []struct {
		name        string
		current     *release.ReleaseInfo
		fetched     release.ReleaseInfo
		wantChanged bool
		wantCurrent release.ReleaseInfo
		wantPrev    *release.ReleaseInfo
	}{
		{
			name:        "never synced",
			fetched:     release.ReleaseInfo{Version: "1"},
			wantChanged: true,
			wantCurrent: release.ReleaseInfo{Version: "1", IsFresh: true},
		},
		{
			name:        "new version",
			current:     &release.ReleaseInfo{Version: "1", AssetURL: "a"},
			fetched:     release.ReleaseInfo{Version: "2", AssetURL: "a"},
			wantChanged: true,
			wantCurrent: release.ReleaseInfo{Version: "2", AssetURL: "a", IsFresh: true},
			wantPrev:    &release.ReleaseInfo{Version: "1", AssetURL: "a"},
		},
		{
			name:        "same artifact clears fresh",
			current:     &release.ReleaseInfo{Version: "1", AssetURL: "a", IsFresh: true},
			fetched:     release.ReleaseInfo{Version: "1", AssetURL: "a", PublishedAt: "later"},
			wantCurrent: release.ReleaseInfo{Version: "1", AssetURL: "a"},
		},
		{
			name:        "asset dropped",
			current:     &release.ReleaseInfo{Version: "1", AssetURL: "a"},
			fetched:     release.ReleaseInfo{Version: "1"},
			wantChanged: true,
			wantCurrent: release.ReleaseInfo{Version: "1", IsFresh: true},
			wantPrev:    &release.ReleaseInfo{Version: "1", AssetURL: "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &release.TrackedSource{ID: "x", Current: tt.current}

			if got := Rotate(src, tt.fetched); got != tt.wantChanged {
				t.Errorf("Rotate() = %v, want %v", got, tt.wantChanged)
			}
			if *src.Current != tt.wantCurrent {
				t.Errorf("Current = %+v, want %+v", *src.Current, tt.wantCurrent)
			}
			switch {
			case tt.wantPrev == nil && src.Previous != nil:
				t.Errorf("Previous = %+v, want nil", *src.Previous)
			case tt.wantPrev != nil && (src.Previous == nil || *src.Previous != *tt.wantPrev):
				t.Errorf("Previous = %+v, want %+v", src.Previous, *tt.wantPrev)
			}
		})
	}
}

func TestRotate_PreviousIsACopy(t *testing.T) {
	current := &release.ReleaseInfo{Version: "1"}
	src := &release.TrackedSource{ID: "x", Current: current}

	Rotate(src, release.ReleaseInfo{Version: "2"})
	current.Version = "mutated"

	if src.Previous.Version != "1" {
		t.Errorf("Previous aliases the old current: %q", src.Previous.Version)
	}
}
