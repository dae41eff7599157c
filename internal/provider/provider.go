// Package provider defines the fetch-and-normalize contract for upstream sources
// and resolves a source id to the single provider that claims it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modwatch/modwatch/internal/release"
)

// ErrAmbiguousSource is returned when more than one provider claims the same id.
var ErrAmbiguousSource = errors.New("source claimed by more than one provider")

// Provider fetches the latest release of one class of upstream source.
type Provider interface {
	// Kind returns the provider variant.
	Kind() release.Kind

	// Accepts reports whether the parsed source URL has this provider's shape.
	Accepts(u *url.URL) bool

	// Fetch retrieves and normalizes the latest upstream release.
	Fetch(ctx context.Context, id release.SourceID) (release.ReleaseInfo, error)
}

// Set is an immutable collection of providers with exclusive URL shapes.
type Set struct {
	providers []Provider
}

// NewSet creates a provider set.
func NewSet(providers ...Provider) *Set {
	return &Set{providers: providers}
}

// Resolve returns the provider that claims id.
func (s *Set) Resolve(id release.SourceID) (Provider, error) {
	u, err := ParseSourceURL(id)
	if err != nil {
		return nil, err
	}

	var match Provider
	for _, p := range s.providers {
		if !p.Accepts(u) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %s (%s, %s)", ErrAmbiguousSource, id, match.Kind(), p.Kind())
		}
		match = p
	}

	if match == nil {
		return nil, fmt.Errorf("%w: %s", release.ErrInvalidSource, id)
	}
	return match, nil
}

// Classify returns the provider kind for id.
func (s *Set) Classify(id release.SourceID) (release.Kind, error) {
	p, err := s.Resolve(id)
	if err != nil {
		return "", err
	}
	return p.Kind(), nil
}

// Validate returns nil when exactly one provider claims id.
func (s *Set) Validate(id release.SourceID) error {
	_, err := s.Resolve(id)
	return err
}

// ParseSourceURL parses id as an absolute URL.
func ParseSourceURL(id release.SourceID) (*url.URL, error) {
	raw := strings.TrimSpace(string(id))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", release.ErrInvalidSource)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", release.ErrInvalidSource, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s: missing scheme or host", release.ErrInvalidSource, raw)
	}
	return u, nil
}

// PathSegments splits a URL path on "/" after trimming the outer slashes.
// Inner empty segments are kept so callers can reject them.
func PathSegments(u *url.URL) []string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Host returns the lowercased host without a port.
func Host(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}
