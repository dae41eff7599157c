// Package github tracks GitHub repositories through the latest-release API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/provider"
	"github.com/modwatch/modwatch/internal/release"
)

const (
	DefaultAPIURL = "https://api.github.com"
	githubHost    = "github.com"
	acceptHeader  = "application/vnd.github+json"
)

// Config holds GitHub provider configuration.
type Config struct {
	APIURL    string
	UserAgent string
	Timeout   time.Duration
}

type githubRelease struct {
	TagName     string        `json:"tag_name"`
	PublishedAt string        `json:"published_at"`
	Assets      []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Client is the repository provider.
type Client struct {
	apiURL     string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ provider.Provider = (*Client)(nil)

// New creates a GitHub provider.
func New(cfg Config, logger zerolog.Logger) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:    apiURL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("provider", string(release.KindRepository)).Logger(),
	}
}

// SetHTTPClient replaces the HTTP client used for API calls.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Kind() release.Kind {
	return release.KindRepository
}

// Accepts matches github.com/<owner>/<repo>[/...] with both segments non-empty.
func (c *Client) Accepts(u *url.URL) bool {
	_, _, ok := ParseRepository(u)
	return ok
}

// ParseRepository extracts owner and repo from a github.com URL.
func ParseRepository(u *url.URL) (owner, repo string, ok bool) {
	if provider.Host(u) != githubHost {
		return "", "", false
	}
	segments := provider.PathSegments(u)
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", false
	}
	return segments[0], segments[1], true
}

// Fetch queries the latest release of the repository.
func (c *Client) Fetch(ctx context.Context, id release.SourceID) (release.ReleaseInfo, error) {
	u, err := provider.ParseSourceURL(id)
	if err != nil {
		return release.ReleaseInfo{}, err
	}
	owner, repo, ok := ParseRepository(u)
	if !ok {
		return release.ReleaseInfo{}, fmt.Errorf("%w: %s is not a repository url", release.ErrInvalidSource, id)
	}

	latest, err := c.fetchLatestRelease(ctx, owner, repo)
	if err != nil {
		return release.ReleaseInfo{}, err
	}

	info := release.ReleaseInfo{
		DisplayName: repo,
		Version:     latest.TagName,
		PublishedAt: latest.PublishedAt,
	}
	if asset := findArchiveAsset(latest.Assets); asset != nil {
		info.AssetURL = asset.BrowserDownloadURL
		info.AssetName = asset.Name
	}

	c.logger.Debug().
		Str("repo", owner+"/"+repo).
		Str("version", info.Version).
		Str("asset", info.AssetName).
		Msg("Fetched latest release")

	return info, nil
}

func (c *Client) fetchLatestRelease(ctx context.Context, owner, repo string) (*githubRelease, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiURL, url.PathEscape(owner), url.PathEscape(repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, release.Unreachable(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &release.UpstreamError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	var latest githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, fmt.Errorf("%w: decoding release for %s/%s: %w", release.ErrMalformedUpstream, owner, repo, err)
	}

	return &latest, nil
}

func findArchiveAsset(assets []githubAsset) *githubAsset {
	for i := range assets {
		if release.IsArchive(assets[i].Name) {
			return &assets[i]
		}
	}
	return nil
}
