// Package catalog tracks mods published on the Farming Simulator mod hub by
// scraping their mod pages.
package catalog

import (
	"context"
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
	modPagePath  = "/mod.php"
	modIDParam   = "mod_id"
	maxPageBytes = 8 << 20

	// DefaultUserAgent mimics a desktop browser; the mod hub serves reduced pages otherwise.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
)

// DefaultDomains lists the catalog domains accepted without configuration.
var DefaultDomains = []string{"farming-simulator.com"}

// Config holds catalog provider configuration.
type Config struct {
	// Domains are bare catalog domains; the "www." form is accepted too.
	Domains   []string
	UserAgent string
	Timeout   time.Duration
}

// Client is the catalog mod provider.
type Client struct {
	domains    map[string]struct{}
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ provider.Provider = (*Client)(nil)

// New creates a catalog provider.
func New(cfg Config, logger zerolog.Logger) *Client {
	domains := cfg.Domains
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	set := make(map[string]struct{}, len(domains)*2)
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		set[d] = struct{}{}
		set["www."+d] = struct{}{}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		domains:   set,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("provider", string(release.KindCatalogMod)).Logger(),
	}
}

// SetHTTPClient replaces the HTTP client used for page requests.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Kind() release.Kind {
	return release.KindCatalogMod
}

// Accepts matches <catalog-domain>/mod.php?...mod_id=...
func (c *Client) Accepts(u *url.URL) bool {
	if _, ok := c.domains[provider.Host(u)]; !ok {
		return false
	}
	if u.Path != modPagePath {
		return false
	}
	return u.Query().Has(modIDParam)
}

// Fetch downloads the mod page and extracts its release snapshot.
func (c *Client) Fetch(ctx context.Context, id release.SourceID) (release.ReleaseInfo, error) {
	u, err := provider.ParseSourceURL(id)
	if err != nil {
		return release.ReleaseInfo{}, err
	}
	if !c.Accepts(u) {
		return release.ReleaseInfo{}, fmt.Errorf("%w: %s is not a catalog mod url", release.ErrInvalidSource, id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return release.ReleaseInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return release.ReleaseInfo{}, release.Unreachable(u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return release.ReleaseInfo{}, &release.UpstreamError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	info, err := ParsePage(io.LimitReader(resp.Body, maxPageBytes), u)
	if err != nil {
		return release.ReleaseInfo{}, err
	}

	if info.Version == "" || info.AssetURL == "" {
		c.logger.Warn().
			Str("url", u.String()).
			Bool("hasVersion", info.Version != "").
			Bool("hasAsset", info.AssetURL != "").
			Msg("Mod page is missing release fields")
	} else {
		c.logger.Debug().
			Str("url", u.String()).
			Str("name", info.DisplayName).
			Str("version", info.Version).
			Msg("Parsed mod page")
	}

	return info, nil
}
