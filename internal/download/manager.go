// Package download streams release artifacts to disk with progress reporting
// and cooperative cancellation.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/retry"
)

// DefaultChunkSize is the read size per progress step.
const DefaultChunkSize = 8192

var (
	ErrNoAsset          = errors.New("release has no downloadable asset")
	ErrInvalidAssetName = errors.New("invalid asset name")
	ErrNoDestination    = errors.New("no destination directory")
	ErrUnknownDownload  = errors.New("unknown download")
	ErrCancelled        = errors.New("download cancelled")
	ErrShuttingDown     = errors.New("download manager is shutting down")
)

// Request describes one artifact transfer. Name defaults to the last path
// segment of URL.
type Request struct {
	SourceID release.SourceID
	URL      string
	Name     string
	DestDir  string
}

// Config holds download manager settings.
type Config struct {
	ChunkSize int
	Timeout   time.Duration
	Retry     retry.Config
	UserAgent string
}

// Manager runs downloads on their own goroutines.
type Manager struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active map[string]*Handle
	closed bool
}

// NewManager creates a download manager.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	// Timeout bounds response headers, not the body.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		client:     &http.Client{Transport: transport},
		logger:     logger.With().Str("component", "download").Logger(),
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		active:     make(map[string]*Handle),
	}
}

// SetHTTPClient replaces the HTTP client used for transfers.
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.client = client
}

// SetClock replaces the time source used for throughput and ETA.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Download validates req and starts the transfer in the background. The
// returned handle tracks it. Validation errors are returned synchronously and
// nothing is started.
func (m *Manager) Download(ctx context.Context, req Request, observer Observer) (*Handle, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, ErrNoAsset
	}
	if req.Name == "" {
		req.Name = release.AssetNameFromURL(req.URL)
	}
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if req.DestDir == "" {
		return nil, ErrNoDestination
	}
	if observer == nil {
		observer = nopObserver{}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}

	transferCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.baseCtx, cancel)

	h := &Handle{
		ID:        uuid.NewString(),
		Request:   req,
		Path:      filepath.Join(req.DestDir, req.Name),
		StartedAt: m.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.active[h.ID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info().
		Str("downloadId", h.ID).
		Str("source", req.SourceID.String()).
		Str("url", req.URL).
		Str("path", h.Path).
		Msg("Download started")

	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		m.run(transferCtx, h, observer)
	}()

	return h, nil
}

// Active returns the state of every running download.
func (m *Manager) Active() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.active))
	for _, h := range m.active {
		out = append(out, h.Status())
	}
	return out
}

// Get returns a running download by id.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.active[id]
	return h, ok
}

// Cancel requests cancellation of a running download.
func (m *Manager) Cancel(id string) error {
	h, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDownload, id)
	}
	h.Cancel()
	return nil
}

// Shutdown cancels every running download and waits for them to clean up,
// or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, h *Handle, observer Observer) {
	logger := m.logger.With().Str("downloadId", h.ID).Str("path", h.Path).Logger()

	err := m.transfer(ctx, h, observer, logger)

	final := h.snapshotEvent()
	final.Path = h.Path
	switch {
	case err == nil:
		final.Kind = EventComplete
		logger.Info().Int64("bytes", final.BytesTransferred).Msg("Download complete")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
		final.Kind = EventCancelled
		final.Err = err
		logger.Warn().Int64("bytes", final.BytesTransferred).Msg("Download cancelled")
	default:
		final.Kind = EventFailed
		final.Err = err
		logger.Error().Err(err).Int64("bytes", final.BytesTransferred).Msg("Download failed")
	}

	m.mu.Lock()
	delete(m.active, h.ID)
	m.mu.Unlock()

	observer.OnEvent(final)
	h.finish(err)
}

func (m *Manager) transfer(ctx context.Context, h *Handle, observer Observer, logger zerolog.Logger) error {
	resp, err := m.open(ctx, h.Request.URL, logger)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &release.UpstreamError{URL: h.Request.URL, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	h.setProgress(0, total)

	if err := os.MkdirAll(h.Request.DestDir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	file, err := os.Create(h.Path)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}

	if err := m.copyChunks(ctx, h, resp.Body, file, total, observer); err != nil {
		file.Close()
		removePartial(h.Path, logger)
		return err
	}

	if err := file.Close(); err != nil {
		removePartial(h.Path, logger)
		return fmt.Errorf("failed to close download file: %w", err)
	}
	return nil
}

func (m *Manager) open(ctx context.Context, rawURL string, logger zerolog.Logger) (*http.Response, error) {
	var resp *http.Response
	transportFailed := false

	err := retry.Do(ctx, m.cfg.Retry, logger, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create download request: %w", err)
		}
		if m.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", m.cfg.UserAgent)
		}
		resp, err = m.client.Do(req)
		transportFailed = err != nil
		if err != nil {
			return err
		}
		if retry.TransientStatus(resp.StatusCode) {
			resp.Body.Close()
			return &release.UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if transportFailed {
			return nil, release.Unreachable(rawURL, err)
		}
		return nil, err
	}
	return resp, nil
}

func (m *Manager) copyChunks(ctx context.Context, h *Handle, src io.Reader, dst io.Writer, total int64, observer Observer) error {
	buf := make([]byte, m.cfg.ChunkSize)
	var transferred int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write download: %w", err)
			}
			transferred += int64(n)
			h.setProgress(transferred, total)

			e := h.snapshotEvent()
			e.Kind = EventProgress
			measure(&e, m.now().Sub(h.StartedAt))
			h.setRates(e)
			observer.OnEvent(e)
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("download read error: %w", readErr)
		}
	}
}

func removePartial(path string, logger zerolog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("Failed to remove partial download")
	}
}

// ValidateName rejects names that are empty or would escape the destination
// directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	case filepath.Base(name) != name, filepath.IsAbs(name), filepath.VolumeName(name) != "":
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
