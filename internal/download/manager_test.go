package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwatch/modwatch/internal/release"
	"github.com/modwatch/modwatch/internal/retry"
	"github.com/modwatch/modwatch/internal/testutil"
)

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{Retry: retry.Config{MaxAttempts: 1}}, testutil.NewTestLogger(t))
	m.SetClock((&steppingClock{now: time.Unix(1_700_000_000, 0), step: time.Second}).Now)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func TestDownload_Success(t *testing.T) {
	payload := bytes.Repeat([]byte("fs25"), 5000) // 20000 bytes
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	rec := &recorder{}
	dest := filepath.Join(t.TempDir(), "mods")

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/files/FS25_Tractor.zip", DestDir: dest}, rec)
	require.NoError(t, err)
	require.NoError(t, h.Wait())

	data, err := os.ReadFile(filepath.Join(dest, "FS25_Tractor.zip"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	events := rec.all()
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Kind)
	assert.Equal(t, filepath.Join(dest, "FS25_Tractor.zip"), last.Path)
	assert.NoError(t, last.Err)

	var prev int64
	progress := events[:len(events)-1]
	require.NotEmpty(t, progress)
	for _, e := range progress {
		assert.Equal(t, EventProgress, e.Kind)
		assert.Equal(t, h.ID, e.DownloadID)
		assert.Equal(t, int64(len(payload)), e.TotalBytes)
		assert.GreaterOrEqual(t, e.BytesTransferred, prev, "progress must be monotonic")
		assert.LessOrEqual(t, e.BytesTransferred-prev, int64(DefaultChunkSize))
		assert.Greater(t, e.Throughput, 0.0)
		assert.True(t, e.HasETA)
		prev = e.BytesTransferred
	}

	final := progress[len(progress)-1]
	assert.Equal(t, int64(len(payload)), final.BytesTransferred)
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, time.Duration(0), final.ETA)

	assert.Empty(t, m.Active())
}

func TestDownload_UnknownLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			w.Write(bytes.Repeat([]byte{'x'}, 100))
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	rec := &recorder{}

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/a.zip", DestDir: t.TempDir()}, rec)
	require.NoError(t, err)
	require.NoError(t, h.Wait())

	for _, e := range rec.all() {
		assert.Equal(t, int64(0), e.TotalBytes)
		assert.Equal(t, 0, e.Percent)
		assert.False(t, e.HasETA)
	}
}

func TestDownload_UpstreamRejectedWritesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	rec := &recorder{}
	dest := filepath.Join(t.TempDir(), "mods")

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/missing.zip", DestDir: dest}, rec)
	require.NoError(t, err)

	err = h.Wait()
	require.ErrorIs(t, err, release.ErrUpstreamRejected)
	assert.Equal(t, http.StatusNotFound, release.StatusCode(err))
	assert.False(t, testutil.FileExists(t, dest), "destination must not be created")

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, release.ErrUpstreamRejected)
}

func TestDownload_RetriesBusyMirror(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("archive"))
	}))
	t.Cleanup(server.Close)

	m := NewManager(Config{Retry: retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond}}, testutil.NewTestLogger(t))
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	dest := t.TempDir()

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/mod.zip", DestDir: dest}, nil)
	require.NoError(t, err)
	require.NoError(t, h.Wait())

	data, err := os.ReadFile(filepath.Join(dest, "mod.zip"))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestDownload_TruncatedBodyRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write(bytes.Repeat([]byte{'y'}, 5000))
		w.(http.Flusher).Flush()
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	rec := &recorder{}
	dest := t.TempDir()

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/big.zip", DestDir: dest}, rec)
	require.NoError(t, err)

	require.Error(t, h.Wait())
	assert.False(t, testutil.FileExists(t, filepath.Join(dest, "big.zip")))

	events := rec.all()
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
}

func TestDownload_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(bytes.Repeat([]byte{'z'}, DefaultChunkSize))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	dest := t.TempDir()

	firstChunk := make(chan struct{})
	var once sync.Once
	rec := &recorder{}
	observer := MultiObserver(rec, ObserverFunc(func(e Event) {
		if e.Kind == EventProgress {
			once.Do(func() { close(firstChunk) })
		}
	}))

	h, err := m.Download(context.Background(), Request{URL: server.URL + "/slow.zip", DestDir: dest}, observer)
	require.NoError(t, err)

	select {
	case <-firstChunk:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress before timeout")
	}
	require.NoError(t, m.Cancel(h.ID))

	err = h.Wait()
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, testutil.FileExists(t, filepath.Join(dest, "slow.zip")))

	events := rec.all()
	assert.Equal(t, EventCancelled, events[len(events)-1].Kind)

	assert.ErrorIs(t, m.Cancel(h.ID), ErrUnknownDownload)
}

func TestDownload_Unreachable(t *testing.T) {
	m := newTestManager(t)

	h, err := m.Download(context.Background(), Request{URL: "http://127.0.0.1:1/x.zip", DestDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, h.Wait(), release.ErrUnreachable)
}

func TestDownload_Validation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Download(ctx, Request{DestDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrNoAsset)

	for _, name := range []string{"../evil.zip", "a/b.zip", `a\b.zip`, "..", "."} {
		_, err := m.Download(ctx, Request{URL: "https://dl/x.zip", Name: name, DestDir: t.TempDir()}, nil)
		assert.ErrorIs(t, err, ErrInvalidAssetName, name)
	}

	_, err = m.Download(ctx, Request{URL: "https://dl/", DestDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrInvalidAssetName)

	_, err = m.Download(ctx, Request{URL: "https://dl/x.zip"}, nil)
	assert.ErrorIs(t, err, ErrNoDestination)

	assert.Empty(t, m.Active())
}

func TestManager_ShutdownCancelsActive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	m := NewManager(Config{Retry: retry.Config{MaxAttempts: 1}}, testutil.NopLogger())
	h, err := m.Download(context.Background(), Request{URL: server.URL + "/a.zip", DestDir: t.TempDir()}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.ErrorIs(t, h.Err(), ErrCancelled)

	_, err = m.Download(context.Background(), Request{URL: server.URL + "/b.zip", DestDir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestMeasure(t *testing.T) {
	e := Event{BytesTransferred: 2048, TotalBytes: 8192}
	measure(&e, 2*time.Second)

	assert.InDelta(t, 1024.0, e.Throughput, 0.001)
	assert.Equal(t, 25, e.Percent)
	assert.True(t, e.HasETA)
	assert.Equal(t, 6*time.Second, e.ETA)

	e = Event{BytesTransferred: 10}
	measure(&e, 0)
	assert.Equal(t, 0.0, e.Throughput)
	assert.False(t, e.HasETA)
	assert.Equal(t, 0, e.Percent)
}

func TestMultiObserver(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := MultiObserver(a, nil, b)
	obs.OnEvent(Event{Kind: EventComplete})

	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
	assert.True(t, EventComplete.Terminal())
	assert.False(t, EventProgress.Terminal())
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("FS25_Mod.zip"))
	assert.True(t, errors.Is(ValidateName(" "), ErrInvalidAssetName))
}

func TestDownload_ConcurrentSourcesRunIndependently(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 30000)

	var mu sync.Mutex
	arrived := 0
	bothArrived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrived++
		if arrived == 2 {
			close(bothArrived)
		}
		mu.Unlock()

		// Neither transfer may start until both requests are in flight.
		select {
		case <-bothArrived:
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	t.Cleanup(server.Close)

	m := newTestManager(t)
	dest := t.TempDir()
	recA, recB := &recorder{}, &recorder{}

	hA, err := m.Download(context.Background(), Request{SourceID: "https://github.com/a/a", URL: server.URL + "/a.zip", DestDir: dest}, recA)
	require.NoError(t, err)
	hB, err := m.Download(context.Background(), Request{SourceID: "https://github.com/b/b", URL: server.URL + "/b.zip", DestDir: dest}, recB)
	require.NoError(t, err)
	require.NotEqual(t, hA.ID, hB.ID)

	require.NoError(t, hA.Wait())
	require.NoError(t, hB.Wait())

	for name, tc := range map[string]struct {
		handle *Handle
		rec    *recorder
	}{"a.zip": {hA, recA}, "b.zip": {hB, recB}} {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Len(t, data, len(payload))

		events := tc.rec.all()
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.Equal(t, tc.handle.ID, e.DownloadID, "observer of %s saw another download's event", name)
		}
		assert.Equal(t, EventComplete, events[len(events)-1].Kind)
	}
}
