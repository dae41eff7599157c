// Package retry re-attempts opening artifact transfers that failed for a
// transient reason.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/modwatch/modwatch/internal/release"
)

// Config bounds how often and how patiently an operation is re-attempted.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig is tuned for CDN hosted archives: a failed connect or a busy
// mirror usually recovers within seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based). The base
// delay doubles with every attempt and is capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 || c.BaseDelay <= 0 {
		return 0
	}
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// TransientStatus reports whether an upstream status is worth asking again.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Transient reports whether err may succeed on a later attempt: a transport
// failure, a dropped connection, or a transient upstream status.
// Cancellation and deadlines of the caller's context never are.
func Transient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	if code := release.StatusCode(err); code != 0 {
		return TransientStatus(code)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Do calls fn until it succeeds, fails permanently, or MaxAttempts is spent.
// The last error is returned unchanged.
func Do(ctx context.Context, cfg Config, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Succeeded after retry")
			}
			return nil
		}
		if attempt >= attempts || !Transient(err) {
			return err
		}

		wait := cfg.Delay(attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("retryIn", wait).
			Msg("Transient failure, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
