package db

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Backoff controls how Connect retries a database that is not reachable yet.
type Backoff struct {
	Attempts int           // total attempts, including the first
	Initial  time.Duration // delay before the first retry
	Max      time.Duration // upper bound for any delay
	Jitter   float64       // ±fraction of each delay
}

// DefaultBackoff suits a PostGIS container that is still starting.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 5, Initial: 250 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.25}
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(2, float64(attempt))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// isTransient reports whether err looks like a database that is not
// accepting connections yet.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset by peer",
		"the database system is starting up",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx is done. The last error is returned.
func withRetry(ctx context.Context, b Backoff, op string, fn func(context.Context) error) error {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransient(err) || attempt == b.Attempts-1 {
			return err
		}

		zap.L().Warn("db: retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
