// Package rate limita intentos por clave con ventanas fijas sobre un
// contador compartido (cache memory o redis).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Counter es un contador con expiración. cache.Client lo implementa.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// FixedWindow: fixed window sencillo (INCR + EXPIRE)
type FixedWindow struct {
	counter Counter
	prefix  string
	max     int64
	window  time.Duration
	clock   clock.Clock
}

func NewFixedWindow(c Counter, prefix string, max int, window time.Duration, clk clock.Clock) *FixedWindow {
	if prefix == "" {
		prefix = "rl"
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &FixedWindow{
		counter: c,
		prefix:  prefix,
		max:     int64(max),
		window:  window,
		clock:   clk,
	}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.clock.Now().UTC().Truncate(l.window)
	k := fmt.Sprintf("%s:%s:%d", l.prefix, strings.ReplaceAll(strings.ToLower(key), " ", "_"), winStart.Unix())

	hits, ttl, err := l.counter.Incr(ctx, k, l.window)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   max(l.max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		// resto de la ventana
		res.RetryAfter = ttl
		if res.RetryAfter <= 0 {
			res.RetryAfter = winStart.Add(l.window).Sub(l.clock.Now().UTC())
		}
	}
	return res, nil
}
