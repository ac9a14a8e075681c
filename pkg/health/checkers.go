package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is anything with a context-aware Ping, such as a pgx pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck returns a readiness CheckFunc that pings the given dependency.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck returns a liveness CheckFunc that fails once the
// process holds more than limit goroutines, which usually means a leak.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// GCPauseCheck returns a liveness CheckFunc that fails when any recorded GC
// stop-the-world pause exceeded limit. Long pauses point at memory pressure
// or an oversized heap.
func GCPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > limit {
				return errors.Errorf("GC pause %s, limit %s", pause, limit)
			}
		}
		return nil
	}
}
