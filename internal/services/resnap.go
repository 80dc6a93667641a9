package services

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/jonboulle/clockwork"

	"github.com/openroads/corridor/internal/lib/event"
)

// ResnapSummary reports the outcome of a batch re-snap run.
type ResnapSummary struct {
	Total           int                  `json:"total"`
	BySource        map[event.Source]int `json:"bySource"`
	Failures        int                  `json:"failures"`
	RateLimitPauses int                  `json:"rateLimitPauses"`
}

// Resnapper re-resolves a batch of event locations, typically after a
// corridor refresh invalidated previously derived geometry. Items run
// sequentially with a fixed delay so that the external providers behind the
// resolver are never hammered; a rate-limit response triggers one longer
// pause and a single retry of the item.
type Resnapper struct {
	resolver *Resolver
	delay    time.Duration
	backoff  time.Duration
	clock    clockwork.Clock
}

// NewResnapper builds a batch job around an existing resolver.
func NewResnapper(resolver *Resolver, delay, backoff time.Duration) *Resnapper {
	return &Resnapper{
		resolver: resolver,
		delay:    delay,
		backoff:  backoff,
		clock:    clockwork.NewRealClock(),
	}
}

// SetClock swaps the wall clock, for tests.
func (j *Resnapper) SetClock(clock clockwork.Clock) { j.clock = clock }

// Run resolves every location in order. Per-item failures are counted, not
// fatal; the run stops early only when the context is cancelled.
func (j *Resnapper) Run(ctx context.Context, locations []event.Location) ([]event.Resolved, ResnapSummary, error) {
	summary := ResnapSummary{BySource: make(map[event.Source]int)}
	var resolved []event.Resolved

	for i, loc := range locations {
		if i > 0 {
			if err := j.pause(ctx, j.delay); err != nil {
				return resolved, summary, err
			}
		}

		res, err := j.resolver.Resolve(ctx, loc)
		if err != nil {
			summary.Total++
			summary.Failures++
			logging.Warnw(ctx, "Re-snap failed", "event", loc.ID, "error", err)
			continue
		}

		if res.RateLimited {
			summary.RateLimitPauses++
			logging.Infow(ctx, "Provider rate limited, backing off",
				"event", loc.ID, "backoff", j.backoff)
			if err := j.pause(ctx, j.backoff); err != nil {
				return resolved, summary, err
			}
			if retried, err := j.resolver.Resolve(ctx, loc); err == nil {
				res = retried
			}
		}

		summary.Total++
		summary.BySource[res.GeometrySource]++
		resolved = append(resolved, res)
	}

	logging.Infow(ctx, "Re-snap run complete",
		"total", summary.Total,
		"failures", summary.Failures,
		"rateLimitPauses", summary.RateLimitPauses)
	return resolved, summary, nil
}

func (j *Resnapper) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.clock.After(d):
		return nil
	}
}
