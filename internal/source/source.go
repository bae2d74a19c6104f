// Package source implements the candidate sources: the components that
// produce not-yet-verified article links for one institution. Each
// source is a finite, restartable sequence; the pipeline consumes the
// merged output lazily.
package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
)

// Source produces candidate links for one institution.
type Source interface {
	// Discover returns candidates for the institution. Implementations
	// pre-filter obvious out-of-window links when the URL or feed
	// carries a date, but final recency judgment belongs to the
	// verifier.
	Discover(ctx context.Context, inst config.InstitutionProfile, window config.Window) ([]model.CandidateLink, error)
}

// Merged combines several sources, deduplicating by URL. The first
// source to report a URL wins, so order sources by trust.
type Merged struct {
	sources []Source
	max     int
	log     *slog.Logger
}

// NewMerged builds the combined candidate source for a job.
func NewMerged(log *slog.Logger, max int, sources ...Source) *Merged {
	if max <= 0 {
		max = 120
	}
	return &Merged{sources: sources, max: max, log: log}
}

// Discover runs every underlying source in order. A source failing is
// logged and skipped; only all sources failing yields an error, since
// partial discovery is still a usable batch.
func (m *Merged) Discover(ctx context.Context, inst config.InstitutionProfile, window config.Window) ([]model.CandidateLink, error) {
	var (
		merged  []model.CandidateLink
		seen    = make(map[string]bool)
		lastErr error
		failed  int
	)

	for _, src := range m.sources {
		if ctx.Err() != nil {
			return merged, ctx.Err()
		}

		candidates, err := src.Discover(ctx, inst, window)
		if err != nil {
			failed++
			lastErr = err
			m.log.Warn("candidate source failed", "institution", inst.ID, "error", err)
			continue
		}

		for _, c := range candidates {
			key := NormalizeURL(c.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, c)
			if len(merged) >= m.max {
				m.log.Info("candidate cap reached", "institution", inst.ID, "max", m.max)
				return merged, nil
			}
		}
	}

	if failed == len(m.sources) && lastErr != nil {
		return nil, model.NewStageError("discover", model.ErrNetwork, lastErr)
	}

	return merged, nil
}

// inWindowOrUndated reports whether a candidate should survive
// discovery-time pre-filtering: either its date hint falls inside the
// window, or it has no hint and the verifier must decide.
func inWindowOrUndated(hint *time.Time, window config.Window) bool {
	if hint == nil {
		return true
	}
	return window.Contains(*hint)
}
