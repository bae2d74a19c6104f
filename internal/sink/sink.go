// Package sink delivers the final ranked reports. The Sink interface is
// the boundary for any downstream destination; the JSON file sink is
// the built-in implementation.
package sink

import (
	"context"
	"time"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/model"
)

// Export is the complete output of one job.
type Export struct {
	GeneratedAt time.Time            `json:"generated_at"`
	WindowStart string               `json:"window_start"`
	WindowEnd   string               `json:"window_end"`
	Counters    model.Counters       `json:"counters"`
	Reports     []model.RankedReport `json:"reports"`
}

// NewExport assembles the export envelope for a job's ranked output.
func NewExport(window config.Window, counters model.Counters, reports []model.RankedReport) *Export {
	return &Export{
		GeneratedAt: time.Now().UTC(),
		WindowStart: window.Start.Format("2006-01-02"),
		WindowEnd:   window.End.Format("2006-01-02"),
		Counters:    counters,
		Reports:     reports,
	}
}

// Sink writes one export to a destination.
type Sink interface {
	// Write delivers the export. Implementations must either deliver the
	// whole export or leave the destination untouched.
	Write(ctx context.Context, export *Export) (location string, err error)
}
