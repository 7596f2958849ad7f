// Package gather defines the interface shared by bulk data downloaders.
package gather

import (
	"context"
	"time"
)

// Gatherer is a long-running or batch data download job.
type Gatherer interface {
	// Name returns the gatherer identifier used in logs and progress files.
	Name() string
	// Run executes the download, honoring ctx cancellation. Batch gatherers
	// return when the work is done.
	Run(ctx context.Context) error
}

// DateRange is a half-open [Start, End) fetch window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Chunks splits the range into consecutive sub-ranges of at most days each.
// The final chunk is clamped to End.
func (r DateRange) Chunks(days int) []DateRange {
	if days <= 0 || !r.Start.Before(r.End) {
		return nil
	}
	var out []DateRange
	for start := r.Start; start.Before(r.End); {
		end := start.AddDate(0, 0, days)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, DateRange{Start: start, End: end})
		start = end
	}
	return out
}
