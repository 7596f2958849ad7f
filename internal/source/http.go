// Package source provides bar data sources for the incremental loader.
package source

import (
	"context"
	"errors"
	"log/slog"

	"callisto/internal/domain"
	"callisto/internal/loader"
	"callisto/pkg/callisto"
)

// HTTPSource fetches bars from a callisto API server.
type HTTPSource struct {
	client *callisto.Client
	log    *slog.Logger
}

var _ loader.Source = (*HTTPSource)(nil)

func NewHTTPSource(client *callisto.Client, log *slog.Logger) *HTTPSource {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPSource{
		client: client,
		log:    log.With("component", "source"),
	}
}

// Fetch retrieves bars for the requested window. Wire timestamps arrive in
// epoch milliseconds and are converted to epoch seconds here so everything
// downstream works in one unit.
func (s *HTTPSource) Fetch(ctx context.Context, req loader.LoadRequest) ([]domain.Bar, error) {
	raw, err := s.client.GetBars(ctx, req.Ticker, req.Start, req.End, string(req.Timeframe))
	if err != nil {
		var apiErr *callisto.APIError
		if errors.As(err, &apiErr) {
			return nil, &loader.UpstreamError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, &loader.NetworkError{Err: err}
	}

	bars := make([]domain.Bar, len(raw))
	for i, b := range raw {
		bars[i] = domain.Bar{
			Time:   b.Time / 1000,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	s.log.Debug("fetched bars",
		"ticker", req.Ticker,
		"timeframe", req.Timeframe,
		"start", req.Start.Format("2006-01-02"),
		"end", req.End.Format("2006-01-02"),
		"count", len(bars))
	return bars, nil
}
