package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"callisto/internal/domain"
)

// AlpacaSource fetches OHLCV bars straight from the Alpaca market-data API.
// The HTTP server uses it as the fallback when the local store has nothing
// for a symbol, and the history downloader uses the batched call.
type AlpacaSource struct {
	client *marketdata.Client
	log    *slog.Logger
}

// NewAlpacaSource creates a source using the given credentials. dataURL may
// be empty to use the default market-data endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL string, log *slog.Logger) *AlpacaSource {
	if log == nil {
		log = slog.Default()
	}
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		log:    log.With("component", "alpaca"),
	}
}

// alpacaTimeFrame maps a bar timeframe onto the API's granularity.
func alpacaTimeFrame(tf domain.Timeframe) marketdata.TimeFrame {
	switch tf {
	case domain.Timeframe1Min:
		return marketdata.OneMin
	case domain.Timeframe5Min:
		return marketdata.NewTimeFrame(5, marketdata.Min)
	case domain.Timeframe15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min)
	case domain.Timeframe1Hour:
		return marketdata.OneHour
	case domain.Timeframe1Week:
		return marketdata.NewTimeFrame(1, marketdata.Week)
	default:
		return marketdata.OneDay
	}
}

// FetchBars retrieves bars for one symbol over [start, end), sorted by time.
func (s *AlpacaSource) FetchBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	bars := convertBars(raw)
	s.log.Debug("fetched bars from alpaca",
		"symbol", symbol, "timeframe", tf, "count", len(bars))
	return bars, nil
}

// FetchMultiBars retrieves bars for a batch of symbols in one API call.
func (s *AlpacaSource) FetchMultiBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) (map[string][]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	out := make(map[string][]domain.Bar, len(raw))
	for symbol, bars := range raw {
		out[strings.ToUpper(symbol)] = convertBars(bars)
	}
	return out, nil
}

func convertBars(raw []marketdata.Bar) []domain.Bar {
	bars := make([]domain.Bar, len(raw))
	for i, b := range raw {
		bars[i] = domain.Bar{
			Time:   b.Timestamp.Unix(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	return bars
}
