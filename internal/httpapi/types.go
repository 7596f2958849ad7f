// Package httpapi serves the chart data and watchlist REST API together
// with the WebSocket relay endpoint.
package httpapi

import (
	"callisto/internal/domain"
)

// BarJSON is one OHLCV bar on the wire. Time is epoch milliseconds.
type BarJSON struct {
	Time   int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// ResultsJSON wraps the bar list of a stock response.
type ResultsJSON struct {
	Results []BarJSON `json:"results"`
}

// StockResponse is the envelope for the bar range endpoint.
type StockResponse struct {
	Data ResultsJSON `json:"data"`
}

// WatchlistResponse lists watchlist symbols in stored order. It doubles as
// the request body for whole-list replacement.
type WatchlistResponse struct {
	Symbols []string `json:"symbols"`
}

// StatusResponse is the health check payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// convertBars converts stored bars (epoch seconds) to their wire form.
func convertBars(bars []domain.Bar) []BarJSON {
	out := make([]BarJSON, len(bars))
	for i, b := range bars {
		out[i] = BarJSON{
			Time:   b.Time * 1000,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return out
}
