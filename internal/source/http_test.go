package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callisto/internal/domain"
	"callisto/internal/loader"
	"callisto/pkg/callisto"
)

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"results":[
			{"t":1735689600000,"o":100,"h":110,"l":95,"c":105,"v":1000},
			{"t":1735776000000,"o":105,"h":115,"l":100,"c":112,"v":1200}
		]}}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(callisto.NewClient(srv.URL), nil)
	bars, err := src.Fetch(context.Background(), loader.LoadRequest{
		Ticker:    "AAPL",
		Timeframe: domain.Timeframe1Day,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	// Millisecond wire timestamps must land as seconds.
	if bars[0].Time != 1735689600 {
		t.Errorf("bars[0].Time = %d, want 1735689600", bars[0].Time)
	}
	if bars[1].Close != 112 {
		t.Errorf("bars[1].Close = %v, want 112", bars[1].Close)
	}
}

func TestHTTPSourceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no data found for the given ticker and timeframe"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(callisto.NewClient(srv.URL), nil)
	_, err := src.Fetch(context.Background(), loader.LoadRequest{
		Ticker:    "NOPE",
		Timeframe: domain.Timeframe1Day,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})

	var ue *loader.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *loader.UpstreamError", err)
	}
	if ue.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", ue.StatusCode)
	}
}

func TestHTTPSourceNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	src := NewHTTPSource(callisto.NewClient(srv.URL), nil)
	_, err := src.Fetch(context.Background(), loader.LoadRequest{
		Ticker:    "AAPL",
		Timeframe: domain.Timeframe1Day,
		Start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})

	var ne *loader.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *loader.NetworkError", err)
	}
}
