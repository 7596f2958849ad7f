package callisto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:5000/")
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestGetBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/stock/AAPL/2025-01-01/2025-04-11"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if tf := r.URL.Query().Get("timeframe"); tf != "1d" {
			t.Errorf("timeframe = %q, want 1d", tf)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"results":[
			{"t":1735689600000,"o":100,"h":110,"l":95,"c":105,"v":1000},
			{"t":1735776000000,"o":105,"h":115,"l":100,"c":112,"v":1200}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)
	bars, err := c.GetBars(context.Background(), "aapl", start, end, "1d")
	if err != nil {
		t.Fatalf("GetBars returned error: %v", err)
	}

	want := []Bar{
		{Time: 1735689600000, Open: 100, High: 110, Low: 95, Close: 105, Volume: 1000},
		{Time: 1735776000000, Open: 105, High: 115, Low: 100, Close: 112, Volume: 1200},
	}
	if !reflect.DeepEqual(bars, want) {
		t.Errorf("bars = %+v, want %+v", bars, want)
	}
}

func TestGetBarsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no data found for the given ticker and timeframe"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetBars(context.Background(), "NOPE",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "1d")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "no data found for the given ticker and timeframe" {
		t.Errorf("Message = %q, want upstream message", apiErr.Message)
	}
}

func TestGetBarsEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"results":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	bars, err := c.GetBars(context.Background(), "AAPL",
		time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "1d")
	if err != nil {
		t.Fatalf("GetBars returned error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("bars length = %d, want 0", len(bars))
	}
}

func TestWatchlistOperations(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.Body != nil {
			gotBody, _ = json.Marshal(nil)
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
				gotBody, _ = json.Marshal(payload)
			}
		}
		switch {
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"symbols":["TSLA","AAPL","NVDA"]}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	symbols, err := c.Watchlist(ctx)
	if err != nil {
		t.Fatalf("Watchlist returned error: %v", err)
	}
	// Order must be preserved as stored, not sorted.
	if !reflect.DeepEqual(symbols, []string{"TSLA", "AAPL", "NVDA"}) {
		t.Errorf("symbols = %v, want stored order", symbols)
	}

	if err := c.AddWatchlistSymbol(ctx, "msft"); err != nil {
		t.Fatalf("AddWatchlistSymbol returned error: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/watchlist/MSFT" {
		t.Errorf("add request = %s %s, want POST /api/watchlist/MSFT", gotMethod, gotPath)
	}

	if err := c.RemoveWatchlistSymbol(ctx, "TSLA"); err != nil {
		t.Fatalf("RemoveWatchlistSymbol returned error: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/watchlist/TSLA" {
		t.Errorf("remove request = %s %s, want DELETE /api/watchlist/TSLA", gotMethod, gotPath)
	}

	if err := c.ReplaceWatchlist(ctx, []string{"A", "B"}); err != nil {
		t.Fatalf("ReplaceWatchlist returned error: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/watchlist" {
		t.Errorf("replace request = %s %s, want PUT /api/watchlist", gotMethod, gotPath)
	}
	if string(gotBody) == "" {
		t.Error("replace request had no body")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %q, want /api/health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Errorf("Health returned error: %v", err)
	}
}
