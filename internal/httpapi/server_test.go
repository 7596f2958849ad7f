package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"callisto/internal/domain"
	"callisto/internal/store"
)

// fakeUpstream returns canned bars and counts calls.
type fakeUpstream struct {
	bars  []domain.Bar
	err   error
	calls atomic.Int64
}

func (f *fakeUpstream) FetchBars(_ context.Context, _ string, _ domain.Timeframe, _, _ time.Time) ([]domain.Bar, error) {
	f.calls.Add(1)
	return f.bars, f.err
}

func newTestServer(t *testing.T, upstream BarFetcher) (*Server, store.BarStore) {
	t.Helper()
	bars := store.NewParquetStore(t.TempDir())
	wl, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { wl.Close() })
	return NewServer(bars, wl, upstream, nil, nil), bars
}

func barAt(ts time.Time, close float64) domain.Bar {
	return domain.Bar{
		Time:   ts.Unix(),
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 5000,
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got.Status != "ok" {
		t.Errorf("status = %q, want ok", got.Status)
	}
}

func TestStockServesStoredBars(t *testing.T) {
	s, bars := newTestServer(t, nil)

	d1 := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	err := bars.WriteBars(context.Background(), domain.Timeframe1Day, map[string][]domain.Bar{
		"AAPL": {barAt(d1, 181.0), barAt(d2, 182.5), barAt(d3, 183.0)},
	})
	if err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// The range is half-open, so the d3 bar is excluded.
	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/aapl/2024-05-06/2024-05-08?timeframe=1d", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var got StockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	results := got.Data.Results
	if len(results) != 2 {
		t.Fatalf("got %d bars, want 2", len(results))
	}
	if results[0].Time != d1.UnixMilli() {
		t.Errorf("first bar t = %d, want epoch millis %d", results[0].Time, d1.UnixMilli())
	}
	if results[1].Close != 182.5 {
		t.Errorf("second bar c = %v, want 182.5", results[1].Close)
	}
}

func TestStockDefaultsToDaily(t *testing.T) {
	s, bars := newTestServer(t, nil)

	d := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	err := bars.WriteBars(context.Background(), domain.Timeframe1Day, map[string][]domain.Bar{
		"MSFT": {barAt(d, 413.0)},
	})
	if err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/MSFT/2024-05-01/2024-06-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without explicit timeframe", rec.Code)
	}
}

func TestStockInvalidTimeframe(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/AAPL/2024-05-06/2024-05-08?timeframe=3d", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid timeframe") {
		t.Errorf("body = %s, want invalid timeframe error", rec.Body.String())
	}
}

func TestStockInvalidDates(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/stock/AAPL/06-05-2024/2024-05-08",
		"/stock/AAPL/2024-05-06/tomorrow",
	} {
		rec := doRequest(t, s.Handler(), http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestStockUnknownTicker(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/NOPE/2024-05-06/2024-05-08", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if got["error"] != errNoData {
		t.Errorf("error = %q, want %q", got["error"], errNoData)
	}
}

func TestStockKnownTickerEmptyRange(t *testing.T) {
	s, bars := newTestServer(t, nil)

	d := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	err := bars.WriteBars(context.Background(), domain.Timeframe1Day, map[string][]domain.Bar{
		"AAPL": {barAt(d, 181.0)},
	})
	if err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// A weekend with no bars still answers 200 for a known symbol.
	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/AAPL/2024-05-11/2024-05-12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got StockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(got.Data.Results) != 0 {
		t.Errorf("got %d bars, want empty results", len(got.Data.Results))
	}
}

func TestStockFallbackPersists(t *testing.T) {
	d := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	upstream := &fakeUpstream{bars: []domain.Bar{barAt(d, 250.0)}}
	s, bars := newTestServer(t, upstream)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/TSLA/2024-05-01/2024-06-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var got StockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(got.Data.Results) != 1 || got.Data.Results[0].Close != 250.0 {
		t.Fatalf("results = %+v, want the upstream bar", got.Data.Results)
	}

	// Fetched bars are persisted: the next request is served from the store.
	has, err := bars.HasSymbol(context.Background(), domain.Timeframe1Day, "TSLA")
	if err != nil {
		t.Fatalf("HasSymbol: %v", err)
	}
	if !has {
		t.Error("fetched bars were not persisted")
	}
	doRequest(t, s.Handler(), http.MethodGet, "/stock/TSLA/2024-05-01/2024-06-01", "")
	if n := upstream.calls.Load(); n != 1 {
		t.Errorf("upstream called %d times, want 1", n)
	}
}

func TestStockFallbackUnknownUpstream(t *testing.T) {
	upstream := &fakeUpstream{}
	s, _ := newTestServer(t, upstream)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/stock/NOPE/2024-05-01/2024-06-01", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when upstream has nothing", rec.Code)
	}
}

func TestWatchlistCRUD(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	readSymbols := func() []string {
		t.Helper()
		rec := doRequest(t, h, http.MethodGet, "/api/watchlist", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET watchlist status = %d", rec.Code)
		}
		var got WatchlistResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decoding watchlist: %v", err)
		}
		return got.Symbols
	}

	// Empty list serializes as [], not null.
	rec := doRequest(t, h, http.MethodGet, "/api/watchlist", "")
	if !strings.Contains(rec.Body.String(), `"symbols":[]`) {
		t.Errorf("empty watchlist body = %s, want symbols:[]", rec.Body.String())
	}

	for _, sym := range []string{"tsla", "AAPL", "nvda"} {
		rec := doRequest(t, h, http.MethodPost, "/api/watchlist/"+sym, "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("POST %s status = %d, want 204", sym, rec.Code)
		}
	}
	// Duplicate add is a no-op.
	doRequest(t, h, http.MethodPost, "/api/watchlist/TSLA", "")

	got := readSymbols()
	want := []string{"TSLA", "AAPL", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("symbols = %v, want insertion order %v", got, want)
		}
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/watchlist/AAPL", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	got = readSymbols()
	if len(got) != 2 || got[0] != "TSLA" || got[1] != "NVDA" {
		t.Fatalf("symbols after delete = %v, want [TSLA NVDA]", got)
	}

	rec = doRequest(t, h, http.MethodPut, "/api/watchlist", `{"symbols":["spy","qqq","SPY"]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", rec.Code)
	}
	got = readSymbols()
	if len(got) != 2 || got[0] != "SPY" || got[1] != "QQQ" {
		t.Fatalf("symbols after replace = %v, want deduplicated [SPY QQQ]", got)
	}
}

func TestWatchlistReplaceBadBody(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodPut, "/api/watchlist", `{"symbols": 12}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s.Handler(), http.MethodOptions, "/api/watchlist", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q, want POST included", got)
	}
}
