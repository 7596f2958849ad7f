package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"callisto/internal/domain"
	"callisto/internal/relay"
	"callisto/internal/store"
)

// errNoData is the body of every 404 on the bar range endpoint.
const errNoData = "no data found for the given ticker and timeframe"

// BarFetcher fetches bars from the market-data upstream when the local
// store has none for a symbol.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)
}

// Server serves the REST API backed by the bar store and watchlist store.
// upstream and hub may be nil; the fallback fetch and the /ws endpoint are
// then disabled.
type Server struct {
	bars      store.BarStore
	watchlist store.WatchlistStore
	upstream  BarFetcher
	hub       *relay.Hub
	log       *slog.Logger
}

// NewServer creates the API server.
func NewServer(bars store.BarStore, watchlist store.WatchlistStore, upstream BarFetcher, hub *relay.Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		bars:      bars,
		watchlist: watchlist,
		upstream:  upstream,
		hub:       hub,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /stock/{ticker}/{startDate}/{endDate}", s.handleStock)
	mux.HandleFunc("GET /api/watchlist", s.handleGetWatchlist)
	mux.HandleFunc("POST /api/watchlist/{symbol}", s.handleAddWatchlist)
	mux.HandleFunc("DELETE /api/watchlist/{symbol}", s.handleRemoveWatchlist)
	mux.HandleFunc("PUT /api/watchlist", s.handleReplaceWatchlist)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWS)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{Status: "ok"})
}

// handleStock serves bars for the half-open date range [startDate, endDate).
// A symbol absent from the store entirely triggers one upstream fetch whose
// result is persisted; a known symbol with no bars in range yields an empty
// result list.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker required")
		return
	}

	tfParam := r.URL.Query().Get("timeframe")
	if tfParam == "" {
		tfParam = string(domain.Timeframe1Day)
	}
	tf, err := domain.ParseTimeframe(tfParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, err := time.Parse("2006-01-02", r.PathValue("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date, want YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", r.PathValue("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date, want YYYY-MM-DD")
		return
	}

	ctx := r.Context()
	known, err := s.bars.HasSymbol(ctx, tf, ticker)
	if err != nil {
		s.log.Error("checking symbol", "ticker", ticker, "error", err)
		writeError(w, http.StatusInternalServerError, "reading bar store")
		return
	}

	var bars []domain.Bar
	if known {
		bars, err = s.bars.ReadBars(ctx, tf, ticker, start, end)
		if err != nil {
			s.log.Error("reading bars", "ticker", ticker, "error", err)
			writeError(w, http.StatusInternalServerError, "reading bar store")
			return
		}
	} else {
		bars, err = s.fetchMissing(ctx, ticker, tf, start, end)
		if err != nil {
			s.log.Error("upstream fetch failed", "ticker", ticker, "error", err)
			writeError(w, http.StatusInternalServerError, "fetching bars from upstream")
			return
		}
		if bars == nil {
			writeError(w, http.StatusNotFound, errNoData)
			return
		}
	}

	writeJSON(w, StockResponse{Data: ResultsJSON{Results: convertBars(bars)}})
}

// fetchMissing pulls bars from the upstream for a symbol the store has never
// seen and persists whatever came back. A nil slice means the symbol is
// unknown upstream too.
func (s *Server) fetchMissing(ctx context.Context, ticker string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if s.upstream == nil {
		return nil, nil
	}
	bars, err := s.upstream.FetchBars(ctx, ticker, tf, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	if err := s.bars.WriteBars(ctx, tf, map[string][]domain.Bar{ticker: bars}); err != nil {
		// Serve what we fetched even if persisting failed.
		s.log.Warn("persisting fetched bars", "ticker", ticker, "error", err)
	} else {
		s.log.Info("backfilled symbol from upstream",
			"ticker", ticker, "timeframe", tf, "bars", len(bars))
	}
	return bars, nil
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.watchlist.Symbols(r.Context())
	if err != nil {
		s.log.Error("reading watchlist", "error", err)
		writeError(w, http.StatusInternalServerError, "reading watchlist")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, WatchlistResponse{Symbols: symbols})
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	if err := s.watchlist.Add(r.Context(), symbol); err != nil {
		s.log.Error("adding watchlist symbol", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "adding symbol")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	if err := s.watchlist.Remove(r.Context(), symbol); err != nil {
		s.log.Error("removing watchlist symbol", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "removing symbol")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceWatchlist(w http.ResponseWriter, r *http.Request) {
	var body WatchlistResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.watchlist.Replace(r.Context(), body.Symbols); err != nil {
		s.log.Error("replacing watchlist", "error", err)
		writeError(w, http.StatusInternalServerError, "replacing watchlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
