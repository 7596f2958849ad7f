// Package loader implements the incremental range loader that owns the chart
// Series for the active (ticker, timeframe) pair. It fetches a fixed lookback
// window when the pair changes, grows the series backward in time as the
// visible range approaches the loaded boundary, and guarantees the series
// stays gap-free and strictly increasing across merges. At most one fetch is
// in flight at any time.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callisto/internal/domain"
)

// DefaultLookbackDays is the calendar-day window fetched per request.
const DefaultLookbackDays = 100

// DefaultFetchTimeout bounds a single fetch; expiry counts as a fetch failure.
const DefaultFetchTimeout = 10 * time.Second

// LoadRequest describes one half-open calendar-day range to fetch.
type LoadRequest struct {
	Ticker    string
	Timeframe domain.Timeframe
	Start     time.Time // inclusive
	End       time.Time // exclusive
}

// Source fetches bars for a request. Implementations return bars in any
// order; zero bars with a nil error means the range holds no trading days.
type Source interface {
	Fetch(ctx context.Context, req LoadRequest) ([]domain.Bar, error)
}

// State is the loader's fetch state.
type State int

const (
	StateIdle State = iota
	StateFetchingInitial
	StateFetchingMore
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingInitial:
		return "fetching-initial"
	case StateFetchingMore:
		return "fetching-more"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType identifies what a loader event carries.
type EventType int

const (
	// EventSeriesReplaced carries the full new series after a ticker or
	// timeframe change.
	EventSeriesReplaced EventType = iota
	// EventSeriesPrepended carries only the newly added older bars; the
	// rendering surface prepends them and keeps its scroll position.
	EventSeriesPrepended
	// EventLoadFailed carries the error of a failed fetch.
	EventLoadFailed
)

// Event is published to subscribers whenever the series changes or a fetch
// fails.
type Event struct {
	Type      EventType
	Ticker    string
	Timeframe domain.Timeframe
	Bars      []domain.Bar
	Err       error
}

// Config holds loader tuning knobs. Zero values select the defaults.
type Config struct {
	LookbackDays int
	FetchTimeout time.Duration
	// Location is used for calendar-day arithmetic on request boundaries.
	Location *time.Location
}

// Loader owns the series for the active pair. All methods are safe for
// concurrent use; fetches run asynchronously and never block the caller.
type Loader struct {
	source   Source
	lookback int
	timeout  time.Duration
	loc      *time.Location
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time // test hook

	mu             sync.Mutex
	state          State
	ticker         string
	timeframe      domain.Timeframe
	series         domain.Series
	earliestKnown  time.Time // start date of the earliest requested range
	pendingInitial bool      // a coalesced SetTicker waits for the in-flight fetch
	gen            int       // bumped on every pair activation

	subs    map[int]chan Event
	nextSub int
}

// New creates a Loader reading from source. A nil logger falls back to
// slog.Default.
func New(source Source, cfg Config, logger *slog.Logger) *Loader {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		source:   source,
		lookback: cfg.LookbackDays,
		timeout:  cfg.FetchTimeout,
		loc:      cfg.Location,
		logger:   logger.With("component", "loader"),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		subs:     make(map[int]chan Event),
	}
}

// Close cancels any outstanding fetch. Subscriber channels are not closed;
// subscribers should select on their own done signal.
func (l *Loader) Close() {
	l.cancel()
}

// Subscribe registers an event channel with the given buffer size and returns
// a subscriber id for Unsubscribe. Events that would block are dropped.
func (l *Loader) Subscribe(bufSize int) (int, <-chan Event) {
	if bufSize <= 0 {
		bufSize = 16
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, bufSize)
	l.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (l *Loader) Unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

// State returns the current fetch state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active returns the active ticker and timeframe.
func (l *Loader) Active() (string, domain.Timeframe) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticker, l.timeframe
}

// Series returns a copy of the current series.
func (l *Loader) Series() domain.Series {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Series(domain.CloneBars(l.series))
}

// EarliestKnown returns the start date of the earliest range requested so
// far. It advances even when a fetch comes back empty, so scrolling never
// re-requests a range already known to hold no bars.
func (l *Loader) EarliestKnown() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.earliestKnown
}

// SetTicker switches the active pair. When the pair actually changes the
// current series is discarded and a fetch for the lookback window ending now
// is issued. Called while a fetch is outstanding, the switch is coalesced:
// the stale in-flight response is discarded on arrival and one initial fetch
// for the latest pair starts in its place.
func (l *Loader) SetTicker(ticker string, timeframe domain.Timeframe) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ticker == l.ticker && timeframe == l.timeframe {
		return
	}

	l.ticker = ticker
	l.timeframe = timeframe
	l.series = nil
	l.earliestKnown = time.Time{}
	l.gen++

	if l.state != StateIdle {
		l.pendingInitial = true
		l.logger.Debug("ticker switch queued behind outstanding fetch",
			"ticker", ticker, "timeframe", timeframe.String())
		return
	}
	l.startInitialLocked()
}

// MaybeLoadMore reacts to the rendering surface reporting its earliest
// visible time. It is a no-op unless the loader is idle and the visible left
// edge is within one bar interval of the earliest loaded bar; then it fetches
// the lookback window immediately preceding the earliest known date.
func (l *Loader) MaybeLoadMore(earliestVisibleTime int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle || l.ticker == "" {
		return
	}
	if l.earliestKnown.IsZero() {
		return
	}
	if len(l.series) > 0 {
		boundary := l.series[0].Time + int64(l.timeframe.Interval()/time.Second)
		if earliestVisibleTime > boundary {
			return
		}
	}

	end := l.earliestKnown
	req := LoadRequest{
		Ticker:    l.ticker,
		Timeframe: l.timeframe,
		Start:     end.AddDate(0, 0, -l.lookback),
		End:       end,
	}
	l.state = StateFetchingMore
	go l.runFetch(req, StateFetchingMore, l.gen)
}

// startInitialLocked issues the initial fetch for the active pair. The end
// boundary is the start of tomorrow so the half-open range includes today.
func (l *Loader) startInitialLocked() {
	end := dateOf(l.now().In(l.loc)).AddDate(0, 0, 1)
	req := LoadRequest{
		Ticker:    l.ticker,
		Timeframe: l.timeframe,
		Start:     end.AddDate(0, 0, -l.lookback),
		End:       end,
	}
	l.state = StateFetchingInitial
	go l.runFetch(req, StateFetchingInitial, l.gen)
}

func (l *Loader) runFetch(req LoadRequest, kind State, gen int) {
	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()

	bars, err := l.source.Fetch(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	l.settle(req, kind, gen, bars, err)
}

// settle applies a completed fetch. Responses for a pair that is no longer
// active are discarded; a coalesced ticker switch then starts its own fetch.
func (l *Loader) settle(req LoadRequest, kind State, gen int, bars []domain.Bar, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stale := req.Ticker != l.ticker || req.Timeframe != l.timeframe || gen != l.gen
	if stale {
		l.logger.Debug("discarding stale fetch response",
			"ticker", req.Ticker, "timeframe", req.Timeframe.String())
		l.state = StateIdle
	} else if err != nil {
		l.state = StateIdle
		wrapped := classify(err, req)
		l.logger.Warn("fetch failed", "ticker", req.Ticker, "error", wrapped)
		l.publishLocked(Event{
			Type:      EventLoadFailed,
			Ticker:    req.Ticker,
			Timeframe: req.Timeframe,
			Err:       wrapped,
		})
	} else {
		switch kind {
		case StateFetchingInitial:
			merged, _ := domain.Series(nil).PrependMerge(bars)
			l.series = merged
			l.earliestKnown = req.Start
			l.publishLocked(Event{
				Type:      EventSeriesReplaced,
				Ticker:    req.Ticker,
				Timeframe: req.Timeframe,
				Bars:      domain.CloneBars(merged),
			})
		case StateFetchingMore:
			merged, added := l.series.PrependMerge(bars)
			l.series = merged
			l.earliestKnown = req.Start
			l.publishLocked(Event{
				Type:      EventSeriesPrepended,
				Ticker:    req.Ticker,
				Timeframe: req.Timeframe,
				Bars:      domain.CloneBars(added),
			})
		}
		l.state = StateIdle
	}

	if l.pendingInitial {
		l.pendingInitial = false
		l.startInitialLocked()
	}
}

// publishLocked fans the event out to all subscribers without blocking; a
// subscriber with a full buffer misses the event.
func (l *Loader) publishLocked(ev Event) {
	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			l.logger.Debug("dropping event for slow subscriber", "subscriber", id)
		}
	}
}

// dateOf truncates t to midnight in its own location.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
