package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"callisto/internal/config"
	"callisto/internal/domain"
	"callisto/internal/loader"
	"callisto/internal/source"
	"callisto/internal/util"
	"callisto/pkg/callisto"
)

// Styles.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	legendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// watchlistWidth is the fixed width of the left pane.
const watchlistWidth = 20

// timeframeCycle is the order the t key steps through.
var timeframeCycle = []domain.Timeframe{
	domain.Timeframe1Min,
	domain.Timeframe5Min,
	domain.Timeframe15Min,
	domain.Timeframe1Hour,
	domain.Timeframe1Day,
	domain.Timeframe1Week,
}

// Messages.
type loaderEventMsg loader.Event

type watchlistMsg struct {
	symbols []string
	err     error
}

type watchlistOpMsg struct {
	symbol  string
	removed bool
	err     error
}

// waitForEvent re-arms after every received loader event so the event channel
// keeps feeding the update loop.
func waitForEvent(ch <-chan loader.Event) tea.Cmd {
	return func() tea.Msg {
		return loaderEventMsg(<-ch)
	}
}

func fetchWatchlist(client *callisto.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		symbols, err := client.Watchlist(ctx)
		return watchlistMsg{symbols: symbols, err: err}
	}
}

func addSymbol(client *callisto.Client, symbol string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := client.AddWatchlistSymbol(ctx, symbol)
		return watchlistOpMsg{symbol: symbol, err: err}
	}
}

func removeSymbol(client *callisto.Client, symbol string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := client.RemoveWatchlistSymbol(ctx, symbol)
		return watchlistOpMsg{symbol: symbol, removed: true, err: err}
	}
}

// wlItem adapts a ticker string to the bubbles list item interfaces.
type wlItem string

func (i wlItem) Title() string       { return string(i) }
func (i wlItem) Description() string { return "" }
func (i wlItem) FilterValue() string { return string(i) }

// Model.
type model struct {
	ld     *loader.Loader
	events <-chan loader.Event
	client *callisto.Client
	logger *slog.Logger

	wl        list.Model
	input     textinput.Model
	inputMode bool

	series    []domain.Bar
	ticker    string
	timeframe domain.Timeframe
	offset    int // bars hidden to the right of the view; 0 = latest visible

	width, height int
	ready         bool
	status        string
	failed        bool // last status is an error
}

func initialModel(ld *loader.Loader, events <-chan loader.Event, client *callisto.Client, ticker string, tf domain.Timeframe, logger *slog.Logger) model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	wl := list.New(nil, delegate, watchlistWidth, 10)
	wl.Title = "watchlist"
	wl.SetShowStatusBar(false)
	wl.SetFilteringEnabled(false)
	wl.SetShowHelp(false)
	wl.DisableQuitKeybindings()

	input := textinput.New()
	input.Placeholder = "SYMBOL"
	input.CharLimit = 10
	input.Width = 12

	return model{
		ld:        ld,
		events:    events,
		client:    client,
		logger:    logger,
		wl:        wl,
		input:     input,
		ticker:    ticker,
		timeframe: tf,
		status:    "loading " + ticker,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), fetchWatchlist(m.client))
}

// chartSize returns the candle area dimensions for the current window.
func (m *model) chartSize() (w, h int) {
	w = m.width - watchlistWidth - 1 - 9 // separator column + price gutter
	h = m.height - 2                     // header + footer
	if w < 10 {
		w = 10
	}
	if h < 4 {
		h = 4
	}
	return w, h
}

// setActive switches the loader to a new pair and resets the viewport.
func (m *model) setActive(ticker string, tf domain.Timeframe) {
	m.ticker = ticker
	m.timeframe = tf
	m.offset = 0
	m.status = fmt.Sprintf("loading %s %s", ticker, tf)
	m.failed = false
	m.ld.SetTicker(ticker, tf)
}

// panLeft shows older bars and reports the new left edge to the loader, which
// fetches more history when the edge nears the earliest loaded bar.
func (m *model) panLeft() {
	chartW, _ := m.chartSize()
	maxOffset := len(m.series) - chartW
	if maxOffset < 0 {
		maxOffset = 0
	}
	if m.offset < maxOffset {
		m.offset++
	}
	if len(m.series) == 0 {
		return
	}
	leftIdx := len(m.series) - chartW - m.offset
	if leftIdx < 0 {
		leftIdx = 0
	}
	m.ld.MaybeLoadMore(m.series[leftIdx].Time)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode {
			switch msg.String() {
			case "esc":
				m.inputMode = false
				m.input.Blur()
				return m, nil
			case "enter":
				symbol := strings.ToUpper(strings.TrimSpace(m.input.Value()))
				m.inputMode = false
				m.input.Blur()
				if symbol == "" {
					return m, nil
				}
				m.status = "adding " + symbol
				m.failed = false
				return m, addSymbol(m.client, symbol)
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if it, ok := m.wl.SelectedItem().(wlItem); ok {
				m.setActive(string(it), m.timeframe)
			}
			return m, nil
		case "left", "h":
			m.panLeft()
			return m, nil
		case "right", "l":
			if m.offset > 0 {
				m.offset--
			}
			return m, nil
		case "t":
			for i, tf := range timeframeCycle {
				if tf == m.timeframe {
					next := timeframeCycle[(i+1)%len(timeframeCycle)]
					m.setActive(m.ticker, next)
					break
				}
			}
			return m, nil
		case "a":
			m.inputMode = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case "d":
			if it, ok := m.wl.SelectedItem().(wlItem); ok {
				m.status = "removing " + string(it)
				m.failed = false
				return m, removeSymbol(m.client, string(it))
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.wl, cmd = m.wl.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.wl.SetSize(watchlistWidth, m.height-2)
		m.ready = true
		return m, nil

	case loaderEventMsg:
		ev := loader.Event(msg)
		switch ev.Type {
		case loader.EventSeriesReplaced:
			m.series = ev.Bars
			m.offset = 0
			m.status = fmt.Sprintf("%s %s: %d bars", ev.Ticker, ev.Timeframe, len(ev.Bars))
			m.failed = false
		case loader.EventSeriesPrepended:
			// The offset anchors to the right edge, so prepending older bars
			// leaves the visible window in place.
			m.series = m.ld.Series()
			m.status = fmt.Sprintf("loaded %d older bars", len(ev.Bars))
			m.failed = false
		case loader.EventLoadFailed:
			m.status = ev.Err.Error()
			m.failed = true
			m.logger.Warn("load failed", "ticker", ev.Ticker, "error", ev.Err)
		}
		return m, waitForEvent(m.events)

	case watchlistMsg:
		if msg.err != nil {
			m.status = "watchlist: " + msg.err.Error()
			m.failed = true
			return m, nil
		}
		items := make([]list.Item, len(msg.symbols))
		for i, s := range msg.symbols {
			items[i] = wlItem(s)
		}
		return m, m.wl.SetItems(items)

	case watchlistOpMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("watchlist %s: %v", msg.symbol, msg.err)
			m.failed = true
			return m, nil
		}
		if msg.removed {
			m.status = "removed " + msg.symbol
		} else {
			m.status = "added " + msg.symbol
		}
		m.failed = false
		return m, fetchWatchlist(m.client)
	}

	var cmd tea.Cmd
	m.wl, cmd = m.wl.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	chartW, chartH := m.chartSize()
	header := headerStyle.Render(padOrTrunc(fmt.Sprintf(" callisto  %s  %s  bars: %d  state: %s ",
		m.ticker, m.timeframe, len(m.series), m.ld.State()), m.width))

	chart := renderChart(m.series, chartW, chartH, m.offset, m.ticker, m.timeframe)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.wl.View(), " ", chart)

	var footer string
	switch {
	case m.inputMode:
		footer = footerStyle.Render(padOrTrunc(" add symbol: "+m.input.View(), m.width))
	case m.failed:
		footer = errorStyle.Render(padOrTrunc(" "+m.status+" ", m.width))
	default:
		left := " q quit  enter load  h/l pan  t timeframe  a add  d delete"
		right := m.status + " "
		gap := m.width - len(left) - len(right)
		if gap < 1 {
			gap = 1
		}
		footer = footerStyle.Render(padOrTrunc(left+strings.Repeat(" ", gap)+right, m.width))
	}

	return header + "\n" + body + "\n" + footer
}

// renderChart draws the candles right-aligned with a price gutter, a legend
// line on top, and a date axis at the bottom.
func renderChart(bars []domain.Bar, width, height, offset int, ticker string, tf domain.Timeframe) string {
	if len(bars) == 0 {
		return dimStyle.Render("  (no data)")
	}

	end := len(bars) - offset
	if end < 1 {
		end = 1
	}
	start := end - width
	if start < 0 {
		start = 0
	}
	visible := bars[start:end]

	lo, hi := visible[0].Low, visible[0].High
	for _, b := range visible[1:] {
		lo = min(lo, b.Low)
		hi = max(hi, b.High)
	}
	if hi <= lo {
		hi = lo + 1
	}

	rows := height - 2
	if rows < 1 {
		rows = 1
	}
	step := (hi - lo) / float64(rows)

	// One style per bar for the whole column.
	bodies := make([]string, len(visible))
	wicks := make([]string, len(visible))
	for i, b := range visible {
		style := upStyle
		if b.Close < b.Open {
			style = downStyle
		}
		bodies[i] = style.Render("█")
		wicks[i] = style.Render("│")
	}

	last := visible[len(visible)-1]
	legend := fmt.Sprintf(" %s %s  O %.2f  H %.2f  L %.2f  C %.2f  V %s",
		ticker, tf, last.Open, last.High, last.Low, last.Close, formatVolume(last.Volume))
	if offset > 0 {
		legend += fmt.Sprintf("  [%d newer]", offset)
	}

	pad := strings.Repeat(" ", width-len(visible))
	var b strings.Builder
	b.WriteString(legendStyle.Render(padOrTrunc(legend, width+9)))
	b.WriteString("\n")

	for r := 0; r < rows; r++ {
		bandHi := hi - float64(r)*step
		bandLo := bandHi - step
		b.WriteString(pad)
		for i, bar := range visible {
			bodyTop := max(bar.Open, bar.Close)
			bodyBot := min(bar.Open, bar.Close)
			switch {
			case bodyTop >= bandLo && bodyBot <= bandHi:
				b.WriteString(bodies[i])
			case bar.High >= bandLo && bar.Low <= bandHi:
				b.WriteString(wicks[i])
			default:
				b.WriteString(" ")
			}
		}
		switch r {
		case 0, rows / 2, rows - 1:
			b.WriteString(dimStyle.Render(fmt.Sprintf(" %8.2f", bandHi)))
		default:
			b.WriteString(strings.Repeat(" ", 9))
		}
		b.WriteString("\n")
	}

	leftDate := visible[0].Timestamp().Format("2006-01-02")
	rightDate := last.Timestamp().Format("2006-01-02")
	axis := leftDate
	if gap := width - len(leftDate) - len(rightDate); gap > 0 {
		axis += strings.Repeat(" ", gap) + rightDate
	}
	b.WriteString(dimStyle.Render(padOrTrunc(axis, width+9)))
	return b.String()
}

// formatVolume renders share volume with a K/M/B suffix.
func formatVolume(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// padOrTrunc pads s with spaces to width, or truncates if longer.
func padOrTrunc(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = os.Getenv("CALLISTO_CONFIG")
	}
	if path == "" {
		path = "config/callisto.yaml"
		if _, err := os.Stat(path); err != nil {
			return config.Default()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	cfgPath := flag.String("config", "", "config file (default $CALLISTO_CONFIG, then config/callisto.yaml)")
	server := flag.String("server", "", "callisto-server base URL (default from config)")
	ticker := flag.String("ticker", "SPY", "initial ticker")
	timeframe := flag.String("timeframe", "", "initial timeframe (default from config)")
	flag.Parse()

	cfg := loadConfig(*cfgPath)

	serverURL := cfg.Chart.ServerURL
	if *server != "" {
		serverURL = *server
	}
	tfName := cfg.Chart.Timeframe
	if *timeframe != "" {
		tfName = *timeframe
	}
	tf, err := domain.ParseTimeframe(tfName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file.
	logPath := fmt.Sprintf("/tmp/callisto-chart-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(logFile, cfg.Logging.Level, "text")

	client := callisto.NewClient(serverURL)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	err = client.Health(pingCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server %s unreachable: %v\n", serverURL, err)
		os.Exit(1)
	}

	ld := loader.New(source.NewHTTPSource(client, logger), loader.Config{
		LookbackDays: cfg.Chart.LookbackDays,
		FetchTimeout: time.Duration(cfg.Chart.FetchTimeoutSecs) * time.Second,
	}, logger)
	defer ld.Close()

	_, events := ld.Subscribe(16)
	initial := strings.ToUpper(strings.TrimSpace(*ticker))
	ld.SetTicker(initial, tf)

	p := tea.NewProgram(
		initialModel(ld, events, client, initial, tf, logger),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
