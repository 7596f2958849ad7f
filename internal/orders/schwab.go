package orders

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"callisto/internal/domain"
)

// optionSymbolRE matches Schwab's option symbol format:
// underlying, M/D/YYYY expiry, strike, C or P.
var optionSymbolRE = regexp.MustCompile(
	`^([A-Za-z0-9./-]+)\s+(\d{1,2})/(\d{1,2})/(\d{4})\s+([0-9,.]+)\s+([CP])$`)

var dateRE = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)

var nonAlnumRE = regexp.MustCompile(`[^A-Za-z0-9]`)

// supportedActions are the Schwab action prefixes that convert to orders.
var supportedActions = map[string]bool{
	"buy":     true,
	"sell":    true,
	"expired": true,
}

// ConvertSchwab reads a Schwab transaction CSV export and converts its option
// rows into the orders.csv schema. Equity rows and unsupported actions are
// skipped. The timezone label is appended verbatim to timestamps.
func ConvertSchwab(r io.Reader, timezone string) ([]domain.Order, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimPrefix(strings.TrimSpace(name), "\uFEFF")] = i
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []domain.Order
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if allEmpty(rec) {
			continue
		}
		action := field(rec, "Action")
		if !isSupportedAction(action) {
			continue
		}
		symbol := field(rec, "Symbol")
		if !optionSymbolRE.MatchString(symbol) {
			continue
		}
		o, err := convertRow(action, symbol, field(rec, "Quantity"), field(rec, "Price"), field(rec, "Date"), timezone)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func convertRow(action, rawSymbol, rawQty, rawPrice, rawDate, timezone string) (domain.Order, error) {
	symbol, err := occSymbol(rawSymbol)
	if err != nil {
		return domain.Order{}, err
	}

	qty, err := parseSchwabDecimal(rawQty)
	if err != nil {
		return domain.Order{}, err
	}
	if qty == nil {
		return domain.Order{}, fmt.Errorf("missing Quantity")
	}

	side, err := normalizeSide(action, *qty)
	if err != nil {
		return domain.Order{}, err
	}

	price, err := parseSchwabDecimal(rawPrice)
	if err != nil {
		return domain.Order{}, err
	}
	// Expired contracts carry no price; they settle at zero.
	if price == nil && actionToken(action) == "expired" {
		zero := decimal.Zero
		price = &zero
	}

	timestamp, err := formatTimestamp(rawDate, timezone)
	if err != nil {
		return domain.Order{}, err
	}

	absQty, _ := qty.Abs().Float64()
	o := domain.Order{
		Name:        symbol,
		Symbol:      symbol,
		Side:        side,
		Status:      domain.OrderFilled,
		Filled:      absQty,
		TotalQty:    absQty,
		TimeInForce: "DAY",
		PlacedTime:  timestamp,
		FilledTime:  timestamp,
	}
	if price != nil {
		v, _ := price.Float64()
		o.Price = &v
		o.AvgPrice = &v
	}
	return o, nil
}

func actionToken(action string) string {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func isSupportedAction(action string) bool {
	return supportedActions[actionToken(action)]
}

func normalizeSide(action string, qty decimal.Decimal) (string, error) {
	switch actionToken(action) {
	case "buy":
		return domain.OrderSideBuy, nil
	case "sell":
		return domain.OrderSideSell, nil
	case "expired":
		// Expirations close the position: short contracts buy back, long
		// contracts sell off.
		if qty.IsNegative() {
			return domain.OrderSideBuy, nil
		}
		return domain.OrderSideSell, nil
	}
	return "", fmt.Errorf("unsupported Action %q", action)
}

// occSymbol converts Schwab's "TSLA 01/17/2025 300.00 C" format into the OCC
// symbol "TSLA250117C00300000": underlying, yymmdd expiry, C/P, and the
// strike in thousandths padded to eight digits.
func occSymbol(raw string) (string, error) {
	m := optionSymbolRE.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("not an option symbol: %q", raw)
	}
	underlying := nonAlnumRE.ReplaceAllString(strings.ToUpper(m[1]), "")
	if underlying == "" {
		return "", fmt.Errorf("unable to parse underlying symbol %q", m[1])
	}

	expiry, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[2], m[3], m[4]))
	if err != nil {
		return "", fmt.Errorf("invalid expiry in %q: %w", raw, err)
	}

	strike, err := parseSchwabDecimal(m[5])
	if err != nil || strike == nil {
		return "", fmt.Errorf("missing option strike in %q", raw)
	}
	thousandths := strike.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()

	return fmt.Sprintf("%s%s%s%08d", underlying, expiry.Format("060102"), m[6], thousandths), nil
}

// parseSchwabDecimal strips currency formatting and parses a decimal value.
// Empty values come back nil; malformed values are an error.
func parseSchwabDecimal(value string) (*decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(value)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric value %q", value)
	}
	return &d, nil
}

// formatTimestamp extracts the first M/D/YYYY date in raw and renders it as
// "MM/DD/YYYY 00:00:00 <timezone>".
func formatTimestamp(raw, timezone string) (string, error) {
	m := dateRE.FindString(raw)
	if m == "" {
		return "", fmt.Errorf("invalid Date %q", raw)
	}
	parsed, err := time.Parse("1/2/2006", m)
	if err != nil {
		return "", fmt.Errorf("invalid Date %q: %w", raw, err)
	}
	return strings.TrimSpace(parsed.Format("01/02/2006") + " 00:00:00 " + strings.TrimSpace(timezone)), nil
}

func allEmpty(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
