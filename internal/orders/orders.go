// Package orders parses, manipulates, and analyzes broker order CSV exports.
package orders

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"callisto/internal/domain"
)

// fieldnames are the columns of orders.csv, in order.
var fieldnames = []string{
	"Name",
	"Symbol",
	"Side",
	"Status",
	"Filled",
	"Total Qty",
	"Price",
	"Avg Price",
	"Time-in-Force",
	"Placed Time",
	"Filled Time",
}

// ParseCSV reads orders from an orders.csv export. Columns are matched by
// header name, so extra columns and arbitrary ordering are tolerated.
func ParseCSV(r io.Reader) ([]domain.Order, error) {
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
		return rec[i]
	}

	var orders []domain.Order
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		o := domain.Order{
			Name:        field(rec, "Name"),
			Symbol:      field(rec, "Symbol"),
			Side:        field(rec, "Side"),
			Status:      field(rec, "Status"),
			Price:       parseNumeric(field(rec, "Price")),
			AvgPrice:    parseNumeric(field(rec, "Avg Price")),
			TimeInForce: field(rec, "Time-in-Force"),
			PlacedTime:  field(rec, "Placed Time"),
			FilledTime:  field(rec, "Filled Time"),
		}
		if v := parseNumeric(field(rec, "Filled")); v != nil {
			o.Filled = *v
		}
		if v := parseNumeric(field(rec, "Total Qty")); v != nil {
			o.TotalQty = *v
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// WriteCSV writes orders in the orders.csv schema, header included.
func WriteCSV(w io.Writer, orders []domain.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fieldnames); err != nil {
		return err
	}
	for _, o := range orders {
		rec := []string{
			o.Name,
			o.Symbol,
			o.Side,
			o.Status,
			formatQuantity(o.Filled),
			formatQuantity(o.TotalQty),
			formatPrice(o.Price),
			formatNumericPtr(o.AvgPrice),
			o.TimeInForce,
			o.PlacedTime,
			o.FilledTime,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filter returns orders matching the symbol, case-insensitively. An empty
// symbol keeps everything.
func Filter(orders []domain.Order, symbol string) []domain.Order {
	if symbol == "" {
		return orders
	}
	var out []domain.Order
	for _, o := range orders {
		if strings.EqualFold(o.Symbol, symbol) {
			out = append(out, o)
		}
	}
	return out
}

// Scale multiplies filled and total quantities for all orders.
func Scale(orders []domain.Order, multiplier float64) []domain.Order {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		o.Filled *= multiplier
		o.TotalQty *= multiplier
		out[i] = o
	}
	return out
}

// parseNumeric parses broker-style numeric strings, which may carry a leading
// "@". Empty or malformed values come back nil.
func parseNumeric(value string) *float64 {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "@")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// formatNumeric renders integral values without decimals and everything else
// with up to four decimal places, trailing zeros trimmed.
func formatNumeric(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	s := strconv.FormatFloat(value, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func formatNumericPtr(value *float64) string {
	if value == nil {
		return ""
	}
	return formatNumeric(*value)
}

func formatPrice(value *float64) string {
	if value == nil {
		return ""
	}
	return "@" + formatNumeric(*value)
}

func formatQuantity(value float64) string {
	return formatNumeric(value)
}
