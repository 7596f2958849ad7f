package domain

import (
	"strings"
	"time"
)

// Order side and status values as they appear in broker CSV exports.
const (
	OrderSideBuy  = "Buy"
	OrderSideSell = "Sell"
	OrderFilled   = "Filled"
)

// Order is a single row of a broker order export. Price and AvgPrice are nil
// when the export leaves them blank; timestamps keep the broker's string
// format.
type Order struct {
	Name        string
	Symbol      string
	Side        string
	Status      string
	Filled      float64
	TotalQty    float64
	Price       *float64
	AvgPrice    *float64
	TimeInForce string
	PlacedTime  string
	FilledTime  string
}

// IsFilled reports whether the order was executed.
func (o Order) IsFilled() bool {
	return strings.EqualFold(o.Status, OrderFilled)
}

// Signal side values.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Signal is a trading signal produced by a strategy or the screener.
type Signal struct {
	ID        int64     `json:"id,omitempty"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
