package orders

import (
	"regexp"
	"strings"

	"callisto/internal/domain"
)

// ContractMultiplier is the share count behind one option contract.
const ContractMultiplier = 100

// digitRunRE splits an option contract name at its first digit run, leaving
// the underlying symbol.
var digitRunRE = regexp.MustCompile(`[0-9]+`)

// ContractPnL returns notional PnL aggregated per contract symbol. Only
// filled orders with a usable price and quantity count: buys subtract
// notional, sells add it.
func ContractPnL(orders []domain.Order) map[string]float64 {
	pnl := make(map[string]float64)
	for _, o := range orders {
		if !o.IsFilled() {
			continue
		}
		price := o.Price
		if price == nil {
			price = o.AvgPrice
		}
		if price == nil {
			continue
		}
		qty := o.TotalQty
		if qty == 0 {
			qty = o.Filled
		}
		if qty == 0 {
			continue
		}

		direction := 1.0
		if strings.EqualFold(o.Side, domain.OrderSideBuy) {
			direction = -1.0
		}
		pnl[o.Symbol] += direction * qty * *price * ContractMultiplier
	}
	return pnl
}

// SymbolPnL rolls contract-level PnL up to the underlying symbol.
func SymbolPnL(contractPnL map[string]float64) map[string]float64 {
	pnl := make(map[string]float64, len(contractPnL))
	for contract, v := range contractPnL {
		symbol := digitRunRE.Split(contract, 2)[0]
		pnl[symbol] += v
	}
	return pnl
}
