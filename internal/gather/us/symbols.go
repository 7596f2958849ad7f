package us

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// LoadCSVSymbols reads the first column ("symbol") from a CSV file and
// returns all symbols found, uppercased. The file must have a header row.
func LoadCSVSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	symbols := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[0]))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// assetLister is the piece of the trading API the asset filter uses.
type assetLister interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

var _ assetLister = (*alpaca.Client)(nil)

// TradableSymbols drops symbols that are not listed as active and tradable
// US assets, preserving the input order.
func TradableSymbols(client assetLister, symbols []string) ([]string, error) {
	assets, err := client.GetAssets(alpaca.GetAssetsRequest{Status: "active"})
	if err != nil {
		return nil, fmt.Errorf("GetAssets: %w", err)
	}
	tradable := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a.Tradable {
			tradable[strings.ToUpper(a.Symbol)] = true
		}
	}

	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if tradable[strings.ToUpper(sym)] {
			out = append(out, strings.ToUpper(sym))
		}
	}
	return out, nil
}
