package us

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

func TestLoadCSVSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.csv")
	csv := "symbol,name\naapl,Apple\n MSFT ,Microsoft\nnvda,NVIDIA\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCSVSymbols(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AAPL", "MSFT", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadCSVSymbolsHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.csv")
	if err := os.WriteFile(path, []byte("symbol,name\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCSVSymbols(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want no symbols", got)
	}
}

func TestLoadCSVSymbolsMissingFile(t *testing.T) {
	if _, err := LoadCSVSymbols(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeAssetLister struct {
	assets []alpaca.Asset
	err    error
}

func (f *fakeAssetLister) GetAssets(alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	return f.assets, f.err
}

func TestTradableSymbols(t *testing.T) {
	lister := &fakeAssetLister{assets: []alpaca.Asset{
		{Symbol: "aapl", Tradable: true},
		{Symbol: "MSFT", Tradable: false},
		{Symbol: "NVDA", Tradable: true},
	}}

	got, err := TradableSymbols(lister, []string{"msft", "NVDA", "AAPL", "ZZZZ"})
	if err != nil {
		t.Fatal(err)
	}
	// Non-tradable and unknown symbols drop out; input order is kept.
	want := []string{"NVDA", "AAPL"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTradableSymbolsError(t *testing.T) {
	lister := &fakeAssetLister{err: errors.New("auth failed")}
	if _, err := TradableSymbols(lister, []string{"AAPL"}); err == nil {
		t.Error("expected error from asset lookup")
	}
}
