package orders

import (
	"strings"
	"testing"

	"callisto/internal/domain"
)

const schwabCSV = `"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"01/10/2025","Sell to Open","TSLA 01/17/2025 300.00 C","CALL TESLA INC","2","$1.25","$1.30","$248.70"
"01/17/2025 as of 01/18/2025","Expired","TSLA 01/17/2025 300.00 C","CALL TESLA INC","-2","","",""
"01/10/2025","Buy","AAPL","APPLE INC","10","$185.50","","-$1,855.00"
"01/12/2025","Journal","SPY 06/20/2025 500.00 P","TRANSFER","1","$2.00","",""
"","","","","","","",""
`

func TestConvertSchwab(t *testing.T) {
	got, err := ConvertSchwab(strings.NewReader(schwabCSV), "EST")
	if err != nil {
		t.Fatalf("ConvertSchwab: %v", err)
	}
	// The equity buy, the journal row, and the blank row all drop out.
	if len(got) != 2 {
		t.Fatalf("converted %d orders, want 2: %+v", len(got), got)
	}

	sell := got[0]
	if sell.Symbol != "TSLA250117C00300000" {
		t.Errorf("Symbol = %q, want OCC format TSLA250117C00300000", sell.Symbol)
	}
	if sell.Side != domain.OrderSideSell || sell.Status != domain.OrderFilled {
		t.Errorf("Side/Status = %s/%s, want Sell/Filled", sell.Side, sell.Status)
	}
	if sell.Filled != 2 || sell.TotalQty != 2 {
		t.Errorf("quantities = %v/%v, want 2/2", sell.Filled, sell.TotalQty)
	}
	if sell.Price == nil || *sell.Price != 1.25 {
		t.Errorf("Price = %v, want 1.25 with currency formatting stripped", sell.Price)
	}
	if sell.TimeInForce != "DAY" {
		t.Errorf("TimeInForce = %q, want DAY", sell.TimeInForce)
	}
	if sell.PlacedTime != "01/10/2025 00:00:00 EST" || sell.FilledTime != sell.PlacedTime {
		t.Errorf("timestamps = %q/%q", sell.PlacedTime, sell.FilledTime)
	}

	expired := got[1]
	// Negative quantity means a short position expired, which buys it back.
	if expired.Side != domain.OrderSideBuy {
		t.Errorf("expired Side = %q, want Buy for negative quantity", expired.Side)
	}
	if expired.Filled != 2 {
		t.Errorf("expired Filled = %v, want absolute quantity 2", expired.Filled)
	}
	if expired.Price == nil || *expired.Price != 0 {
		t.Errorf("expired Price = %v, want 0", expired.Price)
	}
	// The first date in "01/17/2025 as of 01/18/2025" wins.
	if expired.PlacedTime != "01/17/2025 00:00:00 EST" {
		t.Errorf("expired PlacedTime = %q", expired.PlacedTime)
	}
}

func TestOCCSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TSLA 01/17/2025 300.00 C", "TSLA250117C00300000"},
		{"SPXW 08/30/2024 5,400.00 P", "SPXW240830P05400000"},
		{"BRK/B 06/20/2025 450.00 C", "BRKB250620C00450000"},
		{"XYZ 12/19/2025 612.50 P", "XYZ251219P00612500"},
		{"qqq 9/5/2025 7.50 C", "QQQ250905C00007500"},
	}
	for _, c := range cases {
		got, err := occSymbol(c.in)
		if err != nil {
			t.Errorf("occSymbol(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("occSymbol(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := occSymbol("AAPL"); err == nil {
		t.Error("occSymbol accepted a plain equity symbol")
	}
}

func TestConvertSchwabRowErrors(t *testing.T) {
	missingQty := `"Date","Action","Symbol","Quantity","Price"
"01/10/2025","Sell","TSLA 01/17/2025 300.00 C","","$1.25"
`
	if _, err := ConvertSchwab(strings.NewReader(missingQty), "EST"); err == nil {
		t.Error("missing quantity accepted")
	} else if !strings.Contains(err.Error(), "row 2") {
		t.Errorf("error %q does not name the row", err)
	}

	badDate := `"Date","Action","Symbol","Quantity","Price"
"soon","Sell","TSLA 01/17/2025 300.00 C","2","$1.25"
`
	if _, err := ConvertSchwab(strings.NewReader(badDate), "EST"); err == nil {
		t.Error("invalid date accepted")
	}
}

func TestParseSchwabDecimal(t *testing.T) {
	d, err := parseSchwabDecimal("$1,855.50")
	if err != nil || d == nil {
		t.Fatalf("parseSchwabDecimal: d=%v err=%v", d, err)
	}
	if d.String() != "1855.5" && d.String() != "1855.50" {
		t.Errorf("parsed value = %s, want 1855.5", d.String())
	}

	if d, err := parseSchwabDecimal("  "); err != nil || d != nil {
		t.Errorf("blank input: d=%v err=%v, want nil/nil", d, err)
	}
	if _, err := parseSchwabDecimal("abc"); err == nil {
		t.Error("garbage input accepted")
	}
}
