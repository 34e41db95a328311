package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ── Float ──

func TestFloatMarshalNaNAsNull(t *testing.T) {
	data, err := json.Marshal(struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}{A: NaN(), B: 1.5})
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}
	if string(data) != `{"a":null,"b":1.5}` {
		t.Errorf("got %s", data)
	}
}

func TestFloatUnmarshalNullAsNaN(t *testing.T) {
	var v struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":null,"b":2.25}`), &v); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if v.A.Valid() {
		t.Errorf("A should be NaN, got %v", v.A)
	}
	if v.B != 2.25 {
		t.Errorf("B: got %v, want 2.25", v.B)
	}
}

func TestFloatValidAndOr(t *testing.T) {
	if Float(math.Inf(1)).Valid() {
		t.Error("+Inf should not be valid")
	}
	if got := NaN().Or(7); got != 7 {
		t.Errorf("NaN.Or(7) = %v", got)
	}
	if got := Float(3).Or(7); got != 3 {
		t.Errorf("3.Or(7) = %v", got)
	}
}

// ── Bond ──

func TestBondTenorYears(t *testing.T) {
	b := Bond{BaseDate: date(2026, 1, 1), MaturityDate: date(2029, 1, 1)}
	want := 1096.0 / 365.25
	if got := b.TenorYears(); math.Abs(got-want) > 1e-12 {
		t.Errorf("TenorYears: got %v, want %v", got, want)
	}
	if !math.IsNaN(Bond{}.TenorYears()) {
		t.Error("TenorYears of a bond without dates should be NaN")
	}
}

func TestDaysBetweenIgnoresZone(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	a := time.Date(2026, 3, 1, 23, 30, 0, 0, brt)
	b := time.Date(2026, 3, 3, 0, 10, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 2 {
		t.Errorf("DaysBetween: got %d, want 2", got)
	}
}

func TestBondRatePriceByMode(t *testing.T) {
	b := Bond{BuyRate: 10.5, SellRate: 10.6, BuyPrice: 1000, SellPrice: 990}
	if b.Rate(ModeBuy) != 10.5 || b.Rate(ModeSell) != 10.6 {
		t.Errorf("Rate by mode wrong: %v / %v", b.Rate(ModeBuy), b.Rate(ModeSell))
	}
	if b.Price(ModeBuy) != 1000 || b.Price(ModeSell) != 990 {
		t.Errorf("Price by mode wrong: %v / %v", b.Price(ModeBuy), b.Price(ModeSell))
	}
}

func TestBondPriceable(t *testing.T) {
	tests := []struct {
		name string
		b    Bond
		want bool
	}{
		{"future maturity", Bond{BaseDate: date(2026, 1, 1), MaturityDate: date(2030, 1, 1)}, true},
		{"same day", Bond{BaseDate: date(2026, 1, 1), MaturityDate: date(2026, 1, 1)}, false},
		{"no base", Bond{MaturityDate: date(2030, 1, 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Priceable(); got != tt.want {
				t.Errorf("Priceable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBondJSONKeepsMissingQuotes(t *testing.T) {
	b := Bond{
		ID:           "PRE_STD_2031",
		TitleName:    "Tesouro Prefixado 2031",
		IndexType:    IndexPrefixado,
		Coupon:       CouponNone,
		BaseDate:     date(2026, 1, 2),
		MaturityDate: date(2031, 1, 1),
		BuyRate:      13.1,
		SellRate:     NaN(),
		BuyPrice:     550.12,
		SellPrice:    NaN(),
	}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("json.Marshal(Bond) error: %v", err)
	}
	if !strings.Contains(string(data), `"sell_rate":null`) {
		t.Errorf("expected null sell_rate in %s", data)
	}
	var decoded Bond
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal(Bond) error: %v", err)
	}
	if decoded.SellRate.Valid() {
		t.Error("SellRate should decode as NaN")
	}
	if decoded.BuyRate != 13.1 {
		t.Errorf("BuyRate: got %v", decoded.BuyRate)
	}
}

// ── Parsers ──

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeBuy, false},
		{"buy", ModeBuy, false},
		{"Compra", ModeBuy, false},
		{"SELL", ModeSell, false},
		{"venda", ModeSell, false},
		{"hold", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) err = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIndexTypeAndCoupon(t *testing.T) {
	if got, _ := ParseIndexType("pre"); got != IndexPrefixado {
		t.Errorf("ParseIndexType(pre) = %q", got)
	}
	if got, _ := ParseIndexType("OUTROS"); got != IndexOther {
		t.Errorf("ParseIndexType(OUTROS) = %q", got)
	}
	if _, err := ParseIndexType("CDI"); err == nil {
		t.Error("expected error for CDI")
	}
	if got, _ := ParseCouponFlag("com cupom"); got != CouponWith {
		t.Errorf("ParseCouponFlag(com cupom) = %q", got)
	}
	if got, _ := ParseCouponFlag("SEM CUPOM"); got != CouponNone {
		t.Errorf("ParseCouponFlag(SEM CUPOM) = %q", got)
	}
}

func TestFilterBondsByIndex(t *testing.T) {
	bonds := []Bond{
		{ID: "a", IndexType: IndexIPCA, Coupon: CouponWith},
		{ID: "b", IndexType: IndexIPCA, Coupon: CouponNone},
		{ID: "c", IndexType: IndexPrefixado, Coupon: CouponNone},
	}
	if got := FilterBonds(bonds, ByIndex(IndexIPCA, "")); len(got) != 2 {
		t.Errorf("IPCA any coupon: got %d bonds", len(got))
	}
	got := FilterBonds(bonds, ByIndex(IndexIPCA, CouponNone))
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("IPCA no coupon: got %+v", got)
	}
}
