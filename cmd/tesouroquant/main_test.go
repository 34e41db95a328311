package main

import (
	"testing"

	"github.com/medicech/tesouro-quant/pkg/models"
)

func TestParsePositions(t *testing.T) {
	got, err := parsePositions([]string{"PRE_STD_2031=3", "IPCA_JS_2035=1.5@4200.10"})
	if err != nil {
		t.Fatalf("parsePositions: %v", err)
	}
	want := []models.Position{
		{BondID: "PRE_STD_2031", Quantity: 3},
		{BondID: "IPCA_JS_2035", Quantity: 1.5, UnitPrice: 4200.10},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParsePositionsErrors(t *testing.T) {
	for _, arg := range []string{"PRE_STD_2031", "=3", "PRE_STD_2031=x", "PRE_STD_2031=1@y"} {
		if _, err := parsePositions([]string{arg}); err == nil {
			t.Errorf("%q: expected an error", arg)
		}
	}
}

func TestFilterFlags(t *testing.T) {
	pre := models.Bond{IndexType: models.IndexPrefixado, Coupon: models.CouponNone}
	preJS := models.Bond{IndexType: models.IndexPrefixado, Coupon: models.CouponWith}
	ipca := models.Bond{IndexType: models.IndexIPCA, Coupon: models.CouponWith}

	tests := []struct {
		index, coupon string
		want          [3]bool
	}{
		{"", "", [3]bool{true, true, true}},
		{"PRE", "", [3]bool{true, true, false}},
		{"", "WITH_COUPON", [3]bool{false, true, true}},
		{"prefixado", "NO_COUPON", [3]bool{true, false, false}},
	}
	for _, tt := range tests {
		if err := bondsCmd.Flags().Set("index", tt.index); err != nil {
			t.Fatal(err)
		}
		if err := bondsCmd.Flags().Set("coupon", tt.coupon); err != nil {
			t.Fatal(err)
		}
		keep, err := filterFlags(bondsCmd)
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.index, tt.coupon, err)
		}
		got := [3]bool{keep(pre), keep(preJS), keep(ipca)}
		if got != tt.want {
			t.Errorf("%q/%q: got %v, want %v", tt.index, tt.coupon, got, tt.want)
		}
	}

	_ = bondsCmd.Flags().Set("index", "CDB")
	if _, err := filterFlags(bondsCmd); err == nil {
		t.Error("expected an error for an unknown index")
	}
	_ = bondsCmd.Flags().Set("index", "")
}

func TestShockFlag(t *testing.T) {
	defer func() { _ = stressCmd.Flags().Set("shock", "0") }()
	for _, raw := range []string{"NaN", "+Inf", "-Inf"} {
		if err := stressCmd.Flags().Set("shock", raw); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if _, err := shockFlag(stressCmd); err == nil {
			t.Errorf("%s: expected an error", raw)
		}
	}
	if err := stressCmd.Flags().Set("shock", "150"); err != nil {
		t.Fatal(err)
	}
	if got, err := shockFlag(stressCmd); err != nil || got != 150 {
		t.Errorf("150: got %v, %v", got, err)
	}
}

func TestOrNA(t *testing.T) {
	if got := orNA(models.NaN(), fixed(2)); got != "n/d" {
		t.Errorf("NaN: got %q", got)
	}
	if got := orNA(models.Float(3.14159), fixed(2)); got != "3.14" {
		t.Errorf("got %q", got)
	}
	if got := truncate("Tesouro IPCA+ com Juros Semestrais", 10); got != "Tesouro I…" {
		t.Errorf("truncate: got %q", got)
	}
}
