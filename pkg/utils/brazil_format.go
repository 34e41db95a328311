// Package utils provides parsing and formatting helpers for Brazilian
// market data.
package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DateLayoutBR is the dd/mm/yyyy layout used by Tesouro and BCB sources.
const DateLayoutBR = "02/01/2006"

// ErrEmptyNumber is returned when a field holds no digits.
var ErrEmptyNumber = errors.New("empty number")

var rateRe = regexp.MustCompile(`([\d.,]+)\s*%`)

// ParseNumberBR parses a number written with Brazilian separators
// ("1.234,56", "R$ 35,12", "13,21%", "-0,5"). A value without a comma is
// read as a plain decimal ("1234.56").
func ParseNumberBR(s string) (float64, error) {
	clean := strings.NewReplacer("R$", "", "%", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if clean == "" || clean == "-" {
		return math.NaN(), ErrEmptyNumber
	}
	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("parse number %q: %w", s, err)
	}
	return v, nil
}

// ParseRateBR extracts the percentage from a quoted rate such as
// "IPCA + 6,50%", "SELIC + 0,0945%" or "13,21%".
func ParseRateBR(s string) (float64, error) {
	m := rateRe.FindStringSubmatch(s)
	if m == nil {
		return math.NaN(), fmt.Errorf("no rate in %q", s)
	}
	return ParseNumberBR(m[1])
}

// ParseDateBR parses a dd/mm/yyyy date as UTC midnight.
func ParseDateBR(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayoutBR, strings.TrimSpace(s), time.UTC)
}

// FormatDateBR formats t as dd/mm/yyyy.
func FormatDateBR(t time.Time) string {
	return t.Format(DateLayoutBR)
}

// FormatBRL formats amount as Brazilian reais ("R$1.234,56"), rounding to
// the cent.
func FormatBRL(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "-"
	}
	return FormatBRLDecimal(decimal.NewFromFloat(amount))
}

// FormatBRLDecimal formats an exact decimal amount as reais.
func FormatBRLDecimal(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.BRL)
	cents := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(cents.IntPart(), money.BRL).Display()
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if math.IsNaN(pct) {
		return "-"
	}
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatRate formats an annual rate as "10.28% a.a.".
func FormatRate(pct float64) string {
	if math.IsNaN(pct) {
		return "-"
	}
	return fmt.Sprintf("%.2f%% a.a.", pct)
}
