package utils

import (
	"fmt"
	"strings"

	"github.com/medicech/tesouro-quant/pkg/models"
)

// Short index prefixes used in bond ids.
var idPrefixes = map[models.IndexType]string{
	models.IndexIPCA:      "IPCA",
	models.IndexSELIC:     "SELIC",
	models.IndexPrefixado: "PRE",
	models.IndexOther:     "OUTROS",
}

// BondID builds the catalog id of a bond: PREFIX_(JS|STD)_YEAR, e.g.
// "IPCA_JS_2035" or "PRE_STD_2031".
func BondID(index models.IndexType, coupon models.CouponFlag, maturityYear int) string {
	prefix, ok := idPrefixes[index]
	if !ok {
		prefix = idPrefixes[models.IndexOther]
	}
	kind := "STD"
	if coupon == models.CouponWith {
		kind = "JS"
	}
	return fmt.Sprintf("%s_%s_%d", prefix, kind, maturityYear)
}

// InferIndex classifies a Tesouro title by its name, e.g. "Tesouro IPCA+ 2035"
// or "Tesouro Prefixado 2031". Renda+ and Educa+ pay monthly installments
// instead of a bullet or coupons, so they are classified OTHER and stay out
// of the IPCA curve.
func InferIndex(title string) models.IndexType {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "renda+"), strings.Contains(t, "educa+"):
		return models.IndexOther
	case strings.Contains(t, "selic"):
		return models.IndexSELIC
	case strings.Contains(t, "ipca"):
		return models.IndexIPCA
	case strings.Contains(t, "prefix"):
		return models.IndexPrefixado
	default:
		return models.IndexOther
	}
}

// InferCoupon reports WITH_COUPON for titles paying semi-annual interest.
func InferCoupon(title string) models.CouponFlag {
	if strings.Contains(strings.ToLower(title), "juros semestrais") {
		return models.CouponWith
	}
	return models.CouponNone
}

// NormalizeTitle collapses whitespace in a title name.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// TitleTag returns a short uppercase tag naming the product of a title: the
// first word after "Tesouro", letters and digits only, e.g. "EDUCA" for
// "Tesouro Educa+ 2030".
func TitleTag(title string) string {
	words := strings.Fields(title)
	if len(words) > 1 && strings.EqualFold(words[0], "tesouro") {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	tag := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, words[0])
	return tag
}
