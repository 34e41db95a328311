package datasource

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Normalize turns raw offers into catalog bonds: it infers index and coupon
// from the title, builds the id, drops rows without dates and keeps one bond
// per (base date, title, maturity). Distinct titles that would share an id,
// such as Renda+ and Educa+ maturing in the same year, get the product tag
// appended to the later id. The result is sorted by index, coupon and
// maturity.
func Normalize(raw []RawOffer) ([]models.Bond, error) {
	type rowKey struct {
		base, maturity time.Time
		title          string
	}
	type idKey struct {
		base time.Time
		id   string
	}
	seen := make(map[rowKey]bool, len(raw))
	owners := make(map[idKey]string, len(raw))
	bonds := make([]models.Bond, 0, len(raw))

	for _, r := range raw {
		title := utils.NormalizeTitle(r.Title)
		if title == "" || r.BaseDate.IsZero() || r.MaturityDate.IsZero() {
			continue
		}
		year := r.MaturityDate.Year()
		if y := strconv.Itoa(year); !strings.Contains(title, y) {
			title += " " + y
		}

		rk := rowKey{r.BaseDate, r.MaturityDate, title}
		if seen[rk] {
			continue
		}
		seen[rk] = true

		index := utils.InferIndex(title)
		coupon := utils.InferCoupon(title)
		id := utils.BondID(index, coupon, year)
		if _, taken := owners[idKey{r.BaseDate, id}]; taken {
			base := id
			if tag := utils.TitleTag(title); tag != "" {
				base += "_" + tag
			}
			id = base
			for n := 2; ; n++ {
				if _, taken := owners[idKey{r.BaseDate, id}]; !taken {
					break
				}
				id = base + "_" + strconv.Itoa(n)
			}
		}
		owners[idKey{r.BaseDate, id}] = title

		bonds = append(bonds, models.Bond{
			ID:            id,
			TitleName:     title,
			IndexType:     index,
			Coupon:        coupon,
			BaseDate:      r.BaseDate,
			MaturityDate:  r.MaturityDate,
			BuyRate:       models.Float(r.BuyRate),
			SellRate:      models.Float(r.SellRate),
			BuyPrice:      models.Float(r.BuyPrice),
			SellPrice:     models.Float(r.SellPrice),
			BasePrice:     models.Float(r.BasePrice),
			MinInvestment: models.Float(r.MinInvestment),
		})
	}

	if len(bonds) == 0 {
		return nil, ErrNoData
	}
	SortBonds(bonds)
	return bonds, nil
}

// SortBonds orders bonds by index type, coupon flag, maturity and id.
func SortBonds(bonds []models.Bond) {
	sort.SliceStable(bonds, func(i, j int) bool {
		a, b := bonds[i], bonds[j]
		if a.IndexType != b.IndexType {
			return a.IndexType < b.IndexType
		}
		if a.Coupon != b.Coupon {
			return a.Coupon < b.Coupon
		}
		if !a.MaturityDate.Equal(b.MaturityDate) {
			return a.MaturityDate.Before(b.MaturityDate)
		}
		return a.ID < b.ID
	})
}
