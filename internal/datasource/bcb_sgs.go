package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Well-known SGS series codes.
const (
	SeriesSelicMeta  = 432 // Selic target, % a.a.
	SeriesSelicDaily = 11  // effective Selic, % a.d.
	SeriesIPCA       = 433 // IPCA monthly change, %
	SeriesIPCA12m    = 13522
)

// DefaultSelicLookback is how far back SelicMeta reads when no start is given.
const DefaultSelicLookback = 5 * 365 * 24 * time.Hour

// SGS reads time series from the Banco Central SGS JSON API.
type SGS struct {
	client  *Client
	urlTmpl string // with %d for the series code
}

// NewSGS creates an SGS source. urlTmpl must contain %d for the series code.
func NewSGS(client *Client, urlTmpl string) *SGS {
	return &SGS{client: client, urlTmpl: urlTmpl}
}

// Name returns the data source name.
func (s *SGS) Name() string { return "BCB SGS" }

type sgsPoint struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// Series returns the observations of one series between from and to
// (inclusive), sorted by date. Zero bounds are omitted from the query.
func (s *SGS) Series(ctx context.Context, code int, from, to time.Time) ([]models.SeriesPoint, error) {
	q := url.Values{}
	q.Set("formato", "json")
	if !from.IsZero() {
		q.Set("dataInicial", utils.FormatDateBR(from))
	}
	if !to.IsZero() {
		q.Set("dataFinal", utils.FormatDateBR(to))
	}
	u := fmt.Sprintf(s.urlTmpl, code) + "?" + q.Encode()

	return infra.Fetch(s.client.Cache, "sgs:"+u, func() ([]models.SeriesPoint, error) {
		body, err := s.client.get(ctx, u, map[string]string{"Accept": "application/json"})
		if err != nil {
			return nil, fmt.Errorf("sgs %d: %w", code, err)
		}
		defer body.Close()

		var raw []sgsPoint
		if err := json.NewDecoder(body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("sgs %d: decode: %w", code, err)
		}
		points := parseSGSPoints(raw)
		if len(points) == 0 {
			return nil, fmt.Errorf("sgs %d: %w", code, ErrNoData)
		}
		return points, nil
	})
}

// SelicMeta returns the Selic target series from `from` until today.
// A zero from reads the last five years.
func (s *SGS) SelicMeta(ctx context.Context, from time.Time) ([]models.SeriesPoint, error) {
	to := utils.TodayBRT()
	if from.IsZero() {
		from = to.Add(-DefaultSelicLookback)
	}
	return s.Series(ctx, SeriesSelicMeta, from, to)
}

func parseSGSPoints(raw []sgsPoint) []models.SeriesPoint {
	points := make([]models.SeriesPoint, 0, len(raw))
	for _, r := range raw {
		d, err := utils.ParseDateBR(r.Data)
		if err != nil {
			continue
		}
		v, err := utils.ParseNumberBR(strings.ReplaceAll(r.Valor, ",", "."))
		if err != nil {
			continue
		}
		points = append(points, models.SeriesPoint{Date: d, Value: v})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points
}

// LatestValue returns the observation with the most recent date.
func LatestValue(points []models.SeriesPoint) (models.SeriesPoint, bool) {
	if len(points) == 0 {
		return models.SeriesPoint{}, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}
	return latest, true
}
