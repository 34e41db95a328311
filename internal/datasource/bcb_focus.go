package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/pkg/models"
)

// DefaultFocusIndicators are the annual Focus indicators collected by default.
var DefaultFocusIndicators = []string{"IPCA", "Selic", "PIB Total", "Câmbio"}

// DefaultFocusTop is the number of rows requested per indicator.
const DefaultFocusTop = 100

const focusDateLayout = "2006-01-02"

// Focus reads annual market expectations (Focus survey) from the BCB Olinda
// OData service.
type Focus struct {
	client  *Client
	baseURL string
}

// NewFocus creates the Focus expectations source.
func NewFocus(client *Client, baseURL string) *Focus {
	return &Focus{client: client, baseURL: baseURL}
}

// Name returns the data source name.
func (f *Focus) Name() string { return "BCB Focus" }

// Expectations returns the most recent `top` survey rows for one indicator,
// averaged per (date, indicator, reference year).
func (f *Focus) Expectations(ctx context.Context, indicator string, top int) ([]models.Expectation, error) {
	if top <= 0 {
		top = DefaultFocusTop
	}
	u := f.queryURL(indicator, top)

	return infra.Fetch(f.client.Cache, "focus:"+u, func() ([]models.Expectation, error) {
		body, err := f.client.get(ctx, u, map[string]string{"Accept": "application/json"})
		if err != nil {
			return nil, fmt.Errorf("focus %s: %w", indicator, err)
		}
		defer body.Close()

		var jobj any
		if err := json.NewDecoder(body).Decode(&jobj); err != nil {
			return nil, fmt.Errorf("focus %s: decode: %w", indicator, err)
		}
		exps, err := parseFocusRows(jobj)
		if err != nil {
			return nil, fmt.Errorf("focus %s: %w", indicator, err)
		}
		return exps, nil
	})
}

// All fetches every indicator in turn and merges the rows. Indicators that
// fail are logged and skipped; an error is returned only when all fail.
func (f *Focus) All(ctx context.Context, indicators []string, top int) ([]models.Expectation, error) {
	if len(indicators) == 0 {
		indicators = DefaultFocusIndicators
	}
	var (
		all     []models.Expectation
		lastErr error
	)
	for _, ind := range indicators {
		exps, err := f.Expectations(ctx, ind, top)
		if err != nil {
			f.client.logger().WithError(err).WithField("indicator", ind).Warn("focus indicator skipped")
			lastErr = err
			continue
		}
		all = append(all, exps...)
	}
	if len(all) == 0 {
		if lastErr == nil {
			lastErr = ErrNoData
		}
		return nil, lastErr
	}
	return DedupeExpectations(all), nil
}

// queryURL builds the OData query by hand: Olinda rejects '+' for spaces,
// so every space is sent as %20.
func (f *Focus) queryURL(indicator string, top int) string {
	filter := url.PathEscape(fmt.Sprintf("Indicador eq '%s'", indicator))
	return fmt.Sprintf("%s?$filter=%s&$top=%d&$orderby=Data%%20desc&$format=json",
		f.baseURL, filter, top)
}

// parseFocusRows reads $.value[*] and averages duplicate rows.
func parseFocusRows(jobj any) ([]models.Expectation, error) {
	jval, err := jsonpath.Get("$.value[*]", jobj)
	if err != nil {
		return nil, fmt.Errorf("read $.value: %w", err)
	}
	rows, ok := jval.([]any)
	if !ok || len(rows) == 0 {
		return nil, ErrNoData
	}

	out := make([]models.Expectation, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		e, ok := focusRow(row)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return DedupeExpectations(out), nil
}

func focusRow(row map[string]any) (models.Expectation, bool) {
	ds, _ := row["Data"].(string)
	d, err := time.Parse(focusDateLayout, ds)
	if err != nil {
		return models.Expectation{}, false
	}
	ind, _ := row["Indicador"].(string)
	if ind == "" {
		return models.Expectation{}, false
	}

	var year int
	switch v := row["DataReferencia"].(type) {
	case string:
		year, err = strconv.Atoi(v)
		if err != nil {
			return models.Expectation{}, false
		}
	case float64:
		year = int(v)
	default:
		return models.Expectation{}, false
	}

	median, ok := row["Mediana"].(float64)
	if !ok {
		return models.Expectation{}, false
	}
	return models.Expectation{Date: d, Indicator: ind, Year: year, Median: median}, true
}

type expKey struct {
	date      time.Time
	indicator string
	year      int
}

// DedupeExpectations averages the medians of rows sharing (date, indicator,
// year) and returns them sorted by date, indicator and year.
func DedupeExpectations(exps []models.Expectation) []models.Expectation {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[expKey]*acc, len(exps))
	for _, e := range exps {
		k := expKey{e.Date, e.Indicator, e.Year}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.sum += e.Median
		a.n++
	}

	out := make([]models.Expectation, 0, len(groups))
	for k, a := range groups {
		out = append(out, models.Expectation{
			Date:      k.date,
			Indicator: k.indicator,
			Year:      k.year,
			Median:    a.sum / float64(a.n),
		})
	}
	sortExpectations(out)
	return out
}

// LatestSnapshot returns the rows collected on the most recent date,
// sorted by indicator and year.
func LatestSnapshot(exps []models.Expectation) []models.Expectation {
	var latest time.Time
	for _, e := range exps {
		if e.Date.After(latest) {
			latest = e.Date
		}
	}
	var out []models.Expectation
	for _, e := range exps {
		if e.Date.Equal(latest) {
			out = append(out, e)
		}
	}
	sortExpectations(out)
	return out
}

func sortExpectations(exps []models.Expectation) {
	sort.SliceStable(exps, func(i, j int) bool {
		a, b := exps[i], exps[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Indicator != b.Indicator {
			return a.Indicator < b.Indicator
		}
		return a.Year < b.Year
	})
}
