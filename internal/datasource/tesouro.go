package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Tesouro Transparente CSV column names.
const (
	colTitle     = "Tipo Titulo"
	colMaturity  = "Data Vencimento"
	colBaseDate  = "Data Base"
	colBuyRate   = "Taxa Compra Manha"
	colSellRate  = "Taxa Venda Manha"
	colBuyPrice  = "PU Compra Manha"
	colSellPrice = "PU Venda Manha"
	colBasePrice = "PU Base Manha"
)

var tesouroRequired = []string{
	colTitle, colMaturity, colBaseDate,
	colBuyRate, colSellRate, colBuyPrice, colSellPrice,
}

// Tesouro downloads the official price and rate history published by
// Tesouro Transparente and keeps the most recent base date.
type Tesouro struct {
	client *Client
	url    string
}

// NewTesouro creates the Tesouro Transparente source.
func NewTesouro(client *Client, url string) *Tesouro {
	return &Tesouro{client: client, url: url}
}

// Name returns the data source name.
func (t *Tesouro) Name() string { return "Tesouro Transparente" }

// FetchOffers downloads the CSV and returns the rows of its latest base date.
func (t *Tesouro) FetchOffers(ctx context.Context) ([]RawOffer, error) {
	return infra.Fetch(t.client.Cache, "tesouro:offers", func() ([]RawOffer, error) {
		body, err := t.client.get(ctx, t.url, map[string]string{"Accept": "text/csv, */*"})
		if err != nil {
			return nil, fmt.Errorf("tesouro csv: %w", err)
		}
		defer body.Close()

		offers, err := ParseTesouroCSV(body)
		if err != nil {
			return nil, fmt.Errorf("tesouro csv: %w", err)
		}
		t.client.logger().WithField("rows", len(offers)).Info("tesouro csv loaded")
		return offers, nil
	})
}

// ParseTesouroCSV reads the semicolon separated, comma-decimal CSV and
// returns only the rows whose "Data Base" is the latest in the file.
// Rows with an unparseable base date are skipped; other blank cells become NaN.
func ParseTesouroCSV(r io.Reader) ([]RawOffer, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range tesouroRequired {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(rec []string, col string) float64 {
		v, err := utils.ParseNumberBR(cell(rec, col))
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var (
		offers []RawOffer
		latest time.Time
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		base, err := utils.ParseDateBR(cell(rec, colBaseDate))
		if err != nil {
			continue
		}
		if base.Before(latest) {
			continue
		}
		if base.After(latest) {
			latest = base
			offers = offers[:0]
		}
		o := newRawOffer(cell(rec, colTitle))
		o.BaseDate = base
		if m, err := utils.ParseDateBR(cell(rec, colMaturity)); err == nil {
			o.MaturityDate = m
		}
		o.BuyRate = num(rec, colBuyRate)
		o.SellRate = num(rec, colSellRate)
		o.BuyPrice = num(rec, colBuyPrice)
		o.SellPrice = num(rec, colSellPrice)
		o.BasePrice = num(rec, colBasePrice)
		offers = append(offers, o)
	}
	if len(offers) == 0 {
		return nil, ErrNoData
	}
	return offers, nil
}
