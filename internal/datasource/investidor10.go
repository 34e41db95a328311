package datasource

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/medicech/tesouro-quant/internal/infra"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Investidor10 scrapes the public Tesouro Direto ranking table of
// investidor10.com.br. It only carries the buy side; sell fields stay NaN.
type Investidor10 struct {
	client *Client
	url    string
	now    func() time.Time
}

// NewInvestidor10 creates the Investidor10 scraping source.
func NewInvestidor10(client *Client, url string) *Investidor10 {
	return &Investidor10{client: client, url: url, now: utils.TodayBRT}
}

// Name returns the data source name.
func (s *Investidor10) Name() string { return "Investidor10" }

// FetchOffers downloads and parses the ranking table. The page has no base
// date, so every offer is stamped with today's date in Brasília.
func (s *Investidor10) FetchOffers(ctx context.Context) ([]RawOffer, error) {
	return infra.Fetch(s.client.Cache, "investidor10:offers", func() ([]RawOffer, error) {
		body, err := s.client.get(ctx, s.url, map[string]string{"Accept": "text/html"})
		if err != nil {
			return nil, fmt.Errorf("investidor10: %w", err)
		}
		defer body.Close()

		offers, err := ParseInvestidor10(body, s.now())
		if err != nil {
			return nil, fmt.Errorf("investidor10: %w", err)
		}
		s.client.logger().WithField("rows", len(offers)).Info("investidor10 table loaded")
		return offers, nil
	})
}

// ParseInvestidor10 extracts offers from the ranking HTML. Each row holds
// name, rate, minimum investment, unit price and maturity in cells 1 to 5.
func ParseInvestidor10(r io.Reader, base time.Time) ([]RawOffer, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	table := doc.Find("table#rankigns").First()
	if table.Length() == 0 {
		table = doc.Find("table.table").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: ranking table not found", ErrNoData)
	}

	var offers []RawOffer
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}
		text := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		name := utils.NormalizeTitle(text(1))
		if name == "" || strings.Contains(name, "Título") {
			return
		}
		maturity, err := utils.ParseDateBR(text(5))
		if err != nil {
			return
		}

		o := newRawOffer(name)
		o.BaseDate = base
		o.MaturityDate = maturity
		o.BuyRate = parseOrNaN(utils.ParseRateBR, text(2))
		o.MinInvestment = parseOrNaN(utils.ParseNumberBR, text(3))
		o.BuyPrice = parseOrNaN(utils.ParseNumberBR, text(4))
		offers = append(offers, o)
	})

	if len(offers) == 0 {
		return nil, ErrNoData
	}
	return offers, nil
}

func parseOrNaN(parse func(string) (float64, error), s string) float64 {
	v, err := parse(s)
	if err != nil {
		return math.NaN()
	}
	return v
}
