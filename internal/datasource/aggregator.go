package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/medicech/tesouro-quant/internal/config"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// OfferSource is any source of raw Tesouro Direto quotes.
type OfferSource interface {
	Name() string
	FetchOffers(ctx context.Context) ([]RawOffer, error)
}

// MarketData is the result of one refresh across all sources.
type MarketData struct {
	Bonds         []models.Bond        `json:"bonds"`
	CatalogSource string               `json:"catalog_source"`
	Selic         []models.SeriesPoint `json:"selic,omitempty"`
	Focus         []models.Expectation `json:"focus,omitempty"`
	News          []models.NewsArticle `json:"news,omitempty"`
	FetchedAt     time.Time            `json:"fetched_at"`
	Errors        []string             `json:"errors,omitempty"`
}

// Aggregator fetches the catalog and macro data from all sources concurrently.
type Aggregator struct {
	catalog []OfferSource // tried in order
	sgs     *SGS
	focus   *Focus
	news    *News
	log     logrus.FieldLogger

	// NewsLimit caps the headlines kept per refresh.
	NewsLimit int
}

// NewAggregator creates an aggregator over the configured endpoints. The
// official Tesouro CSV is tried first, then the Investidor10 page.
func NewAggregator(cfg config.SourcesConfig, log logrus.FieldLogger) *Aggregator {
	client := NewClient(cfg, log)
	return NewAggregatorWithClient(client, cfg)
}

// NewAggregatorWithClient is NewAggregator over an existing Client.
func NewAggregatorWithClient(client *Client, cfg config.SourcesConfig) *Aggregator {
	return &Aggregator{
		catalog: []OfferSource{
			NewTesouro(client, cfg.TesouroCSVURL),
			NewInvestidor10(client, cfg.Investidor10URL),
		},
		sgs:       NewSGS(client, cfg.SGSURL),
		focus:     NewFocus(client, cfg.FocusURL),
		news:      NewNews(client, cfg.NewsFeeds),
		log:       client.logger(),
		NewsLimit: 20,
	}
}

// SGS returns the SGS source for direct access.
func (a *Aggregator) SGS() *SGS { return a.sgs }

// Focus returns the Focus source for direct access.
func (a *Aggregator) Focus() *Focus { return a.focus }

// News returns the news source for direct access.
func (a *Aggregator) News() *News { return a.news }

// FetchCatalog tries each catalog source in order and returns the normalized
// bonds of the first one that succeeds, with that source's name.
func (a *Aggregator) FetchCatalog(ctx context.Context) ([]models.Bond, string, error) {
	var errs []error
	for _, src := range a.catalog {
		raw, err := src.FetchOffers(ctx)
		if err == nil {
			var bonds []models.Bond
			bonds, err = Normalize(raw)
			if err == nil {
				a.log.WithFields(logrus.Fields{"source": src.Name(), "bonds": len(bonds)}).Info("catalog fetched")
				return bonds, src.Name(), nil
			}
		}
		a.log.WithError(err).WithField("source", src.Name()).Warn("catalog source failed")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, "", ErrNoData
	}
	return nil, "", fmt.Errorf("all catalog sources failed: %w", errors.Join(errs...))
}

// Refresh fetches the catalog, Selic target, Focus expectations and news
// concurrently. Macro and news failures are recorded in MarketData.Errors;
// only a catalog failure fails the refresh.
func (a *Aggregator) Refresh(ctx context.Context) (*MarketData, error) {
	data := &MarketData{FetchedAt: utils.NowBRT()}

	var mu sync.Mutex
	var errs []error
	record := func(what string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	// 1. Catalog: Tesouro CSV with Investidor10 as fallback.
	var catalogErr error
	g.Go(func() error {
		bonds, source, err := a.FetchCatalog(gctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			catalogErr = err
			return nil
		}
		data.Bonds = bonds
		data.CatalogSource = source
		return nil
	})

	// 2. Selic target.
	g.Go(func() error {
		series, err := a.sgs.SelicMeta(gctx, time.Time{})
		if err != nil {
			record("selic", err)
			return nil // non-fatal
		}
		mu.Lock()
		data.Selic = series
		mu.Unlock()
		return nil
	})

	// 3. Focus expectations.
	g.Go(func() error {
		exps, err := a.focus.All(gctx, nil, 0)
		if err != nil {
			record("focus", err)
			return nil
		}
		mu.Lock()
		data.Focus = exps
		mu.Unlock()
		return nil
	})

	// 4. News headlines.
	if len(a.news.feeds) > 0 {
		g.Go(func() error {
			articles, err := a.news.Latest(gctx, a.NewsLimit)
			if err != nil {
				record("news", err)
				return nil
			}
			mu.Lock()
			data.News = articles
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return data, err
	}

	for _, err := range errs {
		data.Errors = append(data.Errors, err.Error())
		a.log.WithError(err).Warn("partial refresh failure")
	}
	if catalogErr != nil {
		return data, catalogErr
	}
	return data, nil
}
