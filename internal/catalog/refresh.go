package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/datasource"
	"github.com/medicech/tesouro-quant/internal/logging"
)

// Chain is a Provider that returns the first snapshot any of its providers
// has. Providers reporting ErrNoSnapshot are skipped; other errors stop the
// search.
type Chain []Provider

// Latest implements Provider.
func (c Chain) Latest(ctx context.Context) (*Snapshot, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		snap, err := p.Latest(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			return nil, err
		}
	}
	return nil, ErrNoSnapshot
}

// Fetcher produces fresh market data. *datasource.Aggregator implements it.
type Fetcher interface {
	Refresh(ctx context.Context) (*datasource.MarketData, error)
}

// RefreshResult reports what a refresh stored.
type RefreshResult struct {
	Snapshot    *Snapshot `json:"snapshot"`
	Path        string    `json:"path,omitempty"`
	HistoryRows int       `json:"history_rows"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Refresher fetches market data and stores it everywhere it is kept: the
// file store, the sqlite history and the in-memory provider. Each sink is
// optional.
type Refresher struct {
	fetcher Fetcher
	store   *FileStore
	history *History
	memory  *StaticProvider
	log     logrus.FieldLogger
}

// NewRefresher creates a refresher. Any of store, history and memory may be nil.
func NewRefresher(fetcher Fetcher, store *FileStore, history *History, memory *StaticProvider, log logrus.FieldLogger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		store:   store,
		history: history,
		memory:  memory,
		log:     logging.OrDiscard(log),
	}
}

// Refresh fetches and stores a new snapshot. It fails only when no bonds were
// fetched or the catalog file could not be written; source and history
// problems are returned as warnings.
func (r *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	md, err := r.fetcher.Refresh(ctx)
	if md == nil || len(md.Bonds) == 0 {
		if err == nil {
			err = datasource.ErrNoData
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	res := &RefreshResult{Snapshot: FromMarketData(md), Warnings: md.Errors}
	if r.store != nil {
		path, err := r.store.Save(ctx, res.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		res.Path = path
	}
	if r.history != nil {
		n, err := r.history.Append(ctx, res.Snapshot.Bonds)
		if err != nil {
			r.log.WithError(err).Warn("history append failed")
			res.Warnings = append(res.Warnings, err.Error())
		}
		res.HistoryRows = n
	}
	if r.memory != nil {
		r.memory.Set(res.Snapshot)
	}

	r.log.WithFields(logrus.Fields{
		"source":    res.Snapshot.Source,
		"base_date": res.Snapshot.BaseDate.Format(fileDate),
		"bonds":     len(res.Snapshot.Bonds),
		"warnings":  len(res.Warnings),
	}).Info("market data refreshed")
	return res, nil
}
