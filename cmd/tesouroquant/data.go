package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medicech/tesouro-quant/internal/advisor"
	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/internal/datasource"
	"github.com/medicech/tesouro-quant/internal/llm"
	"github.com/medicech/tesouro-quant/internal/pricing"
	"github.com/medicech/tesouro-quant/internal/termstructure"
	"github.com/medicech/tesouro-quant/pkg/models"
)

// stack holds the stores every command reads from.
type stack struct {
	store   *catalog.FileStore
	history *catalog.History
	memory  *catalog.StaticProvider
}

// openStack opens the file store and, when withHistory is set, the sqlite
// archive. A history that cannot be opened is logged and left out.
func openStack(withHistory bool) *stack {
	s := &stack{
		store:  catalog.NewFileStore(cfg.Data.Dir, log),
		memory: catalog.NewStaticProvider(nil),
	}
	if withHistory && cfg.Data.HistoryDB != "" {
		h, err := catalog.OpenHistory(cfg.Data.HistoryDB, log)
		if err != nil {
			log.WithError(err).Warn("history unavailable")
		} else {
			s.history = h
		}
	}
	return s
}

// provider serves the freshest snapshot: memory, then files, then history.
func (s *stack) provider() catalog.Provider {
	chain := catalog.Chain{s.memory, s.store}
	if s.history != nil {
		chain = append(chain, s.history)
	}
	return chain
}

func (s *stack) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			log.WithError(err).Warn("closing history")
		}
	}
}

// openData returns a read-only provider over the stored data.
func openData(_ context.Context, withHistory bool) catalog.Provider {
	return openStack(withHistory).provider()
}

// loadSnapshot reads the latest snapshot with a friendly hint when there is none.
func loadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	snap, err := openData(ctx, false).Latest(ctx)
	if errors.Is(err, catalog.ErrNoSnapshot) {
		return nil, fmt.Errorf("no market data in %s; run `tesouroquant fetch` first", cfg.Data.Dir)
	}
	return snap, err
}

func newAggregator() *datasource.Aggregator {
	return datasource.NewAggregator(cfg.Sources, log)
}

func newEngine() *pricing.Engine {
	return pricing.NewEngine(pricing.WithSyntheticCouponRate(cfg.Pricing.SyntheticCouponRate))
}

func curveOptions() []termstructure.Option {
	return []termstructure.Option{
		termstructure.WithMaxTenor(cfg.Curve.MaxTenor),
		termstructure.WithStep(cfg.Curve.Step),
	}
}

// newAdvisor wires the LLM router from config. It returns nil, nil when no
// provider is configured.
func newAdvisor(ctx context.Context, data catalog.Provider) (*advisor.Advisor, error) {
	router, err := llm.NewRouterFromConfig(ctx, cfg.LLM, log)
	if err != nil {
		if errors.Is(err, llm.ErrNoProviders) {
			return nil, nil
		}
		return nil, err
	}
	return advisor.New(router, data,
		advisor.WithEngine(newEngine()),
		advisor.WithCurveOptions(cfg.Curve.MinVertices, curveOptions()...),
		advisor.WithLogger(log),
	), nil
}

// modeFlag reads the persistent --mode flag.
func modeFlag(flags interface{ GetString(string) (string, error) }) (models.Mode, error) {
	raw, _ := flags.GetString("mode")
	return models.ParseMode(raw)
}

// orNA renders a missing value as "n/d".
func orNA(f models.Float, format func(float64) string) string {
	if !f.Valid() {
		return "n/d"
	}
	return format(float64(f))
}

func fixed(digits int) func(float64) string {
	return func(v float64) string { return fmt.Sprintf("%.*f", digits, v) }
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func rule(n int) string { return strings.Repeat("─", n) }
