package catalog

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/medicech/tesouro-quant/internal/datasource"
	"github.com/medicech/tesouro-quant/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleBonds(base time.Time) []models.Bond {
	return []models.Bond{
		{
			ID: "IPCA_STD_2035", TitleName: "Tesouro IPCA+ 2035",
			IndexType: models.IndexIPCA, Coupon: models.CouponNone,
			BaseDate: base, MaturityDate: date(2035, 5, 15),
			BuyRate: 7.05, SellRate: 7.17, BuyPrice: 1655, SellPrice: 1645,
			BasePrice: models.NaN(), MinInvestment: models.NaN(),
		},
		{
			ID: "PRE_STD_2031", TitleName: "Tesouro Prefixado 2031",
			IndexType: models.IndexPrefixado, Coupon: models.CouponNone,
			BaseDate: base, MaturityDate: date(2031, 1, 1),
			BuyRate: 13.5, SellRate: 13.62, BuyPrice: 560.12, SellPrice: 556.8,
			BasePrice: 556.7, MinInvestment: 33.6,
		},
	}
}

// ── Snapshot / StaticProvider ──

func TestSnapshotHelpers(t *testing.T) {
	md := &datasource.MarketData{
		Bonds:         sampleBonds(date(2025, 1, 3)),
		CatalogSource: "Tesouro Transparente",
		FetchedAt:     date(2025, 1, 3).Add(10 * time.Hour),
		Selic: []models.SeriesPoint{
			{Date: date(2024, 12, 12), Value: 12.25},
			{Date: date(2025, 1, 2), Value: 12.25},
		},
		Focus: []models.Expectation{
			{Date: date(2024, 12, 27), Indicator: "IPCA", Year: 2025, Median: 4.96},
			{Date: date(2025, 1, 3), Indicator: "IPCA", Year: 2025, Median: 4.99},
		},
	}
	snap := FromMarketData(md)
	if !snap.BaseDate.Equal(date(2025, 1, 3)) || snap.Source != "Tesouro Transparente" {
		t.Errorf("FromMarketData: %+v", snap)
	}

	b, err := snap.Find("PRE_STD_2031")
	if err != nil || b.BuyRate != 13.5 {
		t.Errorf("Find: %+v, %v", b, err)
	}
	if _, err := snap.Find("NOPE"); !errors.Is(err, ErrBondNotFound) {
		t.Errorf("Find missing: got %v", err)
	}

	if p, ok := snap.SelicRate(); !ok || !p.Date.Equal(date(2025, 1, 2)) {
		t.Errorf("SelicRate: %+v, %v", p, ok)
	}
	if latest := snap.FocusLatest(); len(latest) != 1 || latest[0].Median != 4.99 {
		t.Errorf("FocusLatest: %+v", latest)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(nil)
	if _, err := p.Latest(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("empty provider: got %v", err)
	}
	p.Set(&Snapshot{Bonds: sampleBonds(date(2025, 1, 3))})
	snap, err := p.Latest(context.Background())
	if err != nil || len(snap.Bonds) != 2 {
		t.Errorf("Latest: %v, %v", snap, err)
	}
}

// ── FileStore ──

func TestFileStoreSaveAndLatest(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, nil)
	ctx := context.Background()

	if _, err := store.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty store: got %v", err)
	}

	first := &Snapshot{Source: "Investidor10", Bonds: sampleBonds(date(2025, 1, 2))}
	if _, err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	second := &Snapshot{
		Source: "Tesouro Transparente",
		Bonds:  sampleBonds(date(2025, 1, 3)),
		Selic:  []models.SeriesPoint{{Date: date(2025, 1, 2), Value: 12.25}},
		Focus:  []models.Expectation{{Date: date(2025, 1, 3), Indicator: "Selic", Year: 2025, Median: 15}},
		News:   []models.NewsArticle{{Title: "Copom", URL: "https://www.bcb.gov.br/n/1"}},
	}
	path, err := store.Save(ctx, second)
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}
	if filepath.Base(path) != "tesouro_catalogo_2025-01-03.json" {
		t.Errorf("path: got %q", path)
	}
	if _, err := os.Stat(filepath.Join(dir, "tesouro_catalogo_2025-01-02.json")); !os.IsNotExist(err) {
		t.Errorf("old catalog should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "focus_snapshot_2025-01-03.json")); err != nil {
		t.Errorf("focus snapshot missing: %v", err)
	}

	snap, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap.Source != "Tesouro Transparente" || !snap.BaseDate.Equal(date(2025, 1, 3)) {
		t.Errorf("snapshot header: %+v", snap)
	}
	if len(snap.Bonds) != 2 || len(snap.Selic) != 1 || len(snap.Focus) != 1 || len(snap.News) != 1 {
		t.Errorf("snapshot contents: %d bonds %d selic %d focus %d news",
			len(snap.Bonds), len(snap.Selic), len(snap.Focus), len(snap.News))
	}
	// NaN survives the JSON round trip as null.
	if snap.Bonds[0].BasePrice.Valid() {
		t.Errorf("BasePrice should stay missing, got %v", snap.Bonds[0].BasePrice)
	}
}

func TestFileStoreRejectsEmpty(t *testing.T) {
	store := NewFileStore(t.TempDir(), nil)
	if _, err := store.Save(context.Background(), &Snapshot{}); err == nil {
		t.Error("expected error saving an empty snapshot")
	}
}

// ── History ──

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "db", "historico.db"), nil)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryAppendAndQuery(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	if _, err := h.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty history: got %v", err)
	}

	n, err := h.Append(ctx, sampleBonds(date(2025, 1, 2)))
	if err != nil || n != 2 {
		t.Fatalf("Append day 1: %d, %v", n, err)
	}
	if _, err := h.Append(ctx, sampleBonds(date(2025, 1, 3))); err != nil {
		t.Fatalf("Append day 2: %v", err)
	}

	// Re-appending the same key replaces the row.
	updated := sampleBonds(date(2025, 1, 3))[:1]
	updated[0].BuyRate = 7.5
	if _, err := h.Append(ctx, updated); err != nil {
		t.Fatalf("Append update: %v", err)
	}

	dates, err := h.Dates(ctx)
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if len(dates) != 2 || !dates[0].Equal(date(2025, 1, 2)) || !dates[1].Equal(date(2025, 1, 3)) {
		t.Errorf("Dates: %v", dates)
	}

	day, err := h.On(ctx, date(2025, 1, 3))
	if err != nil {
		t.Fatalf("On: %v", err)
	}
	if len(day) != 2 || day[0].ID != "IPCA_STD_2035" || day[0].BuyRate != 7.5 {
		t.Errorf("On: %+v", day)
	}
	if !math.IsNaN(float64(day[0].BasePrice)) {
		t.Errorf("NULL should read back as NaN, got %v", day[0].BasePrice)
	}
	if day[1].MinInvestment != 33.6 || !day[1].MaturityDate.Equal(date(2031, 1, 1)) {
		t.Errorf("PRE row: %+v", day[1])
	}

	series, err := h.ByID(ctx, "PRE_STD_2031")
	if err != nil || len(series) != 2 || !series[0].BaseDate.Before(series[1].BaseDate) {
		t.Errorf("ByID: %+v, %v", series, err)
	}

	snap, err := h.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !snap.BaseDate.Equal(date(2025, 1, 3)) || len(snap.Bonds) != 2 {
		t.Errorf("Latest: %+v", snap)
	}
}

func TestHistorySkipsKeylessRows(t *testing.T) {
	h := openTestHistory(t)
	n, err := h.Append(context.Background(), []models.Bond{{ID: "", BaseDate: date(2025, 1, 3)}, {ID: "X"}})
	if err != nil || n != 0 {
		t.Errorf("Append: %d, %v", n, err)
	}
}

func TestHistoryAppendFailureWritesNothing(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	if _, err := h.db.ExecContext(ctx, `CREATE TRIGGER reject_pre BEFORE INSERT ON bond_history
		WHEN NEW.id = 'PRE_STD_2031' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	bonds := sampleBonds(date(2025, 1, 3))
	if bonds[0].ID == "PRE_STD_2031" {
		t.Fatal("the rejected row must come after an accepted one")
	}
	n, err := h.Append(ctx, bonds)
	if err == nil {
		t.Fatal("expected an insert error")
	}
	if n != 0 {
		t.Errorf("rows reported: got %d, want 0", n)
	}
	dates, err := h.Dates(ctx)
	if err != nil || len(dates) != 0 {
		t.Errorf("rolled-back append left rows: %v, %v", dates, err)
	}
}

// ── Chain / Refresher ──

type errProvider struct{ err error }

func (p errProvider) Latest(context.Context) (*Snapshot, error) { return nil, p.err }

func TestChain(t *testing.T) {
	ctx := context.Background()
	want := &Snapshot{Source: "files"}

	snap, err := Chain{NewStaticProvider(nil), nil, NewStaticProvider(want)}.Latest(ctx)
	if err != nil || snap != want {
		t.Errorf("Chain: %v, %v", snap, err)
	}
	if _, err := (Chain{NewStaticProvider(nil)}).Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("empty chain: got %v", err)
	}
	boom := errors.New("disk failure")
	if _, err := (Chain{errProvider{boom}, NewStaticProvider(want)}).Latest(ctx); !errors.Is(err, boom) {
		t.Errorf("hard error should stop the chain, got %v", err)
	}
}

type fakeFetcher struct {
	md  *datasource.MarketData
	err error
}

func (f fakeFetcher) Refresh(context.Context) (*datasource.MarketData, error) { return f.md, f.err }

func TestRefresher(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir, nil)
	hist := openTestHistory(t)
	mem := NewStaticProvider(nil)

	md := &datasource.MarketData{
		Bonds:         sampleBonds(date(2025, 1, 3)),
		CatalogSource: "Tesouro Transparente",
		Selic:         []models.SeriesPoint{{Date: date(2025, 1, 2), Value: 12.25}},
		Errors:        []string{"focus: HTTP 503"},
	}
	res, err := NewRefresher(fakeFetcher{md: md}, store, hist, mem, nil).Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.HistoryRows != 2 || len(res.Warnings) != 1 || filepath.Dir(res.Path) != dir {
		t.Errorf("result: %+v", res)
	}
	if snap, err := mem.Latest(ctx); err != nil || snap.Source != "Tesouro Transparente" {
		t.Errorf("memory provider: %v, %v", snap, err)
	}
	if snap, err := store.Latest(ctx); err != nil || len(snap.Selic) != 1 {
		t.Errorf("file store: %v, %v", snap, err)
	}
}

func TestRefresherNoBonds(t *testing.T) {
	mem := NewStaticProvider(nil)
	catalogErr := errors.New("all catalog sources failed")
	r := NewRefresher(fakeFetcher{md: &datasource.MarketData{}, err: catalogErr}, nil, nil, mem, nil)
	if _, err := r.Refresh(context.Background()); !errors.Is(err, catalogErr) {
		t.Errorf("got %v", err)
	}
	r = NewRefresher(fakeFetcher{}, nil, nil, mem, nil)
	if _, err := r.Refresh(context.Background()); !errors.Is(err, datasource.ErrNoData) {
		t.Errorf("nil data: got %v", err)
	}
	if _, err := mem.Latest(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Error("a failed refresh must not replace the snapshot")
	}
}

func TestFileStoreSaveMacroOnly(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "nested"), nil)
	if err := store.SaveSelic([]models.SeriesPoint{{Date: date(2025, 1, 2), Value: 12.25}}); err != nil {
		t.Fatalf("SaveSelic: %v", err)
	}
	if err := store.SaveFocus([]models.Expectation{{Date: date(2025, 1, 3), Indicator: "IPCA", Year: 2025, Median: 5}}); err != nil {
		t.Fatalf("SaveFocus: %v", err)
	}
	if err := store.SaveNews(nil); err != nil {
		t.Errorf("SaveNews(nil): %v", err)
	}
	for _, name := range []string{"selic_meta.json", "focus_snapshot_2025-01-03.json"} {
		if _, err := os.Stat(filepath.Join(dir, "nested", name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
