package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/internal/llm"
	"github.com/medicech/tesouro-quant/pkg/models"
)

type fakeProvider struct {
	got  []llm.Message
	resp string
	err  error
}

func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) Ping(ctx context.Context) error { return nil }
func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	f.got = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.resp, Provider: "fake", Model: "m1", Usage: llm.Usage{TotalTokens: 42}}, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bond(index models.IndexType, coupon models.CouponFlag, year int, rate float64) models.Bond {
	return models.Bond{
		ID:           fmt.Sprintf("%s_%s_%d", index, coupon, year),
		TitleName:    "Tesouro " + string(index),
		IndexType:    index,
		Coupon:       coupon,
		BaseDate:     date(2025, 1, 3),
		MaturityDate: date(year, 1, 1),
		BuyRate:      models.Float(rate),
		BuyPrice:     1000,
		SellRate:     models.NaN(),
		SellPrice:    models.NaN(),
	}
}

func snapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Source:   "Tesouro Transparente",
		BaseDate: date(2025, 1, 3),
		Bonds: []models.Bond{
			bond(models.IndexPrefixado, models.CouponNone, 2027, 14.5),
			bond(models.IndexPrefixado, models.CouponNone, 2029, 14.9),
			bond(models.IndexPrefixado, models.CouponNone, 2032, 15.1),
			bond(models.IndexIPCA, models.CouponNone, 2029, 7.4),
			bond(models.IndexIPCA, models.CouponNone, 2035, 7.1),
		},
		Selic: []models.SeriesPoint{{Date: date(2024, 12, 12), Value: 12.25}},
		Focus: []models.Expectation{
			{Date: date(2025, 1, 3), Indicator: "IPCA", Year: 2025, Median: 4.99},
		},
		News: []models.NewsArticle{
			{Title: "Copom eleva a Selic", PublishedAt: date(2024, 12, 11)},
			{Title: "Relatório de Inflação"},
		},
	}
}

func TestAsk(t *testing.T) {
	fp := &fakeProvider{resp: "**Resposta**"}
	a := New(fp, catalog.NewStaticProvider(snapshot()), WithMaxHistory(2))

	history := []llm.Message{
		llm.SystemMessage("ignored"),
		llm.UserMessage("primeira"),
		llm.AssistantMessage("resposta 1"),
		llm.UserMessage("segunda"),
		llm.AssistantMessage("resposta 2"),
	}
	ans, err := a.Ask(context.Background(), "  Vale o IPCA+ 2035?  ", history)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Content != "**Resposta**" || ans.Tokens != 42 || !ans.BaseDate.Equal(date(2025, 1, 3)) {
		t.Errorf("answer: %+v", ans)
	}

	// system + 2 kept history messages + question
	if len(fp.got) != 4 {
		t.Fatalf("messages sent: %d", len(fp.got))
	}
	if fp.got[0].Role != llm.RoleSystem || !strings.Contains(fp.got[0].Content, "Contexto de Mercado") {
		t.Errorf("first message should carry the context: %+v", fp.got[0])
	}
	if fp.got[1].Content != "segunda" || fp.got[2].Content != "resposta 2" {
		t.Errorf("history window: %+v", fp.got[1:3])
	}
	if last := fp.got[3]; last.Role != llm.RoleUser || last.Content != "Vale o IPCA+ 2035?" {
		t.Errorf("question: %+v", last)
	}
}

func TestAskErrors(t *testing.T) {
	fp := &fakeProvider{resp: "x"}

	if _, err := New(fp, catalog.NewStaticProvider(snapshot())).Ask(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("blank question: got %v", err)
	}
	if _, err := New(fp, catalog.NewStaticProvider(nil)).Ask(context.Background(), "oi", nil); !errors.Is(err, catalog.ErrNoSnapshot) {
		t.Errorf("no snapshot: got %v", err)
	}

	fp.err = llm.ErrNoProviders
	if _, err := New(fp, catalog.NewStaticProvider(snapshot())).Ask(context.Background(), "oi", nil); !errors.Is(err, llm.ErrNoProviders) {
		t.Errorf("provider error: got %v", err)
	}
}

func TestBuildContext(t *testing.T) {
	a := New(&fakeProvider{}, nil, WithNewsLimit(1))
	ctx := a.BuildContext(snapshot())

	for _, want := range []string{
		"Data base: 03/01/2025",
		"| Tesouro PREFIXADO |",
		"PREFIXADO: curta",
		"IPCA: n/d (2 vértices)",
		"Inflação implícita média",
		"Selic meta: 12.25% a.a.",
		"IPCA 2025: 4.99",
		"Copom eleva a Selic (11/12/2024)",
	} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q:\n%s", want, ctx)
		}
	}
	if strings.Contains(ctx, "Relatório de Inflação") {
		t.Error("news limit not applied")
	}
}

func TestBuildContextEmpty(t *testing.T) {
	ctx := New(&fakeProvider{}, nil).BuildContext(&catalog.Snapshot{})
	for _, want := range []string{"Nenhum título disponível.", "Selic meta: n/d", "Focus: n/d", "Inflação implícita: n/d"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q:\n%s", want, ctx)
		}
	}
}
