// Package advisor answers questions about the Tesouro Direto market using an
// LLM grounded on the latest catalog snapshot.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/internal/llm"
	"github.com/medicech/tesouro-quant/internal/logging"
	"github.com/medicech/tesouro-quant/internal/pricing"
	"github.com/medicech/tesouro-quant/internal/termstructure"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// ErrEmptyQuestion is returned when Ask receives a blank question.
var ErrEmptyQuestion = errors.New("advisor: empty question")

// Defaults for the conversation window and context sizes.
const (
	DefaultMaxHistory = 20
	DefaultNewsLimit  = 5
)

// Answer is the assistant's reply to one question.
type Answer struct {
	Content  string        `json:"content"` // markdown
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Tokens   int           `json:"tokens"`
	Duration time.Duration `json:"duration"`
	BaseDate time.Time     `json:"base_date"`
}

// Advisor builds a market context from a snapshot and forwards questions to
// an LLM provider.
type Advisor struct {
	provider   llm.Provider
	data       catalog.Provider
	engine     *pricing.Engine
	curveOpts  []termstructure.Option
	minVert    int
	maxHistory int
	newsLimit  int
	log        logrus.FieldLogger
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithEngine sets the risk engine used for the bond table.
func WithEngine(e *pricing.Engine) Option {
	return func(a *Advisor) { a.engine = e }
}

// WithCurveOptions sets the grid used for curve diagnostics and breakeven.
func WithCurveOptions(minVertices int, opts ...termstructure.Option) Option {
	return func(a *Advisor) {
		a.minVert = minVertices
		a.curveOpts = opts
	}
}

// WithMaxHistory caps how many prior messages are sent with a question.
func WithMaxHistory(n int) Option {
	return func(a *Advisor) { a.maxHistory = n }
}

// WithNewsLimit caps the headlines included in the context.
func WithNewsLimit(n int) Option {
	return func(a *Advisor) { a.newsLimit = n }
}

// WithLogger sets the advisor's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Advisor) { a.log = logging.OrDiscard(log) }
}

// New creates an Advisor answering through provider with data from data.
func New(provider llm.Provider, data catalog.Provider, opts ...Option) *Advisor {
	a := &Advisor{
		provider:   provider,
		data:       data,
		engine:     pricing.NewEngine(),
		maxHistory: DefaultMaxHistory,
		newsLimit:  DefaultNewsLimit,
		log:        logging.OrDiscard(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers question given the prior conversation. System messages in
// history are dropped and only the last maxHistory messages are kept.
func (a *Advisor) Ask(ctx context.Context, question string, history []llm.Message) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()

	snap, err := a.data.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisor: load snapshot: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.SystemMessage(SystemPrompt+"\n"+MarketConventions+"\n"+a.BuildContext(snap)))
	messages = append(messages, trimHistory(history, a.maxHistory)...)
	messages = append(messages, llm.UserMessage(question))

	resp, err := a.provider.Chat(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"provider": resp.Provider,
		"model":    resp.Model,
		"tokens":   resp.Usage.TotalTokens,
	}).Debug("advisor answered")

	return &Answer{
		Content:  resp.Content,
		Provider: resp.Provider,
		Model:    resp.Model,
		Tokens:   resp.Usage.TotalTokens,
		Duration: time.Since(start),
		BaseDate: snap.BaseDate,
	}, nil
}

// BuildContext renders the snapshot as the markdown market context.
func (a *Advisor) BuildContext(snap *catalog.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("## Contexto de Mercado\n")
	if !snap.BaseDate.IsZero() {
		fmt.Fprintf(&sb, "Data base: %s (fonte: %s)\n", utils.FormatDateBR(snap.BaseDate), orNA(snap.Source))
	}

	a.writeBonds(&sb, snap.Bonds)
	a.writeCurves(&sb, snap.Bonds)
	writeMacro(&sb, snap)
	writeNews(&sb, snap.News, a.newsLimit)
	return sb.String()
}

func (a *Advisor) writeBonds(sb *strings.Builder, bonds []models.Bond) {
	sb.WriteString("\n### Títulos (compra)\n")
	if len(bonds) == 0 {
		sb.WriteString("Nenhum título disponível.\n")
		return
	}
	sb.WriteString("| Título | Vencimento | Taxa | Preço | Duration mod. | DV01 | Impacto +1% |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, m := range a.engine.Metrics(bonds, models.ModeBuy) {
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			m.TitleName,
			utils.FormatDateBR(m.MaturityDate),
			fmtOr(m.RatePct, utils.FormatRate),
			fmtOr(m.Price, utils.FormatBRL),
			fmtOr(m.ModifiedDuration, years),
			fmtOr(m.DV01, utils.FormatBRL),
			fmtOr(m.Impact100BpsPct, utils.FormatPct),
		)
	}
}

func (a *Advisor) writeCurves(sb *strings.Builder, bonds []models.Bond) {
	sb.WriteString("\n### Curvas de Juros\n")
	for _, idx := range []models.IndexType{models.IndexPrefixado, models.IndexIPCA} {
		ts := termstructure.Build(termstructure.CurveBonds(bonds, idx), models.ModeBuy, a.curveOpts...)
		d, err := termstructure.Diagnose(ts, a.minVert)
		if err != nil {
			fmt.Fprintf(sb, "- %s: n/d (%d vértices)\n", idx, len(ts.Vertices))
			continue
		}
		fmt.Fprintf(sb, "- %s: curta %s (%.1f anos), longa %s (%.1f anos), inclinação %+.0f bps, formato %s\n",
			idx, utils.FormatRate(d.ShortRate), d.ShortTenor, utils.FormatRate(d.LongRate), d.LongTenor, d.SlopeBps, d.Shape)
	}

	_, mean, err := termstructure.BreakevenCurve(bonds, models.ModeBuy, a.curveOpts...)
	if err != nil || math.IsNaN(mean) {
		sb.WriteString("- Inflação implícita: n/d\n")
		return
	}
	fmt.Fprintf(sb, "- Inflação implícita média (%g a %g anos): %s\n",
		termstructure.DefaultBreakevenMin, termstructure.DefaultBreakevenMax, utils.FormatRate(mean))
}

func writeMacro(sb *strings.Builder, snap *catalog.Snapshot) {
	sb.WriteString("\n### Macro\n")
	if p, ok := snap.SelicRate(); ok {
		fmt.Fprintf(sb, "- Selic meta: %s (desde %s)\n", utils.FormatRate(p.Value), utils.FormatDateBR(p.Date))
	} else {
		sb.WriteString("- Selic meta: n/d\n")
	}

	latest := snap.FocusLatest()
	if len(latest) == 0 {
		sb.WriteString("- Focus: n/d\n")
		return
	}
	fmt.Fprintf(sb, "- Focus (%s):\n", utils.FormatDateBR(latest[0].Date))
	for _, e := range latest {
		fmt.Fprintf(sb, "  - %s %d: %.2f\n", e.Indicator, e.Year, e.Median)
	}
}

func writeNews(sb *strings.Builder, news []models.NewsArticle, limit int) {
	if len(news) == 0 || limit <= 0 {
		return
	}
	sb.WriteString("\n### Notícias\n")
	for i, n := range news {
		if i == limit {
			break
		}
		if n.PublishedAt.IsZero() {
			fmt.Fprintf(sb, "- %s\n", n.Title)
			continue
		}
		fmt.Fprintf(sb, "- %s (%s)\n", n.Title, utils.FormatDateBR(n.PublishedAt))
	}
}

func trimHistory(history []llm.Message, limit int) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == llm.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func fmtOr(v models.Float, format func(float64) string) string {
	if !v.Valid() {
		return "n/d"
	}
	return format(float64(v))
}

func years(v float64) string {
	return fmt.Sprintf("%.2f anos", v)
}

func orNA(s string) string {
	if s == "" {
		return "n/d"
	}
	return s
}
