// Package catalog stores and serves bond catalog snapshots. Engines read
// bonds through a Provider instead of looking up files themselves.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medicech/tesouro-quant/internal/datasource"
	"github.com/medicech/tesouro-quant/pkg/models"
)

// ErrNoSnapshot is returned when no catalog has been stored yet.
var ErrNoSnapshot = errors.New("catalog: no snapshot available")

// ErrBondNotFound is returned when a bond id is not in the snapshot.
var ErrBondNotFound = errors.New("catalog: bond not found")

// Snapshot is one catalog of bonds plus the macro context fetched with it.
type Snapshot struct {
	Source    string               `json:"source"`
	BaseDate  time.Time            `json:"base_date"`
	FetchedAt time.Time            `json:"fetched_at"`
	Bonds     []models.Bond        `json:"bonds"`
	Selic     []models.SeriesPoint `json:"selic,omitempty"`
	Focus     []models.Expectation `json:"focus,omitempty"`
	News      []models.NewsArticle `json:"news,omitempty"`
}

// Provider supplies the latest snapshot.
type Provider interface {
	Latest(ctx context.Context) (*Snapshot, error)
}

// FromMarketData converts a refresh result into a snapshot.
func FromMarketData(md *datasource.MarketData) *Snapshot {
	return &Snapshot{
		Source:    md.CatalogSource,
		BaseDate:  LatestBaseDate(md.Bonds),
		FetchedAt: md.FetchedAt,
		Bonds:     md.Bonds,
		Selic:     md.Selic,
		Focus:     md.Focus,
		News:      md.News,
	}
}

// Find returns the bond with the given id.
func (s *Snapshot) Find(id string) (models.Bond, error) {
	for _, b := range s.Bonds {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Bond{}, ErrBondNotFound
}

// SelicRate returns the most recent Selic target, if any was fetched.
func (s *Snapshot) SelicRate() (models.SeriesPoint, bool) {
	return datasource.LatestValue(s.Selic)
}

// FocusLatest returns the Focus rows of the most recent survey date.
func (s *Snapshot) FocusLatest() []models.Expectation {
	return datasource.LatestSnapshot(s.Focus)
}

// LatestBaseDate returns the most recent base date among bonds.
func LatestBaseDate(bonds []models.Bond) time.Time {
	var latest time.Time
	for _, b := range bonds {
		if b.BaseDate.After(latest) {
			latest = b.BaseDate
		}
	}
	return latest
}

// StaticProvider serves a fixed snapshot held in memory.
type StaticProvider struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStaticProvider creates a provider over snap, which may be nil.
func NewStaticProvider(snap *Snapshot) *StaticProvider {
	return &StaticProvider{snap: snap}
}

// Latest returns the held snapshot or ErrNoSnapshot.
func (p *StaticProvider) Latest(_ context.Context) (*Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return nil, ErrNoSnapshot
	}
	return p.snap, nil
}

// Set replaces the held snapshot.
func (p *StaticProvider) Set(snap *Snapshot) {
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}
