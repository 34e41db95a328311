package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medicech/tesouro-quant/internal/logging"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// Snapshot file names inside the data directory.
const (
	catalogPrefix = "tesouro_catalogo_"
	focusPrefix   = "focus_snapshot_"
	selicFile     = "selic_meta.json"
	newsFile      = "noticias.json"
	fileDate      = "2006-01-02"
)

// catalogFile is the on-disk layout of one catalog snapshot.
type catalogFile struct {
	Source    string        `json:"source"`
	BaseDate  time.Time     `json:"base_date"`
	FetchedAt time.Time     `json:"fetched_at"`
	Bonds     []models.Bond `json:"bonds"`
}

// FileStore keeps snapshots as JSON files in one directory. Only the newest
// catalog file is kept; Selic and news are overwritten on every save.
type FileStore struct {
	dir string
	log logrus.FieldLogger
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, log logrus.FieldLogger) *FileStore {
	return &FileStore{dir: dir, log: logging.OrDiscard(log)}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Save writes the snapshot files and removes older catalog files.
// It returns the path of the catalog file written.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) (string, error) {
	if snap == nil || len(snap.Bonds) == 0 {
		return "", fmt.Errorf("catalog: refusing to save an empty snapshot")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("catalog: create %s: %w", s.dir, err)
	}

	day := snap.BaseDate
	if day.IsZero() {
		day = LatestBaseDate(snap.Bonds)
	}
	if day.IsZero() {
		day = utils.TodayBRT()
	}
	name := catalogPrefix + day.Format(fileDate) + ".json"
	path := filepath.Join(s.dir, name)

	old, err := s.list(catalogPrefix)
	if err != nil {
		return "", err
	}
	if err := writeJSON(path, catalogFile{
		Source:    snap.Source,
		BaseDate:  day,
		FetchedAt: snap.FetchedAt,
		Bonds:     snap.Bonds,
	}); err != nil {
		return "", err
	}
	for _, f := range old {
		if f == name {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.WithError(err).WithField("path", f).Warn("could not remove old catalog")
		}
	}

	if err := s.SaveSelic(snap.Selic); err != nil {
		return path, err
	}
	if err := s.SaveFocus(snap.Focus); err != nil {
		return path, err
	}
	if err := s.SaveNews(snap.News); err != nil {
		return path, err
	}

	s.log.WithFields(logrus.Fields{"path": path, "bonds": len(snap.Bonds)}).Info("catalog saved")
	return path, nil
}

// SaveSelic overwrites the Selic target series. An empty series is a no-op.
func (s *FileStore) SaveSelic(points []models.SeriesPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create %s: %w", s.dir, err)
	}
	return writeJSON(filepath.Join(s.dir, selicFile), points)
}

// SaveFocus writes the Focus rows under the date of their latest survey.
func (s *FileStore) SaveFocus(exps []models.Expectation) error {
	if len(exps) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create %s: %w", s.dir, err)
	}
	latest := LatestFocusDate(exps)
	return writeJSON(filepath.Join(s.dir, focusPrefix+latest.Format(fileDate)+".json"), exps)
}

// SaveNews overwrites the stored headlines.
func (s *FileStore) SaveNews(news []models.NewsArticle) error {
	if len(news) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create %s: %w", s.dir, err)
	}
	return writeJSON(filepath.Join(s.dir, newsFile), news)
}

// Latest loads the newest catalog file and whatever macro files exist.
func (s *FileStore) Latest(_ context.Context) (*Snapshot, error) {
	catalogs, err := s.list(catalogPrefix)
	if err != nil {
		return nil, err
	}
	if len(catalogs) == 0 {
		return nil, ErrNoSnapshot
	}

	var cf catalogFile
	if err := readJSON(filepath.Join(s.dir, catalogs[len(catalogs)-1]), &cf); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Source:    cf.Source,
		BaseDate:  cf.BaseDate,
		FetchedAt: cf.FetchedAt,
		Bonds:     cf.Bonds,
	}

	// Macro files are optional.
	if err := readJSON(filepath.Join(s.dir, selicFile), &snap.Selic); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.WithError(err).Warn("selic file unreadable")
	}
	if focus, _ := s.list(focusPrefix); len(focus) > 0 {
		if err := readJSON(filepath.Join(s.dir, focus[len(focus)-1]), &snap.Focus); err != nil {
			s.log.WithError(err).Warn("focus file unreadable")
		}
	}
	if err := readJSON(filepath.Join(s.dir, newsFile), &snap.News); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.WithError(err).Warn("news file unreadable")
	}
	return snap, nil
}

// list returns the JSON files in the store starting with prefix, sorted by name.
func (s *FileStore) list(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, prefix) && strings.HasSuffix(n, ".json") {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LatestFocusDate returns the most recent survey date among rows.
func LatestFocusDate(exps []models.Expectation) time.Time {
	var latest time.Time
	for _, e := range exps {
		if e.Date.After(latest) {
			latest = e.Date
		}
	}
	return latest
}

// writeJSON writes v to path through a temporary file and a rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("catalog: rename %s: %w", tmp, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
