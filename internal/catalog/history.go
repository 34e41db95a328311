package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/medicech/tesouro-quant/internal/logging"
	"github.com/medicech/tesouro-quant/pkg/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS bond_history (
	base_date      TEXT NOT NULL,
	id             TEXT NOT NULL,
	title_name     TEXT NOT NULL,
	index_type     TEXT NOT NULL,
	coupon_flag    TEXT NOT NULL,
	maturity_date  TEXT NOT NULL,
	buy_rate       REAL,
	sell_rate      REAL,
	buy_price      REAL,
	sell_price     REAL,
	base_price     REAL,
	min_investment REAL,
	PRIMARY KEY (base_date, id)
);
CREATE INDEX IF NOT EXISTS idx_bond_history_id ON bond_history (id, base_date);
`

const historyColumns = `base_date, id, title_name, index_type, coupon_flag, maturity_date,
	buy_rate, sell_rate, buy_price, sell_price, base_price, min_investment`

// History is the sqlite archive of every catalog ever fetched, one row per
// (base date, bond id). A later append for the same key replaces the row.
type History struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string, log logrus.FieldLogger) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &History{db: db, log: logging.OrDiscard(log)}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Append upserts bonds keyed by (base date, id) in one transaction and returns
// the row count written. On error nothing is written and the count is zero.
func (h *History) Append(ctx context.Context, bonds []models.Bond) (int, error) {
	if len(bonds) == 0 {
		return 0, nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bond_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (base_date, id) DO UPDATE SET
			title_name = excluded.title_name,
			index_type = excluded.index_type,
			coupon_flag = excluded.coupon_flag,
			maturity_date = excluded.maturity_date,
			buy_rate = excluded.buy_rate,
			sell_rate = excluded.sell_rate,
			buy_price = excluded.buy_price,
			sell_price = excluded.sell_price,
			base_price = excluded.base_price,
			min_investment = excluded.min_investment`)
	if err != nil {
		return 0, fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, b := range bonds {
		if b.ID == "" || b.BaseDate.IsZero() {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			b.BaseDate.Format(fileDate), b.ID, b.TitleName, string(b.IndexType), string(b.Coupon),
			b.MaturityDate.Format(fileDate),
			nullable(b.BuyRate), nullable(b.SellRate), nullable(b.BuyPrice), nullable(b.SellPrice),
			nullable(b.BasePrice), nullable(b.MinInvestment),
		)
		if err != nil {
			return 0, fmt.Errorf("history: insert %s: %w", b.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	h.log.WithField("rows", n).Debug("history appended")
	return n, nil
}

// Dates returns every stored base date, oldest first.
func (h *History) Dates(ctx context.Context) ([]time.Time, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT base_date FROM bond_history ORDER BY base_date`)
	if err != nil {
		return nil, fmt.Errorf("history: dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("history: scan date: %w", err)
		}
		d, err := time.Parse(fileDate, s)
		if err != nil {
			return nil, fmt.Errorf("history: bad date %q: %w", s, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// On returns the bonds stored for one base date, in catalog order.
func (h *History) On(ctx context.Context, day time.Time) ([]models.Bond, error) {
	return h.query(ctx, `SELECT `+historyColumns+` FROM bond_history
		WHERE base_date = ? ORDER BY index_type, coupon_flag, maturity_date, id`, day.Format(fileDate))
}

// ByID returns every stored quote of one bond, oldest first.
func (h *History) ByID(ctx context.Context, id string) ([]models.Bond, error) {
	return h.query(ctx, `SELECT `+historyColumns+` FROM bond_history
		WHERE id = ? ORDER BY base_date`, id)
}

// Latest returns the bonds of the most recent base date as a snapshot.
func (h *History) Latest(ctx context.Context) (*Snapshot, error) {
	var s sql.NullString
	if err := h.db.QueryRowContext(ctx, `SELECT MAX(base_date) FROM bond_history`).Scan(&s); err != nil {
		return nil, fmt.Errorf("history: latest: %w", err)
	}
	if !s.Valid {
		return nil, ErrNoSnapshot
	}
	day, err := time.Parse(fileDate, s.String)
	if err != nil {
		return nil, fmt.Errorf("history: bad date %q: %w", s.String, err)
	}
	bonds, err := h.On(ctx, day)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Source: "history", BaseDate: day, Bonds: bonds}, nil
}

func (h *History) query(ctx context.Context, q string, args ...any) ([]models.Bond, error) {
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var bonds []models.Bond
	for rows.Next() {
		var (
			b                  models.Bond
			base, maturity     string
			index, coupon      string
			buyR, sellR        sql.NullFloat64
			buyP, sellP, baseP sql.NullFloat64
			minInvestment      sql.NullFloat64
		)
		if err := rows.Scan(&base, &b.ID, &b.TitleName, &index, &coupon, &maturity,
			&buyR, &sellR, &buyP, &sellP, &baseP, &minInvestment); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		b.IndexType = models.IndexType(index)
		b.Coupon = models.CouponFlag(coupon)
		if b.BaseDate, err = time.Parse(fileDate, base); err != nil {
			return nil, fmt.Errorf("history: bad base date %q: %w", base, err)
		}
		if b.MaturityDate, err = time.Parse(fileDate, maturity); err != nil {
			return nil, fmt.Errorf("history: bad maturity %q: %w", maturity, err)
		}
		b.BuyRate = fromNull(buyR)
		b.SellRate = fromNull(sellR)
		b.BuyPrice = fromNull(buyP)
		b.SellPrice = fromNull(sellP)
		b.BasePrice = fromNull(baseP)
		b.MinInvestment = fromNull(minInvestment)
		bonds = append(bonds, b)
	}
	return bonds, rows.Err()
}

// nullable stores missing values as NULL.
func nullable(f models.Float) any {
	if !f.Valid() {
		return nil
	}
	return float64(f)
}

func fromNull(n sql.NullFloat64) models.Float {
	if !n.Valid {
		return models.NaN()
	}
	return models.Float(n.Float64)
}
