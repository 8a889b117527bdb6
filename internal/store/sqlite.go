package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bulletins (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	year          INTEGER NOT NULL,
	month         INTEGER NOT NULL,
	fiscal_year   INTEGER NOT NULL,
	bulletin_date DATETIME NOT NULL,
	source_url    TEXT NOT NULL,
	raw_html      TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (year, month)
);

CREATE TABLE IF NOT EXISTS category_entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	bulletin_id   INTEGER NOT NULL REFERENCES bulletins(id) ON DELETE CASCADE,
	category      TEXT NOT NULL,
	country       TEXT NOT NULL,
	chart         TEXT NOT NULL,
	status        TEXT NOT NULL,
	priority_date DATETIME,
	notes         TEXT NOT NULL DEFAULT '',
	UNIQUE (bulletin_id, category, country, chart)
);

CREATE TABLE IF NOT EXISTS forecasts (
	category      TEXT NOT NULL,
	country       TEXT NOT NULL,
	chart         TEXT NOT NULL,
	target_year   INTEGER NOT NULL,
	target_month  INTEGER NOT NULL,
	predicted_date DATETIME,
	confidence    REAL NOT NULL,
	model_id      TEXT NOT NULL,
	produced_at   DATETIME NOT NULL,
	features_hash TEXT NOT NULL,
	PRIMARY KEY (category, country, chart, target_year, target_month)
);

CREATE INDEX IF NOT EXISTS idx_bulletins_fiscal_year ON bulletins(fiscal_year);
CREATE INDEX IF NOT EXISTS idx_entries_bulletin_id ON category_entries(bulletin_id);
CREATE INDEX IF NOT EXISTS idx_entries_series ON category_entries(category, country, chart);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_meta (version) VALUES (?)`, SchemaVersion)
		return eris.Wrap(err, "sqlite: record schema version")
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: read schema version")
	}
	if version != SchemaVersion {
		return eris.Errorf("sqlite: schema version mismatch: database has %d, binary expects %d", version, SchemaVersion)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertBulletin(ctx context.Context, b *model.Bulletin, entries []model.CategoryEntry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM bulletins WHERE year = ? AND month = ?`,
		b.Year, b.Month,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bulletins (year, month, fiscal_year, bulletin_date, source_url, raw_html, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Year, b.Month, b.FiscalYear, b.BulletinDate, b.SourceURL, b.RawHTML, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert bulletin %d-%02d", b.Year, b.Month)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, eris.Wrap(err, "sqlite: last insert id")
		}
	case err != nil:
		return 0, eris.Wrap(err, "sqlite: lookup bulletin")
	default:
		// Re-ingest of an existing month. created_at is preserved.
		_, err = tx.ExecContext(ctx,
			`UPDATE bulletins SET fiscal_year = ?, bulletin_date = ?, source_url = ?, raw_html = ?, updated_at = ?
			 WHERE id = ?`,
			b.FiscalYear, b.BulletinDate, b.SourceURL, b.RawHTML, now, id,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: update bulletin %d-%02d", b.Year, b.Month)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_entries WHERE bulletin_id = ?`, id); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear entries")
	}
	for _, e := range entries {
		var pd any
		if e.PriorityDate != nil {
			pd = *e.PriorityDate
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO category_entries (bulletin_id, category, country, chart, status, priority_date, notes)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(e.Category), string(e.Country), string(e.Chart), string(e.Status), pd, e.Notes,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert entry %s/%s/%s", e.Category, e.Country, e.Chart)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return id, nil
}

func (s *SQLiteStore) GetBulletin(ctx context.Context, year, month int) (*model.Bulletin, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, year, month, fiscal_year, bulletin_date, source_url, created_at, updated_at
		 FROM bulletins WHERE year = ? AND month = ?`,
		year, month,
	)
	b, err := scanBulletin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get bulletin %d-%02d", year, month)
	}
	return b, nil
}

func (s *SQLiteStore) ListBulletins(ctx context.Context, fyFrom, fyTo int) ([]model.Bulletin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, year, month, fiscal_year, bulletin_date, source_url, created_at, updated_at
		 FROM bulletins WHERE fiscal_year >= ? AND fiscal_year <= ?
		 ORDER BY year, month`,
		fyFrom, fyTo,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bulletins")
	}
	defer rows.Close()

	var out []model.Bulletin
	for rows.Next() {
		b, err := scanBulletin(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bulletin")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list bulletins iterate")
}

func (s *SQLiteStore) GetRawHTML(ctx context.Context, year, month int) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw_html FROM bulletins WHERE year = ? AND month = ?`,
		year, month,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", eris.Errorf("sqlite: no bulletin stored for %d-%02d", year, month)
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get raw html")
	}
	return raw, nil
}

func (s *SQLiteStore) GetEntries(ctx context.Context, bulletinID int64) ([]model.CategoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bulletin_id, category, country, chart, status, priority_date, notes
		 FROM category_entries WHERE bulletin_id = ?
		 ORDER BY chart, category, country`,
		bulletinID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get entries")
	}
	defer rows.Close()

	var out []model.CategoryEntry
	for rows.Next() {
		var e model.CategoryEntry
		var pd sql.NullTime
		if err := rows.Scan(&e.ID, &e.BulletinID, &e.Category, &e.Country, &e.Chart, &e.Status, &pd, &e.Notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		if pd.Valid {
			t := pd.Time.UTC()
			e.PriorityDate = &t
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get entries iterate")
}

func (s *SQLiteStore) GetSeries(ctx context.Context, key model.SeriesKey, fyFrom, fyTo int) ([]model.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.bulletin_date, e.status, e.priority_date
		 FROM category_entries e
		 JOIN bulletins b ON b.id = e.bulletin_id
		 WHERE e.category = ? AND e.country = ? AND e.chart = ?
		   AND b.fiscal_year >= ? AND b.fiscal_year <= ?
		 ORDER BY b.year, b.month`,
		string(key.Category), string(key.Country), string(key.Chart), fyFrom, fyTo,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get series")
	}
	defer rows.Close()

	var out []model.SeriesPoint
	for rows.Next() {
		var p model.SeriesPoint
		var pd sql.NullTime
		if err := rows.Scan(&p.BulletinDate, &p.Status, &pd); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan series point")
		}
		p.BulletinDate = p.BulletinDate.UTC()
		if pd.Valid {
			t := pd.Time.UTC()
			p.PriorityDate = &t
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get series iterate")
}

func (s *SQLiteStore) PutForecast(ctx context.Context, f *model.Forecast) error {
	var pd any
	if f.PredictedDate != nil {
		pd = *f.PredictedDate
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forecasts (category, country, chart, target_year, target_month, predicted_date, confidence, model_id, produced_at, features_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (category, country, chart, target_year, target_month) DO UPDATE SET
		   predicted_date = excluded.predicted_date, confidence = excluded.confidence,
		   model_id = excluded.model_id, produced_at = excluded.produced_at,
		   features_hash = excluded.features_hash`,
		string(f.Key.Category), string(f.Key.Country), string(f.Key.Chart),
		f.TargetYear, f.TargetMonth, pd, f.Confidence, f.ModelID, f.ProducedAt.UTC(), f.FeaturesHash,
	)
	return eris.Wrap(err, "sqlite: put forecast")
}

func (s *SQLiteStore) GetForecast(ctx context.Context, key model.SeriesKey, targetYear, targetMonth int) (*model.Forecast, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT category, country, chart, target_year, target_month, predicted_date, confidence, model_id, produced_at, features_hash
		 FROM forecasts WHERE category = ? AND country = ? AND chart = ? AND target_year = ? AND target_month = ?`,
		string(key.Category), string(key.Country), string(key.Chart), targetYear, targetMonth,
	)

	var f model.Forecast
	var pd sql.NullTime
	err := row.Scan(&f.Key.Category, &f.Key.Country, &f.Key.Chart, &f.TargetYear, &f.TargetMonth,
		&pd, &f.Confidence, &f.ModelID, &f.ProducedAt, &f.FeaturesHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get forecast")
	}
	if pd.Valid {
		t := pd.Time.UTC()
		f.PredictedDate = &t
	}
	return &f, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*model.StoreStats, error) {
	var stats model.StoreStats
	var earliest, latest, lastIngest sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(bulletin_date), MAX(bulletin_date), MAX(updated_at) FROM bulletins`,
	).Scan(&stats.BulletinCount, &earliest, &latest, &lastIngest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bulletin stats")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_entries`).Scan(&stats.EntryCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: entry stats")
	}
	if earliest.Valid {
		t := earliest.Time.UTC()
		stats.Earliest = &t
	}
	if latest.Valid {
		t := latest.Time.UTC()
		stats.Latest = &t
	}
	if lastIngest.Valid {
		t := lastIngest.Time.UTC()
		stats.LastIngestAt = &t
	}
	return &stats, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanBulletin(row scannable) (*model.Bulletin, error) {
	var b model.Bulletin
	err := row.Scan(&b.ID, &b.Year, &b.Month, &b.FiscalYear, &b.BulletinDate, &b.SourceURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.BulletinDate = b.BulletinDate.UTC()
	return &b, nil
}
