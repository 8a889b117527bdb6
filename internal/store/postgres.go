package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/visawatch/bulletin-cli/internal/db"
	"github.com/visawatch/bulletin-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_bulletin": `SELECT id, year, month, fiscal_year, bulletin_date, source_url, created_at, updated_at FROM bulletins WHERE year = $1 AND month = $2`,
	"get_series":   `SELECT b.bulletin_date, e.status, e.priority_date FROM category_entries e JOIN bulletins b ON b.id = e.bulletin_id WHERE e.category = $1 AND e.country = $2 AND e.chart = $3 AND b.fiscal_year >= $4 AND b.fiscal_year <= $5 ORDER BY b.year, b.month`,
	"insert_entry": `INSERT INTO category_entries (bulletin_id, category, country, chart, status, priority_date, notes) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bulletins (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	year          INTEGER NOT NULL,
	month         INTEGER NOT NULL,
	fiscal_year   INTEGER NOT NULL,
	bulletin_date DATE NOT NULL,
	source_url    TEXT NOT NULL,
	raw_html      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (year, month)
);

CREATE TABLE IF NOT EXISTS category_entries (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	bulletin_id   BIGINT NOT NULL REFERENCES bulletins(id) ON DELETE CASCADE,
	category      TEXT NOT NULL,
	country       TEXT NOT NULL,
	chart         TEXT NOT NULL,
	status        TEXT NOT NULL,
	priority_date DATE,
	notes         TEXT NOT NULL DEFAULT '',
	UNIQUE (bulletin_id, category, country, chart)
);

CREATE TABLE IF NOT EXISTS forecasts (
	category      TEXT NOT NULL,
	country       TEXT NOT NULL,
	chart         TEXT NOT NULL,
	target_year   INTEGER NOT NULL,
	target_month  INTEGER NOT NULL,
	predicted_date DATE,
	confidence    DOUBLE PRECISION NOT NULL,
	model_id      TEXT NOT NULL,
	produced_at   TIMESTAMPTZ NOT NULL,
	features_hash TEXT NOT NULL,
	PRIMARY KEY (category, country, chart, target_year, target_month)
);

CREATE INDEX IF NOT EXISTS idx_bulletins_fiscal_year ON bulletins(fiscal_year);
CREATE INDEX IF NOT EXISTS idx_entries_bulletin_id ON category_entries(bulletin_id);
CREATE INDEX IF NOT EXISTS idx_entries_series ON category_entries(category, country, chart);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}

	var version int
	err := s.pool.QueryRow(ctx, `SELECT version FROM schema_meta LIMIT 1`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = s.pool.Exec(ctx, `INSERT INTO schema_meta (version) VALUES ($1)`, SchemaVersion)
		return eris.Wrap(err, "postgres: record schema version")
	}
	if err != nil {
		return eris.Wrap(err, "postgres: read schema version")
	}
	if version != SchemaVersion {
		return eris.Errorf("postgres: schema version mismatch: database has %d, binary expects %d", version, SchemaVersion)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertBulletin(ctx context.Context, b *model.Bulletin, entries []model.CategoryEntry) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()

	// ON CONFLICT leaves created_at untouched on re-ingest.
	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO bulletins (year, month, fiscal_year, bulletin_date, source_url, raw_html, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (year, month) DO UPDATE SET
		   fiscal_year = EXCLUDED.fiscal_year, bulletin_date = EXCLUDED.bulletin_date,
		   source_url = EXCLUDED.source_url, raw_html = EXCLUDED.raw_html, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		b.Year, b.Month, b.FiscalYear, b.BulletinDate, b.SourceURL, b.RawHTML, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert bulletin %d-%02d", b.Year, b.Month)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM category_entries WHERE bulletin_id = $1`, id); err != nil {
		return 0, eris.Wrap(err, "postgres: clear entries")
	}
	for _, e := range entries {
		var pd any
		if e.PriorityDate != nil {
			pd = *e.PriorityDate
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO category_entries (bulletin_id, category, country, chart, status, priority_date, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, string(e.Category), string(e.Country), string(e.Chart), string(e.Status), pd, e.Notes,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert entry %s/%s/%s", e.Category, e.Country, e.Chart)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return id, nil
}

func (s *PostgresStore) GetBulletin(ctx context.Context, year, month int) (*model.Bulletin, error) {
	var b model.Bulletin
	err := s.pool.QueryRow(ctx,
		`SELECT id, year, month, fiscal_year, bulletin_date, source_url, created_at, updated_at
		 FROM bulletins WHERE year = $1 AND month = $2`,
		year, month,
	).Scan(&b.ID, &b.Year, &b.Month, &b.FiscalYear, &b.BulletinDate, &b.SourceURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get bulletin %d-%02d", year, month)
	}
	b.BulletinDate = b.BulletinDate.UTC()
	return &b, nil
}

func (s *PostgresStore) ListBulletins(ctx context.Context, fyFrom, fyTo int) ([]model.Bulletin, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, year, month, fiscal_year, bulletin_date, source_url, created_at, updated_at
		 FROM bulletins WHERE fiscal_year >= $1 AND fiscal_year <= $2
		 ORDER BY year, month`,
		fyFrom, fyTo,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bulletins")
	}
	defer rows.Close()

	var out []model.Bulletin
	for rows.Next() {
		var b model.Bulletin
		if err := rows.Scan(&b.ID, &b.Year, &b.Month, &b.FiscalYear, &b.BulletinDate, &b.SourceURL, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bulletin")
		}
		b.BulletinDate = b.BulletinDate.UTC()
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list bulletins iterate")
}

func (s *PostgresStore) GetRawHTML(ctx context.Context, year, month int) (string, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT raw_html FROM bulletins WHERE year = $1 AND month = $2`,
		year, month,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Errorf("postgres: no bulletin stored for %d-%02d", year, month)
		}
		return "", eris.Wrap(err, "postgres: get raw html")
	}
	return raw, nil
}

func (s *PostgresStore) GetEntries(ctx context.Context, bulletinID int64) ([]model.CategoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, bulletin_id, category, country, chart, status, priority_date, notes
		 FROM category_entries WHERE bulletin_id = $1
		 ORDER BY chart, category, country`,
		bulletinID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get entries")
	}
	defer rows.Close()

	var out []model.CategoryEntry
	for rows.Next() {
		var e model.CategoryEntry
		var pd *time.Time
		if err := rows.Scan(&e.ID, &e.BulletinID, &e.Category, &e.Country, &e.Chart, &e.Status, &pd, &e.Notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		if pd != nil {
			t := pd.UTC()
			e.PriorityDate = &t
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get entries iterate")
}

func (s *PostgresStore) GetSeries(ctx context.Context, key model.SeriesKey, fyFrom, fyTo int) ([]model.SeriesPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT b.bulletin_date, e.status, e.priority_date
		 FROM category_entries e
		 JOIN bulletins b ON b.id = e.bulletin_id
		 WHERE e.category = $1 AND e.country = $2 AND e.chart = $3
		   AND b.fiscal_year >= $4 AND b.fiscal_year <= $5
		 ORDER BY b.year, b.month`,
		string(key.Category), string(key.Country), string(key.Chart), fyFrom, fyTo,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get series")
	}
	defer rows.Close()

	var out []model.SeriesPoint
	for rows.Next() {
		var p model.SeriesPoint
		var pd *time.Time
		if err := rows.Scan(&p.BulletinDate, &p.Status, &pd); err != nil {
			return nil, eris.Wrap(err, "postgres: scan series point")
		}
		p.BulletinDate = p.BulletinDate.UTC()
		if pd != nil {
			t := pd.UTC()
			p.PriorityDate = &t
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get series iterate")
}

func (s *PostgresStore) PutForecast(ctx context.Context, f *model.Forecast) error {
	var pd any
	if f.PredictedDate != nil {
		pd = *f.PredictedDate
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO forecasts (category, country, chart, target_year, target_month, predicted_date, confidence, model_id, produced_at, features_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (category, country, chart, target_year, target_month) DO UPDATE SET
		   predicted_date = EXCLUDED.predicted_date, confidence = EXCLUDED.confidence,
		   model_id = EXCLUDED.model_id, produced_at = EXCLUDED.produced_at,
		   features_hash = EXCLUDED.features_hash`,
		string(f.Key.Category), string(f.Key.Country), string(f.Key.Chart),
		f.TargetYear, f.TargetMonth, pd, f.Confidence, f.ModelID, f.ProducedAt.UTC(), f.FeaturesHash,
	)
	return eris.Wrap(err, "postgres: put forecast")
}

func (s *PostgresStore) GetForecast(ctx context.Context, key model.SeriesKey, targetYear, targetMonth int) (*model.Forecast, error) {
	var f model.Forecast
	var pd *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT category, country, chart, target_year, target_month, predicted_date, confidence, model_id, produced_at, features_hash
		 FROM forecasts WHERE category = $1 AND country = $2 AND chart = $3 AND target_year = $4 AND target_month = $5`,
		string(key.Category), string(key.Country), string(key.Chart), targetYear, targetMonth,
	).Scan(&f.Key.Category, &f.Key.Country, &f.Key.Chart, &f.TargetYear, &f.TargetMonth,
		&pd, &f.Confidence, &f.ModelID, &f.ProducedAt, &f.FeaturesHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get forecast")
	}
	if pd != nil {
		t := pd.UTC()
		f.PredictedDate = &t
	}
	return &f, nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*model.StoreStats, error) {
	var stats model.StoreStats
	var earliest, latest, lastIngest *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(bulletin_date), MAX(bulletin_date), MAX(updated_at) FROM bulletins`,
	).Scan(&stats.BulletinCount, &earliest, &latest, &lastIngest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bulletin stats")
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM category_entries`).Scan(&stats.EntryCount); err != nil {
		return nil, eris.Wrap(err, "postgres: entry stats")
	}
	if earliest != nil {
		t := earliest.UTC()
		stats.Earliest = &t
	}
	if latest != nil {
		t := latest.UTC()
		stats.Latest = &t
	}
	if lastIngest != nil {
		t := lastIngest.UTC()
		stats.LastIngestAt = &t
	}
	return &stats, nil
}
