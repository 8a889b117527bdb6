package store

import (
	"context"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// SchemaVersion is the expected value in schema_meta. Migrate fails when a
// database carries a different version rather than guessing at an upgrade.
const SchemaVersion = 1

// Store defines the persistence interface for bulletins, entries, and
// forecast artifacts.
type Store interface {
	// Bulletins. UpsertBulletin replaces the bulletin's entries atomically
	// and returns the bulletin ID. GetBulletin returns (nil, nil) when no
	// bulletin exists for the month.
	UpsertBulletin(ctx context.Context, b *model.Bulletin, entries []model.CategoryEntry) (int64, error)
	GetBulletin(ctx context.Context, year, month int) (*model.Bulletin, error)
	ListBulletins(ctx context.Context, fyFrom, fyTo int) ([]model.Bulletin, error)
	GetRawHTML(ctx context.Context, year, month int) (string, error)

	// Entries and time series.
	GetEntries(ctx context.Context, bulletinID int64) ([]model.CategoryEntry, error)
	GetSeries(ctx context.Context, key model.SeriesKey, fyFrom, fyTo int) ([]model.SeriesPoint, error)

	// Forecast artifacts, keyed by series and target month.
	PutForecast(ctx context.Context, f *model.Forecast) error
	GetForecast(ctx context.Context, key model.SeriesKey, targetYear, targetMonth int) (*model.Forecast, error)

	// Aggregates for the stats command.
	GetStats(ctx context.Context) (*model.StoreStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
