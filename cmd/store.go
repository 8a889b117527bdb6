package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/store"
)

// initStore opens the configured backend and runs migrations. Failures here
// map to the storage exit code.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Backend {
	case "embedded":
		st, err = store.NewSQLite(cfg.Store.DSN)
	case "server":
		st, err = store.NewPostgres(ctx, cfg.Store.DSN, nil)
	default:
		return nil, &model.ConfigError{Msg: "unsupported store backend: " + cfg.Store.Backend}
	}
	if err != nil {
		return nil, &model.StorageError{Err: err}
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, &model.StorageError{Err: eris.Wrap(err, "migrate store")}
	}
	return st, nil
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportExit translates a run report into the process exit contract: nil for
// a clean run, 5 when nothing succeeded and every failure was a fetch that
// exhausted its retries, 2 for any other partial outcome.
func reportExit(report *model.RunReport) error {
	if !report.HasFailures() && !report.Cancelled {
		return nil
	}
	if report.Stored == 0 && report.Skipped == 0 && len(report.Failed) > 0 {
		exhausted := true
		for _, f := range report.Failed {
			if f.Stage != "fetch" || f.Retries == 0 {
				exhausted = false
				break
			}
		}
		if exhausted {
			return &exitError{code: 5, msg: "all fetches exhausted their retries"}
		}
	}
	return &exitError{code: 2, msg: "run completed with failures"}
}
