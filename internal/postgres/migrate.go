package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	ierr "github.com/flexprice/invoicer/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration is one embedded schema file
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded schema files in name order
func Migrations() ([]Migration, error) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list migrations").
			Mark(ierr.ErrSystem)
	}
	sort.Strings(files)

	out := make([]Migration, 0, len(files))
	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read migration").
				WithReportableDetails(map[string]any{"file": name}).
				Mark(ierr.ErrSystem)
		}
		out = append(out, Migration{Name: name, SQL: string(body)})
	}
	return out, nil
}

// Migrate applies the embedded schema files inside one transaction. Every
// statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	files, err := Migrations()
	if err != nil {
		return err
	}

	return db.WithTx(ctx, func(ctx context.Context) error {
		for _, m := range files {
			db.logger.Infow("applying migration", "file", m.Name)
			if _, err := db.GetQuerier(ctx).ExecContext(ctx, m.SQL); err != nil {
				return ierr.WithError(err).
					WithHint("Failed to apply migration").
					WithReportableDetails(map[string]any{"file": m.Name}).
					Mark(ierr.ErrDatabase)
			}
		}
		return nil
	})
}
