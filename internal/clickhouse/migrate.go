package clickhouse

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	ierr "github.com/flexprice/invoicer/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the embedded statements in file name order
func Migrations() (map[string]string, []string, error) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, nil, ierr.WithError(err).WithHint("Failed to list migrations").Mark(ierr.ErrSystem)
	}
	sort.Strings(files)

	bodies := make(map[string]string, len(files))
	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return nil, nil, ierr.WithError(err).WithHint("Failed to read migration").Mark(ierr.ErrSystem)
		}
		bodies[name] = string(body)
	}
	return bodies, files, nil
}

// Migrate creates the usage tables. ClickHouse takes one statement per call,
// so every file holds exactly one.
func (s *ClickHouseStore) Migrate(ctx context.Context) error {
	bodies, files, err := Migrations()
	if err != nil {
		return err
	}

	for _, name := range files {
		if err := s.GetConn().Exec(ctx, bodies[name]); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to apply migration").
				WithReportableDetails(map[string]any{"file": name}).
				Mark(ierr.ErrDatabase)
		}
	}
	return nil
}
