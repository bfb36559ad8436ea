package postgres

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"

	"github.com/pkg/errors"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Migrate applies any migrations that haven't been applied to the
// database yet, in filename order. Each migration runs in its own
// transaction and is recorded in the schema_migrations table.
func (s *Storer) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return errors.Wrap(err, "error creating schema_migrations")
	}

	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return errors.Wrap(err, "error listing migrations")
	}
	sort.Strings(files)

	for _, file := range files {
		version := path.Base(file)
		var applied bool
		err = s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&applied)
		if err != nil {
			return errors.Wrapf(err, "error checking migration %s", version)
		}
		if applied {
			continue
		}
		contents, err := migrations.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "error reading migration %s", version)
		}
		if err := s.apply(ctx, version, string(contents)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storer) apply(ctx context.Context, version, stmt string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrapf(err, "error starting migration %s", version)
	}
	defer tx.Rollback(ctx) // no-op once committed

	if _, err := tx.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "error running migration %s", version)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return errors.Wrapf(err, "error recording migration %s", version)
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "error committing migration %s", version)
	}
	return nil
}
