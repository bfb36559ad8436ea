// Package postgres provides an implementation of the preferences.Storer
// interface backed by PostgreSQL. Each preference leaf is a row keyed by
// the user and its dotted key, with the value stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"lockbox.dev/preferences"
)

const (
	// matches every key when $2 is empty, otherwise the key equal to $2
	// and the keys underneath it
	filterClause = `($2 = '' OR key = $2 OR key LIKE $3 ESCAPE '\')`

	retrieveQuery = `SELECT key, value FROM preferences WHERE user_id = $1 AND ` + filterClause
	clearQuery    = `DELETE FROM preferences WHERE user_id = $1 AND ` + filterClause

	// removes the keys nested under $2 and the keys $2 is nested under
	displacedQuery = `DELETE FROM preferences WHERE user_id = $1
		AND (starts_with(key, $2::text || '.') OR starts_with($2::text, key || '.'))`

	upsertQuery = `INSERT INTO preferences (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Storer is an implementation of the preferences.Storer interface backed
// by PostgreSQL.
type Storer struct {
	pool *pgxpool.Pool
}

// NewStorer returns a Storer that uses `pool`.
func NewStorer(pool *pgxpool.Pool) *Storer {
	return &Storer{
		pool: pool,
	}
}

// Connect opens a connection pool to the database at `dsn`, checks that
// it's reachable, and returns a Storer using it.
func Connect(ctx context.Context, dsn string) (*Storer, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "error connecting to database")
	}
	return NewStorer(pool), nil
}

// Close closes every connection in the pool.
func (s *Storer) Close() {
	s.pool.Close()
}

func filterArgs(userID, filter string) []interface{} {
	return []interface{}{userID, filter, likeEscaper.Replace(filter) + ".%"}
}

// Retrieve returns the preferences for `userID` that match `filter`, or
// preferences.ErrPreferencesNotFound if there are none.
func (s *Storer) Retrieve(ctx context.Context, userID, filter string) (preferences.Document, error) {
	rows, err := s.pool.Query(ctx, retrieveQuery, filterArgs(userID, filter)...)
	if err != nil {
		return nil, errors.Wrap(err, "error retrieving preferences")
	}
	defer rows.Close()

	var prefs []preferences.Preference
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, errors.Wrap(err, "error scanning preference")
		}
		var val preferences.Value
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, errors.Wrapf(err, "error decoding preference %q", key)
		}
		prefs = append(prefs, preferences.Preference{Key: key, Value: val})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error retrieving preferences")
	}
	if len(prefs) < 1 {
		return nil, preferences.ErrPreferencesNotFound
	}
	return preferences.Expand(prefs), nil
}

// Update stores the leaves of `doc` for `userID` in a single transaction,
// overwriting any existing values at the same keys and removing any they
// displace.
func (s *Storer) Update(ctx context.Context, userID string, doc preferences.Document) error {
	if userID == "" {
		return preferences.ErrMissingUserID
	}
	prefs, err := preferences.Flatten(doc)
	if err != nil {
		return err
	}
	if len(prefs) < 1 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pref := range prefs {
		encoded, err := json.Marshal(pref.Value)
		if err != nil {
			return errors.Wrapf(err, "error encoding preference %q", pref.Key)
		}
		batch.Queue(displacedQuery, userID, pref.Key)
		batch.Queue(upsertQuery, userID, pref.Key, string(encoded))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}
	defer tx.Rollback(ctx) // no-op once committed

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "error storing preferences")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "error committing preferences")
	}
	return nil
}

// Clear removes the preferences for `userID` that match `filter`.
func (s *Storer) Clear(ctx context.Context, userID, filter string) error {
	_, err := s.pool.Exec(ctx, clearQuery, filterArgs(userID, filter)...)
	if err != nil {
		return errors.Wrap(err, "error clearing preferences")
	}
	return nil
}
