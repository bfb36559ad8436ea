// Package memory provides an in-memory implementation of the
// preferences.Storer interface, suitable for testing and single-instance
// deployments that don't need preferences to survive a restart.
package memory

import (
	"context"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"lockbox.dev/preferences"
)

const table = "preferences"

var (
	schema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "UserID"},
								&memdb.StringFieldIndex{Field: "Key"},
							},
						},
					},
					"user": {
						Name:    "user",
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
				},
			},
		},
	}
)

type row struct {
	UserID string
	Key    string
	Value  preferences.Value
}

// Storer is an in-memory implementation of the preferences.Storer
// interface.
type Storer struct {
	db *memdb.MemDB
}

// NewStorer returns an in-memory Storer instance that is ready to be used
// as a preferences.Storer.
func NewStorer() (*Storer, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, err
	}
	return &Storer{
		db: db,
	}, nil
}

// matching returns every row for `userID` whose key matches `filter`.
func matching(txn *memdb.Txn, userID, filter string) ([]*row, error) {
	iter, err := txn.Get(table, "user", userID)
	if err != nil {
		return nil, errors.Wrap(err, "error listing preferences")
	}
	var rows []*row
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		r := raw.(*row)
		if !preferences.MatchesFilter(r.Key, filter) {
			continue
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Retrieve returns the preferences for `userID` that match `filter`, or
// preferences.ErrPreferencesNotFound if there are none.
func (s *Storer) Retrieve(_ context.Context, userID, filter string) (preferences.Document, error) {
	txn := s.db.Txn(false)
	rows, err := matching(txn, userID, filter)
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, preferences.ErrPreferencesNotFound
	}
	prefs := make([]preferences.Preference, 0, len(rows))
	for _, r := range rows {
		prefs = append(prefs, preferences.Preference{Key: r.Key, Value: r.Value})
	}
	return preferences.Expand(prefs), nil
}

// Update stores the leaves of `doc` for `userID`, overwriting any existing
// values at the same keys and removing any they displace.
func (s *Storer) Update(_ context.Context, userID string, doc preferences.Document) error {
	if userID == "" {
		return preferences.ErrMissingUserID
	}
	prefs, err := preferences.Flatten(doc)
	if err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := matching(txn, userID, "")
	if err != nil {
		return err
	}
	for _, r := range existing {
		for _, pref := range prefs {
			if !preferences.Displaces(pref.Key, r.Key) {
				continue
			}
			err = txn.Delete(table, r)
			if err != nil {
				return errors.Wrap(err, "error deleting displaced preference")
			}
			break
		}
	}
	for _, pref := range prefs {
		err = txn.Insert(table, &row{
			UserID: userID,
			Key:    pref.Key,
			Value:  pref.Value,
		})
		if err != nil {
			return errors.Wrap(err, "error storing preference")
		}
	}
	txn.Commit()
	return nil
}

// Clear removes the preferences for `userID` that match `filter`.
func (s *Storer) Clear(_ context.Context, userID, filter string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	rows, err := matching(txn, userID, filter)
	if err != nil {
		return err
	}
	for _, r := range rows {
		err = txn.Delete(table, r)
		if err != nil {
			return errors.Wrap(err, "error deleting preference")
		}
	}
	txn.Commit()
	return nil
}
