package preferences

import (
	"context"
	"encoding/json"
	"errors"

	yall "yall.in"
)

const emptyJSON = "{}"

var (
	// ErrPreferencesNotFound is returned when a Storer has no preferences
	// for the user and filter requested.
	ErrPreferencesNotFound = errors.New("preferences not found")

	// ErrMissingUserID is returned when an operation is attempted without
	// identifying the user it's for.
	ErrMissingUserID = errors.New("user ID must be set")

	// ErrInvalidKey is returned when a preference key is empty or has
	// empty segments.
	ErrInvalidKey = errors.New("invalid preference key")
)

// Storer is an interface for storing and retrieving user preferences.
// Implementations must be safe for concurrent use.
type Storer interface {
	// Retrieve returns the preferences stored for `userID` whose keys
	// match `filter`, nested from the root. If none match,
	// ErrPreferencesNotFound is returned.
	Retrieve(ctx context.Context, userID, filter string) (Document, error)

	// Update stores every leaf of `doc` for `userID`, replacing any
	// values already stored at the same keys.
	Update(ctx context.Context, userID string, doc Document) error

	// Clear removes every preference for `userID` whose key matches
	// `filter`. Clearing preferences that don't exist is not an error.
	Clear(ctx context.Context, userID, filter string) error
}

// Dependencies manages the dependency injection for the preferences
// package. All its properties are required for a Dependencies struct to be
// valid.
type Dependencies struct {
	Storer Storer // the Storer preferences are looked up in
}

// LookupJSON returns the preferences stored for `userID` that match
// `filter`, encoded as a JSON object. If the Storer has no matching
// preferences, the empty object "{}" is returned. Errors from the Storer
// are returned unchanged.
func (d Dependencies) LookupJSON(ctx context.Context, userID, filter string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	var jsonStr string
	doc, err := d.Storer.Retrieve(ctx, userID, filter)
	switch {
	case errors.Is(err, ErrPreferencesNotFound):
		jsonStr = emptyJSON
	case err != nil:
		return "", err
	default:
		if doc == nil {
			doc = Document{}
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		jsonStr = string(b)
	}
	yall.FromContext(ctx).WithField("json", jsonStr).WithField("filter", filter).Debug("retrieved preferences")
	return jsonStr, nil
}

// Update stores `doc` as part of the preferences for `userID`.
func (d Dependencies) Update(ctx context.Context, userID string, doc Document) error {
	if userID == "" {
		return ErrMissingUserID
	}
	// validate before touching the Storer, so a bad key doesn't leave a
	// partial write behind
	if _, err := Flatten(doc); err != nil {
		return err
	}
	return d.Storer.Update(ctx, userID, doc)
}

// Clear removes the preferences for `userID` that match `filter`.
func (d Dependencies) Clear(ctx context.Context, userID, filter string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	return d.Storer.Clear(ctx, userID, filter)
}
