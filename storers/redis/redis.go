// Package redis provides an implementation of the preferences.Storer
// interface backed by Redis. Each user's preferences live in a single hash,
// with one field per dotted key holding the JSON encoding of its value.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"lockbox.dev/preferences"
)

// DefaultPrefix is prepended to user IDs to build the key of their hash.
const DefaultPrefix = "preferences:"

var (
	// ARGV holds field/value pairs. Fields nested under a written field, or
	// that a written field is nested under, are removed before the pairs
	// are stored.
	updateScript = redis.NewScript(`
local fields = redis.call('HKEYS', KEYS[1])
for i = 1, #ARGV, 2 do
	local written = ARGV[i]
	for _, field in ipairs(fields) do
		if string.sub(field, 1, #written + 1) == written .. '.' or string.sub(written, 1, #field + 1) == field .. '.' then
			redis.call('HDEL', KEYS[1], field)
		end
	end
end
return redis.call('HSET', KEYS[1], unpack(ARGV))
`)

	// ARGV[1] is the filter; fields equal to it or nested under it are
	// removed.
	clearScript = redis.NewScript(`
local filter = ARGV[1]
local removed = 0
for _, field in ipairs(redis.call('HKEYS', KEYS[1])) do
	if field == filter or string.sub(field, 1, #filter + 1) == filter .. '.' then
		removed = removed + redis.call('HDEL', KEYS[1], field)
	end
end
return removed
`)
)

// Storer is an implementation of the preferences.Storer interface backed
// by Redis.
type Storer struct {
	client *redis.Client
	prefix string
}

// NewStorer returns a Storer that uses `client` and DefaultPrefix.
func NewStorer(client *redis.Client) *Storer {
	return &Storer{
		client: client,
		prefix: DefaultPrefix,
	}
}

// Dial connects to the Redis server at `redisURL`, checks that it's
// reachable, and returns a Storer using it.
func Dial(ctx context.Context, redisURL string) (*Storer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing redis URL")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "error connecting to redis")
	}
	return NewStorer(client), nil
}

// WithPrefix returns a copy of `s` that stores hashes under `prefix`
// instead of DefaultPrefix.
func (s *Storer) WithPrefix(prefix string) *Storer {
	return &Storer{
		client: s.client,
		prefix: prefix,
	}
}

func (s *Storer) key(userID string) string {
	return s.prefix + userID
}

// Retrieve returns the preferences for `userID` that match `filter`, or
// preferences.ErrPreferencesNotFound if there are none.
func (s *Storer) Retrieve(ctx context.Context, userID, filter string) (preferences.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "error retrieving preferences")
	}
	var prefs []preferences.Preference
	for key, raw := range fields {
		if !preferences.MatchesFilter(key, filter) {
			continue
		}
		var val preferences.Value
		err = json.Unmarshal([]byte(raw), &val)
		if err != nil {
			return nil, errors.Wrapf(err, "error decoding preference %q", key)
		}
		prefs = append(prefs, preferences.Preference{Key: key, Value: val})
	}
	if len(prefs) < 1 {
		return nil, preferences.ErrPreferencesNotFound
	}
	return preferences.Expand(prefs), nil
}

// Update stores the leaves of `doc` for `userID`, overwriting any existing
// values at the same keys and removing any they displace, in one atomic
// script.
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
	values := make([]interface{}, 0, len(prefs)*2)
	for _, pref := range prefs {
		encoded, err := json.Marshal(pref.Value)
		if err != nil {
			return errors.Wrapf(err, "error encoding preference %q", pref.Key)
		}
		values = append(values, pref.Key, string(encoded))
	}
	err = updateScript.Run(ctx, s.client, []string{s.key(userID)}, values...).Err()
	if err != nil {
		return errors.Wrap(err, "error storing preferences")
	}
	return nil
}

// Clear removes the preferences for `userID` that match `filter`.
func (s *Storer) Clear(ctx context.Context, userID, filter string) error {
	if filter == "" {
		err := s.client.Del(ctx, s.key(userID)).Err()
		if err != nil {
			return errors.Wrap(err, "error clearing preferences")
		}
		return nil
	}
	err := clearScript.Run(ctx, s.client, []string{s.key(userID)}, filter).Err()
	if err != nil {
		return errors.Wrap(err, "error clearing preferences")
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *Storer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Storer) Close() error {
	return s.client.Close()
}
