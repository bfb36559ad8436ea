package preferences

import (
	"sort"
	"strings"
)

// Document is a user's preferences, or a subtree of them, nested by the
// segments of their dotted keys.
type Document map[string]Value

// Preference is a single stored leaf of a user's preferences.
type Preference struct {
	Key   string
	Value Value
}

// ValidateKey returns ErrInvalidKey if `key` can't address a preference:
// it must be non-empty and have no empty segments.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, ".") {
		if segment == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// MatchesFilter returns true if the preference stored at `key` should be
// included in a lookup narrowed by `filter`. An empty filter matches every
// key.
func MatchesFilter(key, filter string) bool {
	if filter == "" {
		return true
	}
	return key == filter || strings.HasPrefix(key, filter+".")
}

// Displaces returns true if storing a leaf at `written` replaces whatever
// is stored at `stored`, because one key is nested under the other. Storers
// remove displaced keys in the same write that stores `written`, so a
// value never shares a key path with a subtree.
func Displaces(written, stored string) bool {
	return strings.HasPrefix(stored, written+".") || strings.HasPrefix(written, stored+".")
}

// Flatten turns `doc` into the leaves that need to be stored for it,
// sorted by key. Maps are descended into, except for empty maps, which are
// stored as leaves so they survive a round trip. ErrInvalidKey is returned
// if any resulting key fails ValidateKey.
func Flatten(doc Document) ([]Preference, error) {
	var prefs []Preference
	err := flatten("", doc, &prefs)
	if err != nil {
		return nil, err
	}
	sort.Slice(prefs, func(i, j int) bool {
		return prefs[i].Key < prefs[j].Key
	})
	return prefs, nil
}

func flatten(prefix string, m map[string]Value, prefs *[]Preference) error {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if err := ValidateKey(key); err != nil {
			return err
		}
		if v.kind == KindMap && len(v.m) > 0 {
			if err := flatten(key, v.m, prefs); err != nil {
				return err
			}
			continue
		}
		*prefs = append(*prefs, Preference{Key: key, Value: v.clone()})
	}
	return nil
}

// Expand nests `prefs` into a Document by the segments of their keys.
// Keys are applied in sorted order; when a key lives underneath another
// key that holds a non-map leaf, the deeper key wins and the leaf is
// replaced by a map. Storers never keep such pairs (see Displaces), but
// Expand doesn't rely on it.
func Expand(prefs []Preference) Document {
	sorted := make([]Preference, len(prefs))
	copy(sorted, prefs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})
	doc := Document{}
	for _, pref := range sorted {
		segments := strings.Split(pref.Key, ".")
		cur := map[string]Value(doc)
		for _, segment := range segments[:len(segments)-1] {
			existing, ok := cur[segment]
			if !ok || existing.kind != KindMap {
				existing = Value{kind: KindMap, m: map[string]Value{}}
				cur[segment] = existing
			}
			cur = existing.m
		}
		cur[segments[len(segments)-1]] = pref.Value.clone()
	}
	return doc
}
