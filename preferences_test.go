package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/nsf/jsondiff"
	yall "yall.in"
	testLogger "yall.in/testing"
)

var errUnreachable = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// staticStorer is a Storer that returns canned results, recording what it
// was asked for.
type staticStorer struct {
	docs map[string]Document // keyed by userID + "|" + filter
	err  error

	mu    sync.Mutex
	calls int
}

func (s *staticStorer) Retrieve(_ context.Context, userID, filter string) (Document, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[userID+"|"+filter]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return doc, nil
}

func (s *staticStorer) Update(_ context.Context, _ string, _ Document) error {
	return s.err
}

func (s *staticStorer) Clear(_ context.Context, _, _ string) error {
	return s.err
}

// recordingSink keeps every entry logged to it.
type recordingSink struct {
	mu      sync.Mutex
	entries []yall.Entry
}

func (r *recordingSink) AddEntry(e yall.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	logLevel := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "ERROR"
	}
	return yall.InContext(context.Background(), yall.New(testLogger.New(t, yall.Severity(logLevel))))
}

func mustDocument(t *testing.T, in string) Document {
	t.Helper()
	var doc Document
	if err := json.Unmarshal([]byte(in), &doc); err != nil {
		t.Fatalf("error decoding fixture %q: %s", in, err)
	}
	return doc
}

func TestLookupJSON(t *testing.T) {
	t.Parallel()

	type testCase struct {
		// documents the storer holds, keyed by userID|filter
		stored map[string]string

		// error the storer returns for everything, if set
		storerErr error

		userID string
		filter string

		expectedJSON string
		expectedErr  error
	}

	tests := map[string]testCase{
		// a user with preferences and no filter gets all of them
		"all-preferences": {
			stored: map[string]string{
				"alice|": `{"twitter": {"token": "abc"}}`,
			},
			userID:       "alice",
			expectedJSON: `{"twitter":{"token":"abc"}}`,
		},
		// a user with nothing stored gets the empty object
		"no-preferences": {
			stored:       map[string]string{},
			userID:       "bob",
			expectedJSON: `{}`,
		},
		// the empty object is returned whatever the filter is
		"no-preferences-filtered": {
			stored: map[string]string{
				"bob|": `{"twitter": {"token": "abc"}}`,
			},
			userID:       "bob",
			filter:       "org.lockbox.oauth",
			expectedJSON: `{}`,
		},
		// the filter is passed to the storer and whatever subtree it
		// returns is used as-is
		"filtered-subtree": {
			stored: map[string]string{
				"alice|":        `{"twitter": {"token": "abc"}, "github": {"token": "def"}}`,
				"alice|twitter": `{"twitter": {"token": "abc"}}`,
			},
			userID:       "alice",
			filter:       "twitter",
			expectedJSON: `{"twitter":{"token":"abc"}}`,
		},
		// an empty document from the storer is data, not absence, and
		// serialises normally
		"empty-document": {
			stored: map[string]string{
				"carol|": `{}`,
			},
			userID:       "carol",
			expectedJSON: `{}`,
		},
		// every JSON type survives the trip
		"mixed-types": {
			stored: map[string]string{
				"dave|": `{"a": {"s": "x", "n": 12.50, "b": true, "z": null, "l": [1, "two", false, {}], "e": {}}}`,
			},
			userID:       "dave",
			expectedJSON: `{"a":{"b":true,"e":{},"l":[1,"two",false,{}],"n":12.50,"s":"x","z":null}}`,
		},
		// storer failures come back unchanged, with no default
		"storer-unreachable": {
			storerErr:   errUnreachable,
			userID:      "alice",
			expectedErr: errUnreachable,
		},
		// a missing user is rejected before the storer is asked
		"missing-user": {
			storerErr:   errUnreachable,
			expectedErr: ErrMissingUserID,
		},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			storer := &staticStorer{
				docs: map[string]Document{},
				err:  tc.storerErr,
			}
			for k, v := range tc.stored {
				storer.docs[k] = mustDocument(t, v)
			}
			deps := Dependencies{Storer: storer}

			got, err := deps.LookupJSON(testContext(t), tc.userID, tc.filter)
			if !errors.Is(err, tc.expectedErr) {
				t.Fatalf("Expected error %v, got %v", tc.expectedErr, err)
			}
			if tc.expectedErr != nil {
				if got != "" {
					t.Errorf("Expected no JSON alongside an error, got %q", got)
				}
				if tc.expectedErr == ErrMissingUserID && storer.calls != 0 {
					t.Errorf("Expected storer not to be called, was called %d times", storer.calls)
				}
				return
			}
			if got != tc.expectedJSON {
				t.Errorf("Expected JSON %s, got %s", tc.expectedJSON, got)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("Result %q is not valid JSON", got)
			}
		})
	}
}

func TestLookupJSONRoundTrips(t *testing.T) {
	t.Parallel()

	in := `{"org": {"lockbox": {"oauth": {"twitter": {"data": "oauth_token=xxx&oauth_token_secret=yyy", "expires": 3600, "scopes": ["read", "write"]}}}}}`
	deps := Dependencies{Storer: &staticStorer{
		docs: map[string]Document{"alice|": mustDocument(t, in)},
	}}
	got, err := deps.LookupJSON(testContext(t), "alice", "")
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	opts := jsondiff.DefaultConsoleOptions()
	match, diff := jsondiff.Compare([]byte(in), []byte(got), &opts)
	if match != jsondiff.FullMatch {
		t.Errorf("Unexpected JSON: %s", diff)
	}
}

func TestLookupJSONIdempotent(t *testing.T) {
	t.Parallel()

	deps := Dependencies{Storer: &staticStorer{
		docs: map[string]Document{
			"alice|": mustDocument(t, `{"b": 1, "a": {"z": true, "y": [3, 2, 1]}, "c": "x"}`),
		},
	}}
	ctx := testContext(t)
	first, err := deps.LookupJSON(ctx, "alice", "")
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	for i := 0; i < 20; i++ {
		got, err := deps.LookupJSON(ctx, "alice", "")
		if err != nil {
			t.Fatalf("Unexpected error on call %d: %s", i, err)
		}
		if got != first {
			t.Fatalf("Call %d returned %s, first call returned %s", i, got, first)
		}
	}
}

func TestLookupJSONNilDocument(t *testing.T) {
	t.Parallel()

	deps := Dependencies{Storer: &staticStorer{
		docs: map[string]Document{"alice|": nil},
	}}
	got, err := deps.LookupJSON(testContext(t), "alice", "")
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if got != "{}" {
		t.Errorf("Expected {}, got %q", got)
	}
}

func TestLookupJSONLogs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		stored       map[string]Document
		filter       string
		expectedJSON string
	}{
		"found": {
			stored: map[string]Document{
				"alice|twitter": {"twitter": Map(map[string]Value{"token": String("abc")})},
			},
			filter:       "twitter",
			expectedJSON: `{"twitter":{"token":"abc"}}`,
		},
		"defaulted": {
			stored:       map[string]Document{},
			filter:       "github",
			expectedJSON: `{}`,
		},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{}
			ctx := yall.InContext(context.Background(), yall.New(sink))
			deps := Dependencies{Storer: &staticStorer{docs: tc.stored}}

			_, err := deps.LookupJSON(ctx, "alice", tc.filter)
			if err != nil {
				t.Fatalf("Unexpected error: %s", err)
			}
			if len(sink.entries) != 1 {
				t.Fatalf("Expected 1 log entry, got %d: %+v", len(sink.entries), sink.entries)
			}
			entry := sink.entries[0]
			if entry.Fields["json"] != tc.expectedJSON {
				t.Errorf("Expected logged json %q, got %v", tc.expectedJSON, entry.Fields["json"])
			}
			if entry.Fields["filter"] != tc.filter {
				t.Errorf("Expected logged filter %q, got %v", tc.filter, entry.Fields["filter"])
			}
		})
	}
}

func TestUpdateRejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	deps := Dependencies{Storer: &staticStorer{err: errUnreachable}}
	err := deps.Update(testContext(t), "alice", Document{"a..b": String("x")})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	err = deps.Update(testContext(t), "", Document{"a": String("x")})
	if !errors.Is(err, ErrMissingUserID) {
		t.Errorf("Expected ErrMissingUserID, got %v", err)
	}
	err = deps.Clear(testContext(t), "", "")
	if !errors.Is(err, ErrMissingUserID) {
		t.Errorf("Expected ErrMissingUserID, got %v", err)
	}
}
