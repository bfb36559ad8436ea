// Package preferences provides a lookup service for the structured
// preferences a user has stored, rendered as JSON.
//
// Preferences are stored as leaves addressed by dotted keys, like
// "org.lockbox.oauth.twitter.data", and are handed back re-nested from the
// root as a Document. A filter narrows a lookup to the keys equal to it or
// underneath it, so a filter of "org.lockbox.oauth" returns only the OAuth
// subtree. Filtering is always done by the Storer; this package never
// post-filters what a Storer returns.
//
// Use this package by filling a `Dependencies` struct with a `Storer` and
// calling its `LookupJSON` method. When the Storer has nothing for the user
// and filter, `LookupJSON` returns the empty JSON object rather than an error.
// The `apiv1` package exposes this over HTTP, and the `storers` packages
// contain Storer implementations backed by memory, Redis, and PostgreSQL.
package preferences
