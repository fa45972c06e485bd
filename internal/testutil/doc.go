// Package testutil provides test fixtures and utilities.
//
// # Fixtures
//
// Key files in every supported format are embedded using go:embed:
//
//	fixtures/keys_array.json
//	fixtures/keys_object.json
//	fixtures/keys.toml
//	fixtures/keys.yaml
//	fixtures/invalid.json
//
// WriteFixture copies one into a test directory so it can be loaded by path:
//
//	path := testutil.WriteFixture(t, t.TempDir(), "keys.toml")
//	store, err := keys.Load(keys.Source{File: path})
//
// # Upstream
//
// NewUpstream starts a TLS server that records what the proxy sends:
//
//	up := testutil.NewUpstream(t, nil)
//	// point the proxy at up.URL with up.Transport()
//	got := up.Requests()[0].Query.Get("key")
package testutil
