// Package keys holds the configured API keys and hands them out in
// round-robin order.
//
// A Store is built once at startup and never reloaded. Its cursor is the
// only state shared between concurrent requests:
//
//	store, err := keys.Load(keys.SourceFromEnv("api-keys.json"))
//	cred, err := store.Next()   // keys[cursor], then cursor++ (mod len)
//	rot, err := store.Rotate()  // cursor++ without handing out a key
//	st := store.Status()        // {Count, Cursor}, read-only
//
// Next and Rotate return ErrNoCredentials on an empty store.
//
// # Sources
//
// Keys come from the first source that is present:
//
//  1. GEMINI_API_KEYS, a comma-separated list. Set to a non-empty value it
//     always wins, even if it yields zero keys after trimming.
//  2. A structured file: a JSON array or {"keys": [...]}, a TOML or YAML
//     document with a keys list.
package keys
