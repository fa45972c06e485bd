package keys

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoCredentials is returned by Next and Rotate when the store holds no keys.
var ErrNoCredentials = errors.New("no API keys configured")

// Credential is a key handed out for one forwarded request.
type Credential struct {
	// Index is the position of the key in the configured list.
	Index int
	// Key is the raw API key.
	Key string
}

// LogValue renders the credential masked so it can be passed to slog directly.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", c.Index),
		slog.String("key", Mask(c.Key)),
	)
}

// String returns the masked key.
func (c Credential) String() string {
	return Mask(c.Key)
}

// Status is a point-in-time view of the store.
type Status struct {
	Count  int
	Cursor int
}

// Rotation describes a cursor advance triggered without forwarding a request.
type Rotation struct {
	Previous int
	Current  int
	Count    int
}

// Store holds an immutable, ordered key list and the rotation cursor.
// All cursor reads and advances go through mu.
type Store struct {
	keys   []string
	origin Origin

	mu     sync.Mutex
	cursor int
}

// NewStore creates a store over keys. Empty strings are dropped; duplicates are kept.
func NewStore(keys []string) *Store {
	return newStore(keys, OriginNone)
}

func newStore(keys []string, origin Origin) *Store {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}
	if len(filtered) == 0 {
		origin = OriginNone
	}
	return &Store{keys: filtered, origin: origin}
}

// Len returns the number of configured keys.
func (s *Store) Len() int {
	return len(s.keys)
}

// Origin reports which source the keys came from.
func (s *Store) Origin() Origin {
	return s.origin
}

// Keys returns a copy of the configured keys in rotation order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Next returns the key under the cursor and advances the cursor by one.
func (s *Store) Next() (Credential, error) {
	if len(s.keys) == 0 {
		return Credential{}, ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cursor
	s.cursor = (s.cursor + 1) % len(s.keys)
	return Credential{Index: idx, Key: s.keys[idx]}, nil
}

// Status returns the key count and cursor without mutating anything.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Count: len(s.keys), Cursor: s.cursor}
}

// Rotate advances the cursor exactly like Next but hands out no key.
// On an empty store it fails and leaves the cursor untouched.
func (s *Store) Rotate() (Rotation, error) {
	if len(s.keys) == 0 {
		return Rotation{}, ErrNoCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cursor
	s.cursor = (s.cursor + 1) % len(s.keys)
	return Rotation{Previous: prev, Current: s.cursor, Count: len(s.keys)}, nil
}
