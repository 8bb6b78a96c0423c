package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fr0stylo/integrationgw/internal/app/domain"
)

// Persister stores sealed credential records outside the process.
type Persister interface {
	SaveCredentials(ctx context.Context, platformID string, sealed []byte) error
	DeleteCredentials(ctx context.Context, platformID string) error
	LoadCredentials(ctx context.Context) (map[string][]byte, error)
}

// Sealer encrypts credential records before they reach a Persister.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Store is the per-platform credential map. Records are replaced whole,
// never patched.
type Store struct {
	mu    sync.RWMutex
	items map[string]domain.Credentials

	// writeMu orders persistence with the in-memory swap.
	writeMu   sync.Mutex
	persister Persister
	sealer    Sealer
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence writes sealed records through to persister.
func WithPersistence(persister Persister, sealer Sealer) Option {
	return func(s *Store) {
		if persister == nil || sealer == nil {
			return
		}
		s.persister = persister
		s.sealer = sealer
	}
}

// WithClock overrides the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty credential store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]domain.Credentials),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the stored credentials for platformID.
func (s *Store) Get(platformID string) (domain.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.items[normalizeKey(platformID)]
	if !ok {
		return domain.Credentials{}, false
	}
	return creds.Clone(), true
}

// Set replaces the credentials for platformID. With persistence configured
// the in-memory value changes only after the sealed record was written.
func (s *Store) Set(ctx context.Context, platformID string, creds domain.Credentials) error {
	key := normalizeKey(platformID)
	if key == "" {
		return fmt.Errorf("platform id is required")
	}
	creds = creds.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.persister != nil {
		raw, err := json.Marshal(creds)
		if err != nil {
			return fmt.Errorf("encode credentials: %w", err)
		}
		sealed, err := s.sealer.Seal(raw)
		if err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
		if err := s.persister.SaveCredentials(ctx, key, sealed); err != nil {
			return fmt.Errorf("persist credentials: %w", err)
		}
	}

	s.mu.Lock()
	s.items[key] = creds
	s.mu.Unlock()
	return nil
}

// Delete removes the credentials for platformID.
func (s *Store) Delete(ctx context.Context, platformID string) error {
	key := normalizeKey(platformID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.persister != nil {
		if err := s.persister.DeleteCredentials(ctx, key); err != nil {
			return fmt.Errorf("delete persisted credentials: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// IsExpired reports whether the stored expiry is strictly in the past.
// Missing credentials or a missing expiry never count as expired.
func (s *Store) IsExpired(platformID string) bool {
	creds, ok := s.Get(platformID)
	if !ok {
		return false
	}
	return Expired(creds, s.now())
}

// Expired reports whether creds expired before now.
func Expired(creds domain.Credentials, now time.Time) bool {
	if creds.ExpiresAt == nil {
		return false
	}
	return now.After(*creds.ExpiresAt)
}

// Platforms returns the ids with stored credentials, sorted.
func (s *Store) Platforms() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Restore loads persisted records into memory. Records that cannot be
// opened are skipped and logged.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	records, err := s.persister.LoadCredentials(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted credentials: %w", err)
	}

	restored := make(map[string]domain.Credentials, len(records))
	for platformID, sealed := range records {
		raw, err := s.sealer.Open(sealed)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable credential record", "platform", platformID, "error", err)
			continue
		}
		var creds domain.Credentials
		if err := json.Unmarshal(raw, &creds); err != nil {
			slog.WarnContext(ctx, "Skipping malformed credential record", "platform", platformID, "error", err)
			continue
		}
		restored[normalizeKey(platformID)] = creds
	}

	s.mu.Lock()
	for key, creds := range restored {
		s.items[key] = creds
	}
	s.mu.Unlock()
	return len(restored), nil
}

func normalizeKey(platformID string) string {
	return strings.TrimSpace(platformID)
}
