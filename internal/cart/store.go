package cart

import (
	"errors"
	"sync"
	"time"

	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// DefaultSessionTTL bounds how long an idle session keeps its cart.
const DefaultSessionTTL = 24 * time.Hour

// ErrStoreUnavailable indicates the store was constructed without its
// required dependencies.
var ErrStoreUnavailable = errors.New("cart: store unavailable")

// StoreConfig wires the calculator and clock into the session store.
type StoreConfig struct {
	Calculator *Calculator
	TTL        time.Duration
	Clock      func() time.Time
}

// Store owns one ledger per browsing session. Ledgers are created empty on
// first use and mutated only through Update, which serialises access per
// session; reads go through View or Snapshot. Expired sessions are dropped
// by Sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session

	calc *Calculator
	ttl  time.Duration
	now  func() time.Time
}

type session struct {
	mu       sync.Mutex
	ledger   *Ledger
	lastSeen time.Time
}

// NewStore constructs an empty session store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Calculator == nil {
		return nil, errors.New("cart: store requires a calculator")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		sessions: make(map[string]*session),
		calc:     cfg.Calculator,
		ttl:      ttl,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (s *Store) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		entry = &session{ledger: NewLedger()}
		s.sessions[id] = entry
	}
	entry.lastSeen = s.now()
	return entry
}

// Update runs fn against the session's ledger under the session lock.
func (s *Store) Update(sessionID string, fn func(*Ledger) error) error {
	if s == nil {
		return ErrStoreUnavailable
	}
	entry := s.session(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.ledger)
}

// View runs fn against the session's ledger read-only. The callback must not
// retain the ledger beyond the call.
func (s *Store) View(sessionID string, fn func(*Ledger)) {
	if s == nil {
		return
	}
	entry := s.session(sessionID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.ledger)
}

// Snapshot returns an immutable copy of the session's lines plus the totals
// derived at this instant.
func (s *Store) Snapshot(sessionID string) ([]domain.CartItem, domain.Totals, error) {
	if s == nil || s.calc == nil {
		return nil, domain.Totals{}, ErrStoreUnavailable
	}
	var (
		items  []domain.CartItem
		totals domain.Totals
	)
	s.View(sessionID, func(l *Ledger) {
		items = l.Snapshot()
		totals = s.calc.Compute(l)
	})
	return items, totals, nil
}

// Clear empties the session's ledger. Idempotent.
func (s *Store) Clear(sessionID string) error {
	return s.Update(sessionID, func(l *Ledger) error {
		l.Clear()
		return nil
	})
}

// Sweep drops sessions idle past the TTL and reports how many were removed.
func (s *Store) Sweep() int {
	if s == nil {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
