package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// ErrNoPendingIntent indicates a callback arrived for an intent that is not
// awaiting an outcome.
var ErrNoPendingIntent = errors.New("gateway: no pending intent")

// CallbackSurface is the production Surface: Present parks the attempt
// until the gateway's browser callback posts the outcome, and Resolve
// delivers it. Each intent resolves at most once; replays are ignored.
type CallbackSurface struct {
	mu      sync.Mutex
	pending map[string]chan domain.PaymentOutcome
}

// NewCallbackSurface constructs an empty surface.
func NewCallbackSurface() *CallbackSurface {
	return &CallbackSurface{
		pending: make(map[string]chan domain.PaymentOutcome),
	}
}

// Present implements Surface. Dismissal without completing payment is
// reported by the caller cancelling ctx, which yields a Cancelled outcome.
func (s *CallbackSurface) Present(ctx context.Context, intent domain.PaymentIntent, _ domain.PaymentPrefill) (domain.PaymentOutcome, error) {
	if s == nil {
		return domain.PaymentOutcome{}, errors.New("gateway: surface is nil")
	}
	id := strings.TrimSpace(intent.ID)
	if id == "" {
		return domain.PaymentOutcome{}, errors.New("gateway: intent id is required")
	}

	ch := make(chan domain.PaymentOutcome, 1)

	s.mu.Lock()
	if _, exists := s.pending[id]; exists {
		s.mu.Unlock()
		return domain.PaymentOutcome{}, errors.New("gateway: intent already presented")
	}
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending[id] == ch {
			delete(s.pending, id)
		}
		s.mu.Unlock()
	}()

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		// The modal was dismissed or the attempt abandoned; no payment
		// completed from the storefront's point of view.
		return domain.PaymentOutcome{Status: domain.OutcomeCancelled}, nil
	}
}

// Resolve delivers the terminal outcome for a pending intent. The first
// delivery wins; later calls report ErrNoPendingIntent.
func (s *CallbackSurface) Resolve(intentID string, outcome domain.PaymentOutcome) error {
	if s == nil {
		return errors.New("gateway: surface is nil")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return errors.New("gateway: intent id is required")
	}

	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNoPendingIntent
	}
	ch <- outcome
	return nil
}
