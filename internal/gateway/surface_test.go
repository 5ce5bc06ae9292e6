package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/bridal-dreams/storefront/internal/domain"
)

func TestPresentDeliversResolvedOutcome(t *testing.T) {
	surface := NewCallbackSurface()
	done := make(chan struct{})
	var (
		outcome domain.PaymentOutcome
		err     error
	)
	go func() {
		defer close(done)
		outcome, err = surface.Present(context.Background(), domain.PaymentIntent{ID: "order_1"}, domain.PaymentPrefill{})
	}()

	// Wait for the registration before resolving.
	deadline := time.After(time.Second)
	for {
		if resolveErr := surface.Resolve("order_1", domain.PaymentOutcome{Status: domain.OutcomeSucceeded, PaymentID: "pay_1"}); resolveErr == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("intent never registered")
		case <-time.After(time.Millisecond):
		}
	}

	<-done
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if outcome.Status != domain.OutcomeSucceeded || outcome.PaymentID != "pay_1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestResolveWithoutPendingIntent(t *testing.T) {
	surface := NewCallbackSurface()
	err := surface.Resolve("order_missing", domain.PaymentOutcome{Status: domain.OutcomeSucceeded})
	if !errors.Is(err, ErrNoPendingIntent) {
		t.Fatalf("expected ErrNoPendingIntent, got %v", err)
	}
}

func TestResolveFirstDeliveryWins(t *testing.T) {
	surface := NewCallbackSurface()
	done := make(chan domain.PaymentOutcome, 1)
	go func() {
		outcome, _ := surface.Present(context.Background(), domain.PaymentIntent{ID: "order_1"}, domain.PaymentPrefill{})
		done <- outcome
	}()

	deadline := time.After(time.Second)
	for {
		if err := surface.Resolve("order_1", domain.PaymentOutcome{Status: domain.OutcomeSucceeded, PaymentID: "pay_first"}); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("intent never registered")
		case <-time.After(time.Millisecond):
		}
	}

	// The replayed callback is ignored.
	if err := surface.Resolve("order_1", domain.PaymentOutcome{Status: domain.OutcomeFailed, PaymentID: "pay_replay"}); !errors.Is(err, ErrNoPendingIntent) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}

	outcome := <-done
	if outcome.PaymentID != "pay_first" {
		t.Fatalf("first delivery must win, got %+v", outcome)
	}
}

func TestPresentCancelledContextYieldsCancelledOutcome(t *testing.T) {
	surface := NewCallbackSurface()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := surface.Present(ctx, domain.PaymentIntent{ID: "order_1"}, domain.PaymentPrefill{})
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if outcome.Status != domain.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", outcome)
	}

	// The abandoned intent is no longer pending.
	if resolveErr := surface.Resolve("order_1", domain.PaymentOutcome{Status: domain.OutcomeSucceeded}); !errors.Is(resolveErr, ErrNoPendingIntent) {
		t.Fatalf("expected no pending intent after abandonment, got %v", resolveErr)
	}
}

func TestPresentRejectsDuplicateIntent(t *testing.T) {
	surface := NewCallbackSurface()
	release := make(chan struct{})
	registered := make(chan struct{})
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-release
			cancel()
		}()
		close(registered)
		_, _ = surface.Present(ctx, domain.PaymentIntent{ID: "order_1"}, domain.PaymentPrefill{})
	}()
	<-registered
	time.Sleep(50 * time.Millisecond)

	dupCtx, dupCancel := context.WithTimeout(context.Background(), time.Second)
	defer dupCancel()
	_, err := surface.Present(dupCtx, domain.PaymentIntent{ID: "order_1"}, domain.PaymentPrefill{})
	if err == nil {
		t.Fatalf("expected duplicate presentation to fail")
	}
	close(release)
}
