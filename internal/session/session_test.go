package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/policy"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(tier int) *Session {
	return New("u-1", "agent@example.com", tier, policy.RequiredFactors(tier), t0, DefaultTTL)
}

func TestVerifiedStaysWithinRequired(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierSecret) // requires rotating code only
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.RecordFactor(ctx, s.ID, factor.Biometric, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordFactor: %v", err)
	}
	if got.Verified.Has(factor.Biometric) {
		t.Fatal("out-of-policy factor leaked into verified set")
	}
	if got.Complete() {
		t.Fatal("session complete without required factor")
	}

	got, err = store.RecordFactor(ctx, s.ID, factor.RotatingCode, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordFactor: %v", err)
	}
	if !got.Complete() {
		t.Fatal("session incomplete after verifying the required factor")
	}
}

func TestRecordFactorIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierTopSecret)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := store.RecordFactor(ctx, s.ID, factor.Biometric, t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("RecordFactor #%d: %v", i, err)
		}
		if len(got.Verified) != 1 {
			t.Fatalf("verified set grew past one entry: %v", got.Verified.Strings())
		}
		if got.Complete() {
			t.Fatal("top-secret session complete with one of two factors")
		}
	}
}

func TestEmptyRequiredNeverComplete(t *testing.T) {
	s := New("u-1", "agent@example.com", policy.TierPublic, factor.NewSet(), t0, DefaultTTL)
	if s.Complete() {
		t.Fatal("session with no required factors reported complete")
	}
}

func TestExpiryIsAbsolute(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierConfidential)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Last instant inside the window still works.
	if _, err := store.RecordFactor(ctx, s.ID, factor.Biometric, t0.Add(DefaultTTL-time.Second)); err != nil {
		t.Fatalf("RecordFactor inside window: %v", err)
	}
	// The deadline itself is already expired.
	if _, err := store.RecordFactor(ctx, s.ID, factor.Biometric, t0.Add(DefaultTTL)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at deadline, got %v", err)
	}

	// Find still returns the expired session for callers that sweep lazily.
	if _, err := store.Find(ctx, s.ID); err != nil {
		t.Fatalf("Find after expiry: %v", err)
	}
}

func TestDeleteExpiredSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	live := newTestSession(policy.TierSecret)
	dead := New("u-2", "other@example.com", policy.TierSecret, policy.RequiredFactors(policy.TierSecret), t0.Add(-time.Hour), DefaultTTL)
	for _, s := range []*Session{live, dead} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := store.DeleteExpired(ctx, t0)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d sessions, want 1", n)
	}
	if _, err := store.Find(ctx, dead.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for swept session, got %v", err)
	}
	if _, err := store.Find(ctx, live.ID); err != nil {
		t.Fatalf("live session swept: %v", err)
	}
}

func TestRecordFactorAfterDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierSecret)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.RecordFactor(ctx, s.ID, factor.RotatingCode, t0.Add(time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConcurrentRecordFactor(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierTopSecret)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	kinds := []factor.Kind{factor.Biometric, factor.RotatingCode}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(k factor.Kind) {
			defer wg.Done()
			if _, err := store.RecordFactor(ctx, s.ID, k, t0.Add(time.Minute)); err != nil {
				t.Errorf("RecordFactor: %v", err)
			}
		}(kinds[i%len(kinds)])
	}
	wg.Wait()

	got, err := store.Find(ctx, s.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !got.Complete() {
		t.Fatalf("session incomplete after concurrent verification: %v", got.Verified.Strings())
	}
	if len(got.Verified) != 2 {
		t.Fatalf("verified set has %d entries, want 2", len(got.Verified))
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	s := newTestSession(policy.TierTopSecret)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}

	snap, err := store.Find(ctx, s.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	snap.Verified.Add(factor.Biometric)

	again, err := store.Find(ctx, s.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(again.Verified) != 0 {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}
