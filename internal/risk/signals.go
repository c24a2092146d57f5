package risk

import (
	"context"
	"time"

	"go-openclaw-autoapply/internal/models"
)

// SignalSource supplies the context signals the advisory model weighs.
type SignalSource interface {
	RecentActions(ctx context.Context, userID string, window time.Duration) (int, error)
	SessionAge(ctx context.Context, userID string, platform models.Platform) (time.Duration, error)
}

// SignalStore is the persistence the default SignalSource reads.
type SignalStore interface {
	CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	CredentialCreatedAt(ctx context.Context, userID string, platform models.Platform) (time.Time, error)
}

type StoreSignals struct {
	store SignalStore
	now   func() time.Time
}

func NewStoreSignals(store SignalStore, now func() time.Time) *StoreSignals {
	if now == nil {
		now = time.Now
	}
	return &StoreSignals{store: store, now: now}
}

func (s *StoreSignals) RecentActions(ctx context.Context, userID string, window time.Duration) (int, error) {
	if userID == "" {
		return 0, nil
	}
	return s.store.CountApplicationsSince(ctx, userID, s.now().Add(-window))
}

func (s *StoreSignals) SessionAge(ctx context.Context, userID string, platform models.Platform) (time.Duration, error) {
	created, err := s.store.CredentialCreatedAt(ctx, userID, platform)
	if err != nil {
		return -1, err
	}
	return s.now().Sub(created), nil
}
