package repository

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweeper_RemovesExpiredRecords(t *testing.T) {
	store := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Save(ctx, testRecord("old", "user-1", time.Minute)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, testRecord("fresh", "user-1", time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sweeper := NewSweeper(store, 5*time.Millisecond, nil)
	sweeper.now = func() time.Time { return time.Now().UTC().Add(30 * time.Minute) }
	go sweeper.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := store.GetByID(ctx, "old")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if rec == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired record never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fresh, err := store.GetByID(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fresh == nil {
		t.Error("unexpired record was swept")
	}
}

// erroringStore fails every DeleteExpired; the sweeper must keep ticking.
type erroringStore struct {
	*MemoryRepository
	calls chan struct{}
}

func (s *erroringStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	return 0, errors.New("store unavailable")
}

func TestSweeper_SurvivesStoreFailure(t *testing.T) {
	store := &erroringStore{NewMemoryRepository(), make(chan struct{}, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewSweeper(store, 5*time.Millisecond, nil).Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-store.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweeper stopped after %d failing sweeps", i)
		}
	}
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	store := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSweeper(store, time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
