package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authcore/internal/config"
	rtdomain "authcore/internal/refreshtoken/domain"
	rtrepo "authcore/internal/refreshtoken/repository"
	"authcore/internal/security"
	userdomain "authcore/internal/user/domain"
)

type memDirectory struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byID:    make(map[string]*userdomain.User),
		byEmail: make(map[string]*userdomain.User),
	}
}

func (d *memDirectory) add(u *userdomain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.ID] = u
	d.byEmail[u.Email] = u
}

func (d *memDirectory) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byEmail[email], nil
}

func (d *memDirectory) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID[id], nil
}

// failingStore rejects every Save; lookups and deletes delegate to the wrapped store.
type failingStore struct {
	*rtrepo.MemoryRepository
}

func (s *failingStore) Save(ctx context.Context, rec *rtdomain.Record) error {
	return errors.New("store unavailable")
}

type fixture struct {
	auth  *Authenticator
	dir   *memDirectory
	store *rtrepo.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher := security.NewHasher(1000)
	signer, err := security.NewTokenSigner("test-secret", "authcore-test")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	f := &fixture{dir: newMemDirectory(), store: rtrepo.NewMemoryRepository()}

	hash, err := hasher.Hash([]byte("secret"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	f.dir.add(&userdomain.User{
		ID:           "user-1",
		Email:        "u1",
		Role:         "member",
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
	})

	auth, err := NewAuthenticator(
		f.dir, f.store, hasher, signer,
		time.Hour, 168*time.Hour,
		config.PersistAwait, false, nil, nil,
	)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	f.auth = auth
	return f
}

func TestAuthenticate_UnknownUsername(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Authenticate(context.Background(), "ghost", "x")
	if !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("Authenticate unknown user: want ErrInvalidUsername, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d records after failed lookup, want 0", f.store.Len())
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Authenticate(context.Background(), "u1", "wrong")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("Authenticate wrong password: want ErrInvalidPassword, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Errorf("store has %d records after failed credential check, want 0", f.store.Len())
	}
}

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.auth.now = func() time.Time { return issuedAt }

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", res.UserID, "user-1")
	}
	if res.AccessToken == "" {
		t.Fatal("access token empty")
	}
	if !res.IssuedAt.Equal(issuedAt) {
		t.Errorf("IssuedAt = %v, want %v", res.IssuedAt, issuedAt)
	}
	if got := res.ExpiresAt.Sub(res.IssuedAt); got != time.Hour {
		t.Errorf("expires-at - issued-at = %v, want configured 1h", got)
	}
	if !res.RefreshRecord.ExpiresAt.After(res.ExpiresAt) {
		t.Errorf("refresh expiry %v not strictly after access expiry %v",
			res.RefreshRecord.ExpiresAt, res.ExpiresAt)
	}
	if !res.RefreshRecord.Persisted {
		t.Error("refresh record not marked persisted in await mode")
	}

	stored, err := f.store.GetByID(context.Background(), res.RefreshRecord.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored == nil {
		t.Fatal("refresh record not in store after issuance")
	}
	if !security.RefreshTokenHashEqual(res.RefreshToken, stored.TokenHash) {
		t.Error("stored hash does not match issued refresh token")
	}
}

func TestAuthenticate_UniqueRecordIDs(t *testing.T) {
	f := newFixture(t)
	seen := make(map[string]bool)

	for i := 0; i < 20; i++ {
		res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
		if err != nil {
			t.Fatalf("Authenticate #%d: %v", i, err)
		}
		if seen[res.RefreshRecord.ID] {
			t.Fatalf("record id %q reused on issuance #%d", res.RefreshRecord.ID, i)
		}
		seen[res.RefreshRecord.ID] = true
	}
}

func TestAuthenticate_ConcurrentSameUser(t *testing.T) {
	f := newFixture(t)

	const n = 8
	results := make([]*TokenIssuanceResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
			if err != nil {
				t.Errorf("Authenticate: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	tokens := make(map[string]bool)
	for _, res := range results {
		if res == nil {
			t.Fatal("missing result")
		}
		if ids[res.RefreshRecord.ID] {
			t.Errorf("duplicate record id %q across concurrent issuances", res.RefreshRecord.ID)
		}
		if tokens[res.RefreshToken] {
			t.Error("duplicate refresh token string across concurrent issuances")
		}
		ids[res.RefreshRecord.ID] = true
		tokens[res.RefreshToken] = true
	}
	if f.store.Len() != n {
		t.Errorf("store has %d records, want %d", f.store.Len(), n)
	}
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.dir.byEmail["u1"].Status = userdomain.UserStatusDisabled

	// Status gate off by default: disabled accounts still authenticate.
	if _, err := f.auth.Authenticate(context.Background(), "u1", "secret"); err != nil {
		t.Fatalf("Authenticate with gate off: %v", err)
	}

	f.auth.enforceStatus = true
	_, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("Authenticate with gate on: want ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticate_AwaitPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.auth.store = &failingStore{f.store}

	_, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Authenticate with failing store: want ErrPersistence, got %v", err)
	}
}

func TestAuthenticate_DetachedPersistence(t *testing.T) {
	f := newFixture(t)
	f.auth.persistMode = config.PersistDetach

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.RefreshRecord.Persisted {
		t.Error("detached record marked persisted before write completed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := f.store.GetByID(context.Background(), res.RefreshRecord.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if rec != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("detached save never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuthenticate_DetachedPersistenceFailureNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.auth.persistMode = config.PersistDetach
	f.auth.store = &failingStore{f.store}

	if _, err := f.auth.Authenticate(context.Background(), "u1", "secret"); err != nil {
		t.Fatalf("Authenticate: detached store failure surfaced to caller: %v", err)
	}
}

func TestRefresh_RotatesRecord(t *testing.T) {
	f := newFixture(t)

	first, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	second, err := f.auth.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshRecord.ID == first.RefreshRecord.ID {
		t.Error("rotation reused the record id")
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("rotation reused the refresh token string")
	}

	old, err := f.store.GetByID(context.Background(), first.RefreshRecord.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if old != nil {
		t.Error("rotated-out record still present in store")
	}

	// The retired token can no longer be used.
	if _, err := f.auth.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh with retired token: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	f := newFixture(t)
	if _, err := f.auth.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh garbage: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RejectsUnknownRecord(t *testing.T) {
	f := newFixture(t)

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.store.DeleteByID(context.Background(), res.RefreshRecord.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}

	if _, err := f.auth.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh without record: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RejectsStoredHashMismatch(t *testing.T) {
	f := newFixture(t)

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	tampered := *res.RefreshRecord
	tampered.TokenHash = security.HashRefreshToken("something-else")
	if err := f.store.Save(context.Background(), &tampered); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := f.auth.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh with mismatched stored hash: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RejectsVanishedUser(t *testing.T) {
	f := newFixture(t)

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	f.dir.mu.Lock()
	delete(f.dir.byID, "user-1")
	f.dir.mu.Unlock()

	if _, err := f.auth.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh for vanished user: want ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)

	res, err := f.auth.Authenticate(context.Background(), "u1", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.auth.Revoke(context.Background(), res.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if rec, _ := f.store.GetByID(context.Background(), res.RefreshRecord.ID); rec != nil {
		t.Error("record still present after Revoke")
	}

	// Unparsable tokens revoke nothing and report nothing.
	if err := f.auth.Revoke(context.Background(), "garbage"); err != nil {
		t.Errorf("Revoke garbage: %v", err)
	}
}
