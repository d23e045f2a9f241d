package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/auth"
	"github.com/releves-ma/si-releves/internal/storage"
	"github.com/releves-ma/si-releves/internal/store"
)

const testTimeout = 10 * time.Minute

func newTestSession(t *testing.T) (*Session, storage.Backend) {
	t.Helper()
	backend := storage.NewMemory()
	st := store.New(backend, zap.NewNop(), 0)
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("store Init failed: %v", err)
	}
	j := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "si-releves", TTL: time.Hour}
	sess := New(backend, st, j, zap.NewNop(), testTimeout)
	if err := sess.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return sess, backend
}

func TestLogin_ValidCredentials(t *testing.T) {
	sess, backend := newTestSession(t)
	ctx := context.Background()

	au, err := sess.Login(ctx, "admin@ree.ma", "Admin123!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if au.ID != "u1" {
		t.Errorf("Expected user u1, got %s", au.ID)
	}
	if au.Token == "" {
		t.Error("Expected a session token")
	}

	cur := sess.CurrentUser()
	if cur == nil || cur.ID != "u1" {
		t.Error("Expected current user u1")
	}

	// Session must be mirrored to storage.
	if _, err := backend.Get(ctx, storage.KeyAuth); err != nil {
		t.Errorf("Expected persisted session, got %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := sess.Login(context.Background(), "admin@ree.ma", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if sess.CurrentUser() != nil {
		t.Error("Expected anonymous session after failed login")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := sess.Login(context.Background(), "ghost@ree.ma", "Admin123!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	sess, backend := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.Login(ctx, "user@ree.ma", "User123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := sess.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if sess.CurrentUser() != nil {
		t.Error("Expected anonymous session after logout")
	}
	if _, err := backend.Get(ctx, storage.KeyAuth); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected session removed from storage, got %v", err)
	}
}

func TestCheckInactivity_Boundary(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	sess.now = func() time.Time { return base }

	if _, err := sess.Login(ctx, "admin@ree.ma", "Admin123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Idle exactly the timeout: still logged in.
	sess.now = func() time.Time { return base.Add(testTimeout) }
	expired, err := sess.CheckInactivity(ctx)
	if err != nil {
		t.Fatalf("CheckInactivity failed: %v", err)
	}
	if expired {
		t.Error("Session must not expire at exactly the timeout")
	}
	if sess.CurrentUser() == nil {
		t.Fatal("Expected user still logged in")
	}

	// One second past the timeout: logged out.
	sess.now = func() time.Time { return base.Add(testTimeout + time.Second) }
	expired, err = sess.CheckInactivity(ctx)
	if err != nil {
		t.Fatalf("CheckInactivity failed: %v", err)
	}
	if !expired {
		t.Error("Expected session to expire past the timeout")
	}
	if sess.CurrentUser() != nil {
		t.Error("Expected anonymous session after expiry")
	}
}

func TestCheckInactivity_ActivityResetsTimer(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	sess.now = func() time.Time { return base }
	if _, err := sess.Login(ctx, "admin@ree.ma", "Admin123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	sess.now = func() time.Time { return base.Add(9 * time.Minute) }
	sess.UpdateActivity()

	sess.now = func() time.Time { return base.Add(15 * time.Minute) }
	expired, err := sess.CheckInactivity(ctx)
	if err != nil {
		t.Fatalf("CheckInactivity failed: %v", err)
	}
	if expired {
		t.Error("Expected activity to reset the idle timer")
	}
}

func TestCheckInactivity_AnonymousNeverExpires(t *testing.T) {
	sess, _ := newTestSession(t)

	expired, err := sess.CheckInactivity(context.Background())
	if err != nil {
		t.Fatalf("CheckInactivity failed: %v", err)
	}
	if expired {
		t.Error("Anonymous session must not expire")
	}
}

func TestInitialize_RestoresPersistedSession(t *testing.T) {
	sess, backend := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.Login(ctx, "admin@ree.ma", "Admin123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// A fresh session over the same backend restores the user.
	st := store.New(backend, zap.NewNop(), 0)
	if err := st.Init(ctx); err != nil {
		t.Fatalf("store Init failed: %v", err)
	}
	j := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "si-releves", TTL: time.Hour}
	restored := New(backend, st, j, zap.NewNop(), testTimeout)
	if err := restored.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	cur := restored.CurrentUser()
	if cur == nil || cur.ID != "u1" {
		t.Error("Expected restored session for u1")
	}
}

func TestInitialize_MalformedSessionStartsAnonymous(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	if err := backend.Set(ctx, storage.KeyAuth, []byte("{broken")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	st := store.New(backend, zap.NewNop(), 0)
	if err := st.Init(ctx); err != nil {
		t.Fatalf("store Init failed: %v", err)
	}
	j := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "si-releves", TTL: time.Hour}
	sess := New(backend, st, j, zap.NewNop(), testTimeout)
	if err := sess.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if sess.CurrentUser() != nil {
		t.Error("Expected anonymous session for malformed state")
	}
}

func TestChangePassword(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	if err := sess.ChangePassword(ctx, "Admin123!", "NewPass123!"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}

	if _, err := sess.Login(ctx, "admin@ree.ma", "Admin123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := sess.ChangePassword(ctx, "wrong", "NewPass123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if err := sess.ChangePassword(ctx, "Admin123!", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Expected ErrWeakPassword, got %v", err)
	}
	if err := sess.ChangePassword(ctx, "Admin123!", "NewPass123!"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Old password no longer works, the new one does.
	if _, err := sess.Login(ctx, "admin@ree.ma", "Admin123!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected old password rejected, got %v", err)
	}
	if _, err := sess.Login(ctx, "admin@ree.ma", "NewPass123!"); err != nil {
		t.Errorf("Expected new password accepted, got %v", err)
	}
}
