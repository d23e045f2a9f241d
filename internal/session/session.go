// Package session tracks the authenticated back-office user. State lives in
// memory and is mirrored to durable storage so a restart restores the
// session. A background watcher expires sessions after a period of
// inactivity.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/auth"
	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/storage"
	"github.com/releves-ma/si-releves/internal/store"
)

var (
	// ErrInvalidCredentials is returned for a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthenticated is returned by operations that require a logged-in
	// user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrWeakPassword is returned when a new password is shorter than eight
	// characters.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

// Session is the single-user session store.
type Session struct {
	backend storage.Backend
	store   *store.Store
	jwt     *auth.JWTer
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu           sync.Mutex
	initialized  bool
	creds        []model.Credential
	current      *model.AuthUser
	lastActivity time.Time
}

// New creates a Session expiring after timeout of inactivity.
func New(backend storage.Backend, st *store.Store, jwt *auth.JWTer, logger *zap.Logger, timeout time.Duration) *Session {
	return &Session{
		backend: backend,
		store:   st,
		jwt:     jwt,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Initialize loads the credential list and restores a persisted session if
// one exists and its token still verifies. Calling it again is a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	s.creds = s.store.Credentials()

	b, err := s.backend.Get(ctx, storage.KeyAuth)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if err == nil {
		var u model.AuthUser
		if uerr := json.Unmarshal(b, &u); uerr != nil {
			s.logger.Warn("malformed session in storage, starting anonymous")
		} else if _, perr := s.jwt.Parse(u.Token); perr != nil {
			s.logger.Info("persisted session token no longer valid, starting anonymous")
		} else {
			s.current = &u
			s.lastActivity = s.now()
			s.logger.Info("session restored", zap.String("user_id", u.ID))
		}
	}

	s.initialized = true
	return nil
}

// Login checks the credentials, issues a token and persists the session.
func (s *Session) Login(ctx context.Context, email, password string) (model.AuthUser, error) {
	s.mu.Lock()
	var userID string
	for _, c := range s.creds {
		if c.Email == email && c.Password == password {
			userID = c.UserID
			break
		}
	}
	s.mu.Unlock()
	if userID == "" {
		return model.AuthUser{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	if user == nil {
		return model.AuthUser{}, ErrInvalidCredentials
	}

	token, err := s.jwt.Issue(user.ID, user.Role)
	if err != nil {
		return model.AuthUser{}, err
	}
	au := model.AuthUser{User: *user, Token: token}

	buf, err := json.Marshal(au)
	if err != nil {
		return model.AuthUser{}, err
	}
	if err := s.backend.Set(ctx, storage.KeyAuth, buf); err != nil {
		return model.AuthUser{}, err
	}

	s.mu.Lock()
	s.current = &au
	s.lastActivity = s.now()
	s.mu.Unlock()

	s.logger.Info("user logged in", zap.String("user_id", au.ID), zap.String("role", string(au.Role)))
	return au, nil
}

// Logout clears the session in memory and in storage. Logging out while
// anonymous is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	was := s.current
	s.current = nil
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, storage.KeyAuth); err != nil {
		return err
	}
	if was != nil {
		s.logger.Info("user logged out", zap.String("user_id", was.ID))
	}
	return nil
}

// CurrentUser returns a copy of the logged-in user, or nil when anonymous.
func (s *Session) CurrentUser() *model.AuthUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	out := *s.current
	return &out
}

// UpdateActivity marks the session as active now. Called on every
// authenticated request.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.lastActivity = s.now()
	}
}

// CheckInactivity logs the user out when the idle timeout has been exceeded
// and reports whether it did. Idle time equal to the timeout does not expire
// the session; it has to be exceeded. Anonymous sessions never expire.
func (s *Session) CheckInactivity(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.current == nil || s.now().Sub(s.lastActivity) <= s.timeout {
		s.mu.Unlock()
		return false, nil
	}
	userID := s.current.ID
	s.mu.Unlock()

	s.logger.Info("session expired after inactivity", zap.String("user_id", userID), zap.Duration("timeout", s.timeout))
	if err := s.Logout(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ChangePassword verifies the current password of the logged-in user and
// replaces it in the in-memory credential list. The list is not durable; a
// restart restores the seed passwords.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	if len(next) < 8 {
		return ErrWeakPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotAuthenticated
	}
	for i := range s.creds {
		if s.creds[i].UserID != s.current.ID {
			continue
		}
		if s.creds[i].Password != current {
			return ErrInvalidCredentials
		}
		s.creds[i].Password = next
		s.logger.Info("password changed", zap.String("user_id", s.current.ID))
		return nil
	}
	return ErrInvalidCredentials
}
