// Package store holds the entity tables of the meter-reading operation in
// memory and mirrors every mutation to durable key-value storage. It stands
// in for the remote billing backend: all list operations are linear scans
// over the current snapshot and every call waits a configurable simulated
// latency before touching the tables.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/seed"
	"github.com/releves-ma/si-releves/internal/storage"
)

var (
	// ErrAddressNotFound is returned when a meter is created against an
	// unknown address.
	ErrAddressNotFound = errors.New("address not found")

	// ErrMeterNotFound is returned by the reading append path for an
	// unknown meter.
	ErrMeterNotFound = errors.New("meter not found")

	// ErrAgentNotFound is returned by the reading append path for an
	// unknown agent.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrIndexRegression is returned when an appended reading would move a
	// meter index backwards.
	ErrIndexRegression = errors.New("new index below current meter index")
)

// Store owns the entity tables. Users, agents, meters and readings are
// mutable and mirrored to storage after every change; districts, addresses
// and clients are immutable seed data.
type Store struct {
	backend storage.Backend
	logger  *zap.Logger
	latency time.Duration

	mu     sync.RWMutex
	lastID int64

	users    []model.User
	agents   []model.Agent
	meters   []model.Meter
	readings []model.Reading

	districts   []model.District
	addresses   []model.Address
	clients     []model.Client
	credentials []model.Credential
}

// New creates a Store bound to the given backend. latency is the simulated
// network delay applied to every operation; tests pass zero.
func New(backend storage.Backend, logger *zap.Logger, latency time.Duration) *Store {
	return &Store{backend: backend, logger: logger, latency: latency}
}

// Init loads the mutable tables from durable storage, reseeding any table
// that is absent or does not parse. Immutable reference tables always come
// from the seed. Safe to call once at startup.
func (s *Store) Init(ctx context.Context) error {
	data := seed.Build(time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.districts = data.Districts
	s.addresses = data.Addresses
	s.clients = data.Clients
	s.credentials = data.Credentials

	var err error
	if s.users, err = loadTable(ctx, s, storage.KeyUsers, data.Users); err != nil {
		return err
	}
	if s.agents, err = loadTable(ctx, s, storage.KeyAgents, data.Agents); err != nil {
		return err
	}
	if s.meters, err = loadTable(ctx, s, storage.KeyMeters, data.Meters); err != nil {
		return err
	}
	if s.readings, err = loadTable(ctx, s, storage.KeyReadings, data.Readings); err != nil {
		return err
	}

	s.logger.Info("store initialized",
		zap.Int("users", len(s.users)),
		zap.Int("agents", len(s.agents)),
		zap.Int("meters", len(s.meters)),
		zap.Int("readings", len(s.readings)),
	)
	return nil
}

// loadTable returns the stored table under key, or persists and returns the
// default rows when the entry is missing or malformed. Malformed entries are
// never surfaced as errors.
func loadTable[T any](ctx context.Context, s *Store, key string, def []T) ([]T, error) {
	b, err := s.backend.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load table %q: %w", key, err)
	}
	if err == nil {
		var rows []T
		if uerr := json.Unmarshal(b, &rows); uerr == nil {
			return rows, nil
		}
		s.logger.Warn("malformed table in storage, reseeding", zap.String("key", key))
	}
	buf, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seed table %q: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, buf); err != nil {
		return nil, fmt.Errorf("failed to persist seed table %q: %w", key, err)
	}
	return def, nil
}

// persistTable mirrors the whole table to storage. Called with the write
// lock held.
func persistTable[T any](ctx context.Context, s *Store, key string, rows []T) error {
	buf, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal table %q: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, buf); err != nil {
		return fmt.Errorf("failed to persist table %q: %w", key, err)
	}
	return nil
}

// simulateLatency blocks for the configured artificial delay, honoring
// context cancellation. Carries no ordering guarantee between callers.
func (s *Store) simulateLatency(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextID issues a process-unique id derived from the current time, bumped
// when two ids land on the same millisecond. Called with the write lock held.
func (s *Store) nextID(prefix string) string {
	ms := time.Now().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return prefix + strconv.FormatInt(ms, 10)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// hasDatePrefix reports whether the RFC3339 rendering of t starts with
// prefix, e.g. "2025-08" or "2025-08-31".
func hasDatePrefix(t time.Time, prefix string) bool {
	return strings.HasPrefix(t.UTC().Format(time.RFC3339), prefix)
}

// Credentials returns a copy of the seed credential list.
func (s *Store) Credentials() []model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Credential, len(s.credentials))
	copy(out, s.credentials)
	return out
}

// ---- Users ----

// CreateUserInput carries the caller-supplied fields of a new user.
type CreateUserInput struct {
	Email     string         `json:"email"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Role      model.UserRole `json:"role"`
}

// UserPatch is a partial user update; nil fields are left untouched.
type UserPatch struct {
	Email     *string         `json:"email"`
	FirstName *string         `json:"firstName"`
	LastName  *string         `json:"lastName"`
	Role      *model.UserRole `json:"role"`
}

// ListUsers returns copies of all users matching the filters.
func (s *Store) ListUsers(ctx context.Context, f model.UserFilters) ([]model.User, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Search != "" &&
			!containsFold(u.FirstName, f.Search) &&
			!containsFold(u.LastName, f.Search) &&
			!containsFold(u.Email, f.Search) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// GetUser returns the user or nil when the id is unknown. A miss is not an
// error.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// CreateUser appends a new user and mirrors the table.
func (s *Store) CreateUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	u := model.User{
		ID:        s.nextID("u"),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users = append(s.users, u)
	if err := persistTable(ctx, s, storage.KeyUsers, s.users); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// UpdateUser merges the patch into the user, refreshes updatedAt and mirrors
// the table. Returns nil (and leaves the table unchanged) for an unknown id.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch) (*model.User, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID != id {
			continue
		}
		if patch.Email != nil {
			s.users[i].Email = *patch.Email
		}
		if patch.FirstName != nil {
			s.users[i].FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			s.users[i].LastName = *patch.LastName
		}
		if patch.Role != nil {
			s.users[i].Role = *patch.Role
		}
		s.users[i].UpdatedAt = time.Now().UTC()
		if err := persistTable(ctx, s, storage.KeyUsers, s.users); err != nil {
			return nil, err
		}
		out := s.users[i]
		return &out, nil
	}
	return nil, nil
}

const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789!@#$"

// ResetPassword returns a freshly generated 12-character password. The mock
// has no password table, so nothing is stored.
func (s *Store) ResetPassword(ctx context.Context, id string) (string, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return "", err
	}
	b := make([]byte, 12)
	for i := range b {
		b[i] = passwordChars[rand.Intn(len(passwordChars))]
	}
	return string(b), nil
}

// ---- Agents ----

// ListAgents returns copies of all agents matching the filters.
func (s *Store) ListAgents(ctx context.Context, f model.AgentFilters) ([]model.Agent, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if f.DistrictID != "" && a.DistrictID != f.DistrictID {
			continue
		}
		if f.Search != "" &&
			!containsFold(a.FirstName, f.Search) &&
			!containsFold(a.LastName, f.Search) &&
			!strings.Contains(a.Phone, f.Search) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAgent returns the agent or nil when the id is unknown.
func (s *Store) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

// UpdateAgentDistrict reassigns an agent to a district. Returns nil for an
// unknown id.
func (s *Store) UpdateAgentDistrict(ctx context.Context, id, districtID string) (*model.Agent, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.agents {
		if s.agents[i].ID != id {
			continue
		}
		s.agents[i].DistrictID = districtID
		if err := persistTable(ctx, s, storage.KeyAgents, s.agents); err != nil {
			return nil, err
		}
		out := s.agents[i]
		return &out, nil
	}
	return nil, nil
}

// ---- Read-only reference tables ----

// Districts returns a copy of the district reference table.
func (s *Store) Districts(ctx context.Context) ([]model.District, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.District, len(s.districts))
	copy(out, s.districts)
	return out, nil
}

// Clients returns a copy of the client reference table.
func (s *Store) Clients(ctx context.Context) ([]model.Client, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Client, len(s.clients))
	copy(out, s.clients)
	return out, nil
}

// GetClient returns the client or nil when the id is unknown.
func (s *Store) GetClient(ctx context.Context, id string) (*model.Client, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

// Addresses returns a copy of the address reference table.
func (s *Store) Addresses(ctx context.Context) ([]model.Address, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Address, len(s.addresses))
	copy(out, s.addresses)
	return out, nil
}

// GetAddress returns the address or nil when the id is unknown.
func (s *Store) GetAddress(ctx context.Context, id string) (*model.Address, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.addresses {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}
