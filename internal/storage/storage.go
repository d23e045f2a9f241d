// Package storage provides the durable key-value mirror behind the data and
// session stores. Each mutable table is persisted as one JSON blob under a
// fixed key, alongside the serialized session and UI preference entries.
package storage

import (
	"context"
	"errors"
)

// Storage keys. Fixed string constants shared by every backend.
const (
	KeyUsers    = "si_releves_users"
	KeyAgents   = "si_releves_agents"
	KeyMeters   = "si_releves_meters"
	KeyReadings = "si_releves_readings"
	KeyAuth     = "si_releves_auth"
	KeySidebar  = "si_releves_sidebar_collapsed"
)

// ErrNotFound is returned by Get when the key has no entry.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a durable key-value store. Implementations must treat Set as a
// full overwrite of the entry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
