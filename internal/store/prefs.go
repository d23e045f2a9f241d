package store

import (
	"context"
	"strconv"

	"github.com/releves-ma/si-releves/internal/storage"
)

// SidebarCollapsed reads the persisted sidebar preference. Absent or
// unparseable entries mean expanded. UI preference reads skip the simulated
// latency.
func (s *Store) SidebarCollapsed(ctx context.Context) bool {
	b, err := s.backend.Get(ctx, storage.KeySidebar)
	if err != nil {
		return false
	}
	collapsed, err := strconv.ParseBool(string(b))
	if err != nil {
		return false
	}
	return collapsed
}

// SetSidebarCollapsed persists the sidebar preference.
func (s *Store) SetSidebarCollapsed(ctx context.Context, collapsed bool) error {
	return s.backend.Set(ctx, storage.KeySidebar, []byte(strconv.FormatBool(collapsed)))
}
