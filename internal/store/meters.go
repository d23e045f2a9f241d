package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/storage"
)

// addressByID resolves an address without taking the lock; callers hold it.
func (s *Store) addressByID(id string) *model.Address {
	for i := range s.addresses {
		if s.addresses[i].ID == id {
			return &s.addresses[i]
		}
	}
	return nil
}

// meterDistrictID resolves the district of a meter through its address.
// Called with the lock held.
func (s *Store) meterDistrictID(m *model.Meter) string {
	if a := s.addressByID(m.AddressID); a != nil {
		return a.DistrictID
	}
	return ""
}

func copyMeter(m model.Meter) model.Meter {
	if m.LastReadingDate != nil {
		d := *m.LastReadingDate
		m.LastReadingDate = &d
	}
	return m
}

// ListMeters returns copies of all meters matching the filters. The district
// filter goes through the meter's address.
func (s *Store) ListMeters(ctx context.Context, f model.MeterFilters) ([]model.Meter, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Meter, 0, len(s.meters))
	for i := range s.meters {
		m := &s.meters[i]
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.DistrictID != "" && s.meterDistrictID(m) != f.DistrictID {
			continue
		}
		if f.Search != "" && !strings.Contains(m.Identifier, f.Search) {
			continue
		}
		out = append(out, copyMeter(*m))
	}
	return out, nil
}

// GetMeter returns the meter or nil when the id is unknown.
func (s *Store) GetMeter(ctx context.Context, id string) (*model.Meter, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.meters {
		if s.meters[i].ID == id {
			out := copyMeter(s.meters[i])
			return &out, nil
		}
	}
	return nil, nil
}

// GetMeterByIdentifier returns the meter with the given 9-digit identifier,
// or nil. Used by the reading ingest path, which only knows identifiers.
func (s *Store) GetMeterByIdentifier(ctx context.Context, identifier string) (*model.Meter, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.meters {
		if s.meters[i].Identifier == identifier {
			out := copyMeter(s.meters[i])
			return &out, nil
		}
	}
	return nil, nil
}

// CreateMeter installs a new meter of the given type at an existing address.
// The identifier is the next sequential zero-padded 9-digit number.
func (s *Store) CreateMeter(ctx context.Context, mt model.MeterType, addressID string) (model.Meter, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.Meter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := s.addressByID(addressID)
	if addr == nil {
		return model.Meter{}, ErrAddressNotFound
	}

	m := model.Meter{
		ID:           s.nextID("m"),
		Identifier:   fmt.Sprintf("%09d", len(s.meters)+1),
		Type:         mt,
		AddressID:    addr.ID,
		ClientID:     addr.ClientID,
		CurrentIndex: 0,
		CreatedAt:    time.Now().UTC(),
	}
	s.meters = append(s.meters, m)
	if err := persistTable(ctx, s, storage.KeyMeters, s.meters); err != nil {
		return model.Meter{}, err
	}
	return copyMeter(m), nil
}

// EligibleAddresses lists addresses that do not yet have a meter of the given
// type, optionally narrowed by district and a street/number search.
func (s *Store) EligibleAddresses(ctx context.Context, mt model.MeterType, districtID, search string) ([]model.Address, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	equipped := make(map[string]bool, len(s.meters))
	for i := range s.meters {
		if s.meters[i].Type == mt {
			equipped[s.meters[i].AddressID] = true
		}
	}

	out := make([]model.Address, 0)
	for _, a := range s.addresses {
		if equipped[a.ID] {
			continue
		}
		if districtID != "" && a.DistrictID != districtID {
			continue
		}
		if search != "" && !containsFold(a.Street, search) && !strings.Contains(a.Number, search) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MeterHistory returns the most recent readings of a meter, newest first.
// limit defaults to 10 when not positive.
func (s *Store) MeterHistory(ctx context.Context, meterID string, limit int) ([]model.Reading, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Reading, 0, limit)
	for _, r := range s.readings {
		if r.MeterID != meterID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListReadings returns copies of all readings matching the filters. Date is a
// prefix match on the RFC3339 form, so "2025-08" selects a month and
// "2025-08-31" a day.
func (s *Store) ListReadings(ctx context.Context, f model.ReadingFilters) ([]model.Reading, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	meterByID := make(map[string]*model.Meter, len(s.meters))
	for i := range s.meters {
		meterByID[s.meters[i].ID] = &s.meters[i]
	}

	out := make([]model.Reading, 0, len(s.readings))
	for _, r := range s.readings {
		if f.Date != "" && !hasDatePrefix(r.Date, f.Date) {
			continue
		}
		if f.AgentID != "" && r.AgentID != f.AgentID {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		m := meterByID[r.MeterID]
		if f.DistrictID != "" && (m == nil || s.meterDistrictID(m) != f.DistrictID) {
			continue
		}
		if f.ClientID != "" && (m == nil || m.ClientID != f.ClientID) {
			continue
		}
		if f.Search != "" && (m == nil || !strings.Contains(m.Identifier, f.Search)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// GetReading returns the reading or nil when the id is unknown.
func (s *Store) GetReading(ctx context.Context, id string) (*model.Reading, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings {
		if r.ID == id {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

// AppendReadingInput carries one index capture to record.
type AppendReadingInput struct {
	MeterID  string
	AgentID  string
	Date     time.Time
	NewIndex int
	Notes    string
}

// AppendReading records a capture against a meter. The old index is the
// meter's current one, so consumption is always the index delta. The meter's
// current index and last reading date advance when the capture is the newest.
func (s *Store) AppendReading(ctx context.Context, in AppendReadingInput) (model.Reading, error) {
	if err := s.simulateLatency(ctx); err != nil {
		return model.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var agent *model.Agent
	for i := range s.agents {
		if s.agents[i].ID == in.AgentID {
			agent = &s.agents[i]
			break
		}
	}
	if agent == nil {
		return model.Reading{}, ErrAgentNotFound
	}

	var meter *model.Meter
	for i := range s.meters {
		if s.meters[i].ID == in.MeterID {
			meter = &s.meters[i]
			break
		}
	}
	if meter == nil {
		return model.Reading{}, ErrMeterNotFound
	}
	if in.NewIndex < meter.CurrentIndex {
		return model.Reading{}, fmt.Errorf("%w: meter %s at %d, got %d", ErrIndexRegression, meter.Identifier, meter.CurrentIndex, in.NewIndex)
	}

	r := model.Reading{
		ID:          s.nextID("r"),
		MeterID:     meter.ID,
		AgentID:     agent.ID,
		Date:        in.Date.UTC(),
		OldIndex:    meter.CurrentIndex,
		NewIndex:    in.NewIndex,
		Consumption: in.NewIndex - meter.CurrentIndex,
		Type:        meter.Type,
		Notes:       in.Notes,
	}

	// The table stays sorted newest first, so backdated captures are
	// inserted at their date position rather than at the head.
	idx := sort.Search(len(s.readings), func(i int) bool {
		return s.readings[i].Date.Before(r.Date)
	})
	s.readings = append(s.readings, model.Reading{})
	copy(s.readings[idx+1:], s.readings[idx:])
	s.readings[idx] = r

	if meter.LastReadingDate == nil || meter.LastReadingDate.Before(r.Date) {
		d := r.Date
		meter.LastReadingDate = &d
	}
	meter.CurrentIndex = r.NewIndex

	if err := persistTable(ctx, s, storage.KeyReadings, s.readings); err != nil {
		return model.Reading{}, err
	}
	if err := persistTable(ctx, s, storage.KeyMeters, s.meters); err != nil {
		return model.Reading{}, err
	}
	return r, nil
}
