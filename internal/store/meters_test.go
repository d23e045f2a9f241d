package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/store"
)

func TestSeedMeters_IdentifiersAreUniqueNineDigits(t *testing.T) {
	st, _ := newTestStore(t)

	meters, err := st.ListMeters(context.Background(), model.MeterFilters{})
	if err != nil {
		t.Fatalf("ListMeters failed: %v", err)
	}
	if len(meters) == 0 {
		t.Fatal("Expected seeded meters")
	}

	seen := make(map[string]bool, len(meters))
	for _, m := range meters {
		if len(m.Identifier) != 9 {
			t.Errorf("Expected 9-digit identifier, got %q", m.Identifier)
		}
		if seen[m.Identifier] {
			t.Errorf("Duplicate identifier %s", m.Identifier)
		}
		seen[m.Identifier] = true
	}
}

func TestSeedReadings_IndexInvariantHolds(t *testing.T) {
	st, _ := newTestStore(t)

	readings, err := st.ListReadings(context.Background(), model.ReadingFilters{})
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(readings) == 0 {
		t.Fatal("Expected seeded readings")
	}
	for _, r := range readings {
		if r.NewIndex-r.OldIndex != r.Consumption {
			t.Errorf("Reading %s: new-old=%d but consumption=%d", r.ID, r.NewIndex-r.OldIndex, r.Consumption)
		}
		if r.Consumption < 0 {
			t.Errorf("Reading %s: negative consumption %d", r.ID, r.Consumption)
		}
	}
}

func TestCreateMeter(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	before, _ := st.ListMeters(ctx, model.MeterFilters{})

	m, err := st.CreateMeter(ctx, model.MeterWater, "addr3")
	if err != nil {
		t.Fatalf("CreateMeter failed: %v", err)
	}
	if len(m.Identifier) != 9 {
		t.Errorf("Expected 9-digit identifier, got %q", m.Identifier)
	}
	for _, existing := range before {
		if existing.Identifier == m.Identifier {
			t.Errorf("New identifier %s collides with existing meter", m.Identifier)
		}
	}
	if m.CurrentIndex != 0 {
		t.Errorf("Expected new meter index 0, got %d", m.CurrentIndex)
	}
	if m.ClientID == "" {
		t.Error("Expected client inherited from address")
	}
}

func TestCreateMeter_UnknownAddress(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.CreateMeter(context.Background(), model.MeterWater, "addr999")
	if !errors.Is(err, store.ErrAddressNotFound) {
		t.Errorf("Expected ErrAddressNotFound, got %v", err)
	}
}

func TestEligibleAddresses_ExcludesEquippedAddresses(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	eligible, err := st.EligibleAddresses(ctx, model.MeterWater, "", "")
	if err != nil {
		t.Fatalf("EligibleAddresses failed: %v", err)
	}
	if len(eligible) == 0 {
		t.Fatal("Expected some addresses without a water meter")
	}

	target := eligible[0]
	if _, err := st.CreateMeter(ctx, model.MeterWater, target.ID); err != nil {
		t.Fatalf("CreateMeter failed: %v", err)
	}

	after, err := st.EligibleAddresses(ctx, model.MeterWater, "", "")
	if err != nil {
		t.Fatalf("EligibleAddresses failed: %v", err)
	}
	for _, a := range after {
		if a.ID == target.ID {
			t.Errorf("Address %s still eligible after meter installation", a.ID)
		}
	}
	if len(after) != len(eligible)-1 {
		t.Errorf("Expected %d eligible addresses, got %d", len(eligible)-1, len(after))
	}
}

func TestAppendReading(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	meter, err := st.GetMeterByIdentifier(ctx, "000000001")
	if err != nil {
		t.Fatalf("GetMeterByIdentifier failed: %v", err)
	}
	if meter == nil {
		t.Fatal("Expected seeded meter 000000001")
	}

	newIndex := meter.CurrentIndex + 42
	r, err := st.AppendReading(ctx, store.AppendReadingInput{
		MeterID:  meter.ID,
		AgentID:  "a1",
		Date:     time.Now().UTC(),
		NewIndex: newIndex,
	})
	if err != nil {
		t.Fatalf("AppendReading failed: %v", err)
	}
	if r.Consumption != 42 {
		t.Errorf("Expected consumption 42, got %d", r.Consumption)
	}
	if r.OldIndex != meter.CurrentIndex {
		t.Errorf("Expected old index %d, got %d", meter.CurrentIndex, r.OldIndex)
	}
	if r.Type != meter.Type {
		t.Errorf("Expected reading type %s, got %s", meter.Type, r.Type)
	}

	updated, err := st.GetMeter(ctx, meter.ID)
	if err != nil {
		t.Fatalf("GetMeter failed: %v", err)
	}
	if updated.CurrentIndex != newIndex {
		t.Errorf("Expected meter index %d, got %d", newIndex, updated.CurrentIndex)
	}
}

func TestAppendReading_IndexRegression(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	meter, err := st.GetMeterByIdentifier(ctx, "000000001")
	if err != nil || meter == nil {
		t.Fatalf("GetMeterByIdentifier failed: %v", err)
	}

	_, err = st.AppendReading(ctx, store.AppendReadingInput{
		MeterID:  meter.ID,
		AgentID:  "a1",
		Date:     time.Now().UTC(),
		NewIndex: meter.CurrentIndex - 1,
	})
	if !errors.Is(err, store.ErrIndexRegression) {
		t.Errorf("Expected ErrIndexRegression, got %v", err)
	}
}

func TestAppendReading_UnknownMeterAndAgent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	_, err := st.AppendReading(ctx, store.AppendReadingInput{
		MeterID: "m999999", AgentID: "a1", Date: time.Now(), NewIndex: 1,
	})
	if !errors.Is(err, store.ErrMeterNotFound) {
		t.Errorf("Expected ErrMeterNotFound, got %v", err)
	}

	meter, _ := st.GetMeterByIdentifier(ctx, "000000001")
	_, err = st.AppendReading(ctx, store.AppendReadingInput{
		MeterID: meter.ID, AgentID: "a999", Date: time.Now(), NewIndex: meter.CurrentIndex + 1,
	})
	if !errors.Is(err, store.ErrAgentNotFound) {
		t.Errorf("Expected ErrAgentNotFound, got %v", err)
	}
}

func TestAppendReading_BackdatedKeepsListOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	meter, _ := st.GetMeterByIdentifier(ctx, "000000001")

	backdated := time.Now().UTC().AddDate(0, 0, -30)
	r, err := st.AppendReading(ctx, store.AppendReadingInput{
		MeterID:  meter.ID,
		AgentID:  "a1",
		Date:     backdated,
		NewIndex: meter.CurrentIndex + 7,
	})
	if err != nil {
		t.Fatalf("AppendReading failed: %v", err)
	}

	readings, err := st.ListReadings(ctx, model.ReadingFilters{})
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if readings[0].ID == r.ID {
		t.Error("Expected backdated reading below newer readings, got it first")
	}
	for i := 1; i < len(readings); i++ {
		if readings[i].Date.After(readings[i-1].Date) {
			t.Errorf("Readings out of order: index %d (%s) is newer than index %d (%s)",
				i, readings[i].Date, i-1, readings[i-1].Date)
			break
		}
	}

	history, err := st.MeterHistory(ctx, meter.ID, 10)
	if err != nil {
		t.Fatalf("MeterHistory failed: %v", err)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Date.After(history[i-1].Date) {
			t.Error("Expected history sorted newest first after backdated append")
			break
		}
	}
}

func TestMeterHistory_LimitAndOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	meter, _ := st.GetMeterByIdentifier(ctx, "000000001")

	history, err := st.MeterHistory(ctx, meter.ID, 3)
	if err != nil {
		t.Fatalf("MeterHistory failed: %v", err)
	}
	if len(history) > 3 {
		t.Errorf("Expected at most 3 readings, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Date.After(history[i-1].Date) {
			t.Error("Expected history sorted newest first")
		}
	}
	for _, r := range history {
		if r.MeterID != meter.ID {
			t.Errorf("Expected readings of meter %s, got %s", meter.ID, r.MeterID)
		}
	}
}

func TestListReadings_Filters(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	byAgent, err := st.ListReadings(ctx, model.ReadingFilters{AgentID: "a1"})
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	if len(byAgent) == 0 {
		t.Fatal("Expected readings for agent a1")
	}
	for _, r := range byAgent {
		if r.AgentID != "a1" {
			t.Errorf("Expected agent a1, got %s", r.AgentID)
		}
	}

	water, err := st.ListReadings(ctx, model.ReadingFilters{Type: model.MeterWater})
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	for _, r := range water {
		if r.Type != model.MeterWater {
			t.Errorf("Expected WATER readings, got %s", r.Type)
		}
	}
}
