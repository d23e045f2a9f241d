package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/storage"
	"github.com/releves-ma/si-releves/internal/store"
)

// newEmptyReadingsStore seeds everything except readings.
func newEmptyReadingsStore(t *testing.T) *store.Store {
	t.Helper()
	backend := storage.NewMemory()
	ctx := context.Background()
	if err := backend.Set(ctx, storage.KeyReadings, []byte("[]")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	st := store.New(backend, zap.NewNop(), 0)
	if err := st.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return st
}

func TestStats(t *testing.T) {
	st, _ := newTestStore(t)

	stats, err := st.Stats(context.Background(), "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalMeters == 0 {
		t.Fatal("Expected seeded meters")
	}
	if stats.MetersRead == 0 {
		t.Error("Expected some meters read in the recent window")
	}
	if stats.MetersRead > stats.TotalMeters {
		t.Errorf("MetersRead %d exceeds TotalMeters %d", stats.MetersRead, stats.TotalMeters)
	}
	if stats.CoverageRate < 0 || stats.CoverageRate > 100 {
		t.Errorf("Coverage rate out of range: %f", stats.CoverageRate)
	}
	if stats.AvgWaterConsumption <= 0 {
		t.Errorf("Expected positive water average, got %f", stats.AvgWaterConsumption)
	}
	if stats.AvgElectricityConsumption <= 0 {
		t.Errorf("Expected positive electricity average, got %f", stats.AvgElectricityConsumption)
	}
}

func TestStats_DistrictFilter(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	all, err := st.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	d1, err := st.Stats(ctx, "d1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if d1.TotalMeters >= all.TotalMeters {
		t.Errorf("Expected district subset, got %d of %d", d1.TotalMeters, all.TotalMeters)
	}
	if d1.TotalMeters == 0 {
		t.Error("Expected meters in district d1")
	}
}

func TestStats_NoReadings(t *testing.T) {
	st := newEmptyReadingsStore(t)

	stats, err := st.Stats(context.Background(), "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.MetersRead != 0 {
		t.Errorf("Expected 0 meters read, got %d", stats.MetersRead)
	}
	if stats.CoverageRate != 0 {
		t.Errorf("Expected coverage 0, got %f", stats.CoverageRate)
	}
	if stats.AvgWaterConsumption != 0 || stats.AvgElectricityConsumption != 0 {
		t.Error("Expected zero averages without readings")
	}
}

func TestConsumptionTrends_SixMonths(t *testing.T) {
	st, _ := newTestStore(t)

	trends, err := st.ConsumptionTrends(context.Background())
	if err != nil {
		t.Fatalf("ConsumptionTrends failed: %v", err)
	}
	if len(trends) != 6 {
		t.Fatalf("Expected 6 months, got %d", len(trends))
	}
	for _, tr := range trends {
		if tr.Month == "" {
			t.Error("Expected month label")
		}
		if tr.Water < 0 || tr.Electricity < 0 {
			t.Errorf("Negative totals in %s", tr.Month)
		}
	}
	// Seed readings cover the trailing 90 days, so the latest month has data.
	last := trends[len(trends)-1]
	if last.Water == 0 && last.Electricity == 0 {
		t.Error("Expected consumption in the current month")
	}
}

func TestConsumptionTrends_ZeroFill(t *testing.T) {
	st := newEmptyReadingsStore(t)

	trends, err := st.ConsumptionTrends(context.Background())
	if err != nil {
		t.Fatalf("ConsumptionTrends failed: %v", err)
	}
	if len(trends) != 6 {
		t.Fatalf("Expected 6 months, got %d", len(trends))
	}
	for _, tr := range trends {
		if tr.Water != 0 || tr.Electricity != 0 {
			t.Errorf("Expected zero month %s, got water=%d electricity=%d", tr.Month, tr.Water, tr.Electricity)
		}
	}
}

func TestReadingsPerAgent(t *testing.T) {
	st, _ := newTestStore(t)

	counts, err := st.ReadingsPerAgent(context.Background())
	if err != nil {
		t.Fatalf("ReadingsPerAgent failed: %v", err)
	}
	if len(counts) != 10 {
		t.Fatalf("Expected 10 agents, got %d", len(counts))
	}
	total := 0
	for _, c := range counts {
		if c.AgentName == "" {
			t.Errorf("Expected name for agent %s", c.AgentID)
		}
		total += c.ReadingsCount
	}
	if total != 320 {
		t.Errorf("Expected 320 readings across agents, got %d", total)
	}
	for i := 1; i < len(counts); i++ {
		if counts[i].ReadingsCount > counts[i-1].ReadingsCount {
			t.Errorf("Expected counts sorted descending, got %d after %d",
				counts[i].ReadingsCount, counts[i-1].ReadingsCount)
			break
		}
	}
}

func TestConsumptionTrends_AveragesPerType(t *testing.T) {
	st := newEmptyReadingsStore(t)
	ctx := context.Background()

	// Meter 000000001 is a water meter.
	meter, err := st.GetMeterByIdentifier(ctx, "000000001")
	if err != nil || meter == nil {
		t.Fatalf("seed meter lookup failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := st.AppendReading(ctx, store.AppendReadingInput{
		MeterID: meter.ID, AgentID: "a1", Date: now, NewIndex: meter.CurrentIndex + 10,
	}); err != nil {
		t.Fatalf("AppendReading failed: %v", err)
	}
	if _, err := st.AppendReading(ctx, store.AppendReadingInput{
		MeterID: meter.ID, AgentID: "a1", Date: now, NewIndex: meter.CurrentIndex + 30,
	}); err != nil {
		t.Fatalf("AppendReading failed: %v", err)
	}

	trends, err := st.ConsumptionTrends(ctx)
	if err != nil {
		t.Fatalf("ConsumptionTrends failed: %v", err)
	}
	current := trends[len(trends)-1]
	// Consumptions 10 and 20 must average to 15, not sum to 30.
	if current.Water != 15 {
		t.Errorf("Expected water average 15, got %d", current.Water)
	}
	if current.Electricity != 0 {
		t.Errorf("Expected electricity average 0, got %d", current.Electricity)
	}
}

func TestAgentPerformance_NinetyDays(t *testing.T) {
	st, _ := newTestStore(t)

	series, err := st.AgentPerformance(context.Background(), "a1")
	if err != nil {
		t.Fatalf("AgentPerformance failed: %v", err)
	}
	if len(series) != 90 {
		t.Fatalf("Expected 90 days, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if series[i].Date <= series[i-1].Date {
			t.Error("Expected series ordered oldest first")
			break
		}
	}
	total := 0
	for _, p := range series {
		if p.AgentID != "a1" {
			t.Errorf("Expected agent a1, got %s", p.AgentID)
		}
		total += p.ReadingsCount
	}
	if total == 0 {
		t.Error("Expected readings for a1 within 90 days")
	}
}

func TestAgentPerformance_UnknownAgent(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.AgentPerformance(context.Background(), "a999")
	if !errors.Is(err, store.ErrAgentNotFound) {
		t.Errorf("Expected ErrAgentNotFound, got %v", err)
	}
}

func TestSidebarPreference(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	if st.SidebarCollapsed(ctx) {
		t.Error("Expected expanded sidebar by default")
	}
	if err := st.SetSidebarCollapsed(ctx, true); err != nil {
		t.Fatalf("SetSidebarCollapsed failed: %v", err)
	}
	if !st.SidebarCollapsed(ctx) {
		t.Error("Expected collapsed sidebar after set")
	}
}
