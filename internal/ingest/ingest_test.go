package ingest_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/anomaly"
	"github.com/releves-ma/si-releves/internal/ingest"
	"github.com/releves-ma/si-releves/internal/model"
	"github.com/releves-ma/si-releves/internal/storage"
	"github.com/releves-ma/si-releves/internal/store"
	"github.com/releves-ma/si-releves/internal/validator"
)

func newTestService(t *testing.T) (*ingest.Service, *store.Store) {
	t.Helper()
	st := store.New(storage.NewMemory(), zap.NewNop(), 0)
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("store Init failed: %v", err)
	}
	svc := ingest.NewService(
		st,
		nil, // no event publishing in tests
		anomaly.NewDetector(3.0, 3),
		validator.NewValidator(10080),
		"meter.reading.accepted",
		zap.NewNop(),
	)
	return svc, st
}

func marshal(t *testing.T, msg ingest.SubmissionMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return body
}

func TestProcessMessage_RecordsReading(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	meter, err := st.GetMeterByIdentifier(ctx, "000000001")
	if err != nil || meter == nil {
		t.Fatalf("seed meter lookup failed: %v", err)
	}

	now := time.Now().UTC()
	body := marshal(t, ingest.SubmissionMessage{
		RequestID:  "req-1",
		AgentID:    "a1",
		ReceivedAt: now,
		Readings: []ingest.ReadingData{
			{
				MeterIdentifier: meter.Identifier,
				Date:            now.Format(time.RFC3339),
				NewIndex:        meter.CurrentIndex + 12,
			},
		},
	})

	if err := svc.ProcessMessage(ctx, body); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	updated, err := st.GetMeter(ctx, meter.ID)
	if err != nil {
		t.Fatalf("GetMeter failed: %v", err)
	}
	if updated.CurrentIndex != meter.CurrentIndex+12 {
		t.Errorf("Expected meter index %d, got %d", meter.CurrentIndex+12, updated.CurrentIndex)
	}

	history, err := st.MeterHistory(ctx, meter.ID, 1)
	if err != nil {
		t.Fatalf("MeterHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatal("Expected a recorded reading")
	}
	if history[0].Consumption != 12 {
		t.Errorf("Expected consumption 12, got %d", history[0].Consumption)
	}
	if history[0].AgentID != "a1" {
		t.Errorf("Expected agent a1, got %s", history[0].AgentID)
	}
}

func TestProcessMessage_UnknownAgentFailsMessage(t *testing.T) {
	svc, _ := newTestService(t)

	now := time.Now().UTC()
	body := marshal(t, ingest.SubmissionMessage{
		RequestID:  "req-2",
		AgentID:    "a999",
		ReceivedAt: now,
		Readings: []ingest.ReadingData{
			{MeterIdentifier: "000000001", Date: now.Format(time.RFC3339), NewIndex: 999999},
		},
	})

	if err := svc.ProcessMessage(context.Background(), body); err == nil {
		t.Error("Expected error for unknown agent")
	}
}

func TestProcessMessage_MalformedBody(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.ProcessMessage(context.Background(), []byte("{broken")); err == nil {
		t.Error("Expected error for malformed body")
	}
}

func TestProcessMessage_InvalidCaptureIsSkipped(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	meter, _ := st.GetMeterByIdentifier(ctx, "000000001")
	before, _ := st.ListReadings(ctx, model.ReadingFilters{})

	now := time.Now().UTC()
	body := marshal(t, ingest.SubmissionMessage{
		RequestID:  "req-3",
		AgentID:    "a1",
		ReceivedAt: now,
		Readings: []ingest.ReadingData{
			// Regression: below the meter's current index.
			{MeterIdentifier: meter.Identifier, Date: now.Format(time.RFC3339), NewIndex: meter.CurrentIndex - 1},
			// Valid capture in the same sync.
			{MeterIdentifier: meter.Identifier, Date: now.Format(time.RFC3339), NewIndex: meter.CurrentIndex + 5},
		},
	})

	if err := svc.ProcessMessage(ctx, body); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	after, _ := st.ListReadings(ctx, model.ReadingFilters{})
	if len(after) != len(before)+1 {
		t.Errorf("Expected exactly one recorded reading, got %d new", len(after)-len(before))
	}
}

func TestProcessMessage_SpikeIsFlaggedInNotes(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	meter, _ := st.GetMeterByIdentifier(ctx, "000000001")

	now := time.Now().UTC()
	body := marshal(t, ingest.SubmissionMessage{
		RequestID:  "req-4",
		AgentID:    "a1",
		ReceivedAt: now,
		Readings: []ingest.ReadingData{
			// Orders of magnitude above the seed consumption range.
			{MeterIdentifier: meter.Identifier, Date: now.Format(time.RFC3339), NewIndex: meter.CurrentIndex + 100000},
		},
	})

	if err := svc.ProcessMessage(ctx, body); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	history, err := st.MeterHistory(ctx, meter.ID, 1)
	if err != nil || len(history) == 0 {
		t.Fatalf("MeterHistory failed: %v", err)
	}
	if !strings.Contains(history[0].Notes, "spike") {
		t.Errorf("Expected spike flag in notes, got %q", history[0].Notes)
	}
}
