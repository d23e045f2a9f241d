// Package ingest processes reading submissions delivered over the message
// queue by field terminals. Valid captures are appended to the store;
// suspicious ones are still recorded but flagged in their notes.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/releves-ma/si-releves/internal/anomaly"
	"github.com/releves-ma/si-releves/internal/logging"
	"github.com/releves-ma/si-releves/internal/mq"
	"github.com/releves-ma/si-releves/internal/store"
	"github.com/releves-ma/si-releves/internal/validator"
)

// SubmissionMessage is the incoming message from the ingest queue. One
// message carries all captures of one agent's sync.
type SubmissionMessage struct {
	RequestID  string        `json:"request_id"`
	AgentID    string        `json:"agent_id"`
	ReceivedAt time.Time     `json:"received_at"`
	Readings   []ReadingData `json:"readings"`
}

// ReadingData is a single submitted capture.
type ReadingData struct {
	MeterIdentifier string `json:"meter_identifier"`
	Date            string `json:"date"`
	NewIndex        int    `json:"new_index"`
	Notes           string `json:"notes,omitempty"`
}

// Service handles submission processing logic
type Service struct {
	store      *store.Store
	publisher  *mq.Publisher
	detector   *anomaly.Detector
	validator  *validator.Validator
	routingKey string
	logger     *zap.Logger
}

// NewService creates a new ingest service. publisher may be nil when event
// publishing is disabled.
func NewService(
	st *store.Store,
	publisher *mq.Publisher,
	detector *anomaly.Detector,
	v *validator.Validator,
	routingKey string,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      st,
		publisher:  publisher,
		detector:   detector,
		validator:  v,
		routingKey: routingKey,
		logger:     logger,
	}
}

// ProcessMessage processes one submission message. An unknown agent or a
// malformed body fails the whole message; individual invalid captures are
// skipped so the rest of the sync still lands.
func (s *Service) ProcessMessage(ctx context.Context, body []byte) error {
	var msg SubmissionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal submission: %w", err)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing submission",
		zap.String("agent_id", msg.AgentID),
		zap.Int("readings_count", len(msg.Readings)),
	)

	agent, err := s.store.GetAgent(ctx, msg.AgentID)
	if err != nil {
		return fmt.Errorf("failed to look up agent: %w", err)
	}
	if agent == nil {
		return fmt.Errorf("unknown agent %q", msg.AgentID)
	}

	var events []mq.AcceptedEvent
	accepted, rejected := 0, 0
	for _, rd := range msg.Readings {
		event, err := s.processSingleReading(ctx, agent.ID, rd, msg.ReceivedAt, reqLogger)
		if err != nil {
			reqLogger.Warn("capture rejected",
				zap.Error(err),
				zap.String("meter_identifier", rd.MeterIdentifier),
			)
			rejected++
			continue
		}
		events = append(events, *event)
		accepted++
	}

	if s.publisher != nil {
		for _, event := range events {
			if err := s.publisher.PublishAcceptedEvent(ctx, event, s.routingKey); err != nil {
				// Log but don't fail the message; the reading is already recorded
				reqLogger.Error("failed to publish event",
					zap.Error(err),
					zap.String("reading_id", event.ReadingID),
				)
			}
		}
	}

	reqLogger.Info("submission processed",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
	)
	return nil
}

func (s *Service) processSingleReading(
	ctx context.Context,
	agentID string,
	rd ReadingData,
	receivedAt time.Time,
	logger *zap.Logger,
) (*mq.AcceptedEvent, error) {
	meter, err := s.store.GetMeterByIdentifier(ctx, rd.MeterIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to look up meter: %w", err)
	}
	if meter == nil {
		return nil, fmt.Errorf("unknown meter %q", rd.MeterIdentifier)
	}

	readingTime, result := s.validator.ValidateReading(validator.ReadingData{
		MeterIdentifier: rd.MeterIdentifier,
		Date:            rd.Date,
		NewIndex:        rd.NewIndex,
		Notes:           rd.Notes,
	}, meter.CurrentIndex, receivedAt)
	if !result.IsValid {
		return nil, fmt.Errorf("invalid capture: %s", result.Reason)
	}

	notes := rd.Notes
	flagged := false
	flagReason := ""
	history, err := s.store.MeterHistory(ctx, meter.ID, 10)
	if err != nil {
		logger.Warn("failed to load history for spike detection",
			zap.Error(err),
			zap.String("meter_identifier", rd.MeterIdentifier),
		)
	} else {
		values := make([]int, 0, len(history))
		for _, h := range history {
			values = append(values, h.Consumption)
		}
		if spike, reason := s.detector.DetectSpike(rd.NewIndex-meter.CurrentIndex, values); spike {
			flagged = true
			flagReason = reason
			if notes != "" {
				notes += " | " + reason
			} else {
				notes = reason
			}
			logger.Debug("anomaly flagged",
				zap.String("meter_identifier", rd.MeterIdentifier),
				zap.String("reason", reason),
			)
		}
	}

	reading, err := s.store.AppendReading(ctx, store.AppendReadingInput{
		MeterID:  meter.ID,
		AgentID:  agentID,
		Date:     readingTime,
		NewIndex: rd.NewIndex,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record reading: %w", err)
	}

	return &mq.AcceptedEvent{
		ReadingID:       reading.ID,
		MeterIdentifier: meter.Identifier,
		AgentID:         agentID,
		NewIndex:        reading.NewIndex,
		Consumption:     reading.Consumption,
		Date:            reading.Date.Format(time.RFC3339),
		Flagged:         flagged,
		FlagReason:      flagReason,
	}, nil
}
