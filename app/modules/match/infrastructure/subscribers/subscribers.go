package matchsubscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/north-end-collective/matchday-bot/app/eventbus"
	matchevents "github.com/north-end-collective/matchday-bot/app/modules/match/domain/events"
	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// Subscribers applies bot confirmations back onto match lifecycle flags.
type Subscribers struct {
	bus       eventbus.EventBus
	matchRepo matchdb.MatchRepository
	logger    *slog.Logger
}

// NewSubscribers creates the confirmation subscribers.
func NewSubscribers(bus eventbus.EventBus, matchRepo matchdb.MatchRepository, logger *slog.Logger) *Subscribers {
	return &Subscribers{
		bus:       bus,
		matchRepo: matchRepo,
		logger:    logger,
	}
}

// Start subscribes to every bot confirmation topic.
func (s *Subscribers) Start(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, matchevents.MatchThreadCreated, s.handleThreadCreated); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", matchevents.MatchThreadCreated, err)
	}
	if err := s.bus.Subscribe(ctx, matchevents.LiveReportingStopped, s.handleReportingStopped); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", matchevents.LiveReportingStopped, err)
	}
	if err := s.bus.Subscribe(ctx, matchevents.LiveReportingCompleted, s.handleReportingCompleted); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", matchevents.LiveReportingCompleted, err)
	}
	return nil
}

func (s *Subscribers) handleThreadCreated(ctx context.Context, msg *message.Message) error {
	var payload matchevents.MatchThreadCreatedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		// Malformed confirmations are dropped, not redelivered forever.
		s.logger.ErrorContext(ctx, "Dropping malformed thread created event",
			attr.String("message_id", msg.UUID),
			attr.Error(err))
		return nil
	}

	if err := s.matchRepo.MarkThreadCreated(ctx, payload.MatchID, payload.ThreadID); err != nil {
		return fmt.Errorf("failed to mark thread created for match %d: %w", payload.MatchID, err)
	}

	s.logger.InfoContext(ctx, "Match thread confirmed",
		attr.Int64("match_id", payload.MatchID),
		attr.String("thread_id", payload.ThreadID))
	return nil
}

func (s *Subscribers) handleReportingStopped(ctx context.Context, msg *message.Message) error {
	var payload matchevents.LiveReportingStoppedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.ErrorContext(ctx, "Dropping malformed reporting stopped event",
			attr.String("message_id", msg.UUID),
			attr.Error(err))
		return nil
	}

	if err := s.matchRepo.SetReportingStatus(ctx, payload.MatchID, matchtypes.ReportingStopped, true, ""); err != nil {
		return fmt.Errorf("failed to set reporting stopped for match %d: %w", payload.MatchID, err)
	}

	s.logger.InfoContext(ctx, "Live reporting stopped",
		attr.Int64("match_id", payload.MatchID),
		attr.String("reason", payload.Reason))
	return nil
}

func (s *Subscribers) handleReportingCompleted(ctx context.Context, msg *message.Message) error {
	var payload matchevents.LiveReportingCompletedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.ErrorContext(ctx, "Dropping malformed reporting completed event",
			attr.String("message_id", msg.UUID),
			attr.Error(err))
		return nil
	}

	if err := s.matchRepo.SetReportingStatus(ctx, payload.MatchID, matchtypes.ReportingCompleted, true, ""); err != nil {
		return fmt.Errorf("failed to set reporting completed for match %d: %w", payload.MatchID, err)
	}

	s.logger.InfoContext(ctx, "Live reporting completed",
		attr.Int64("match_id", payload.MatchID))
	return nil
}
