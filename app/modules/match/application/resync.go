package matchservice

import (
	"context"

	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// ResyncMatch compares expected task state (derived from kickoff time)
// against actual state (markers, queue jobs, lifecycle flags) and repairs
// drift best-effort. Re-running with nothing to fix returns an empty action
// list.
func (s *MatchService) ResyncMatch(ctx context.Context, matchID int64) (*ReconcileReport, error) {
	report := &ReconcileReport{MatchID: matchID, Actions: []string{}}
	err := s.withTelemetry(ctx, "resync_match", matchID, func(ctx context.Context) error {
		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return err
		}

		actions, err := s.reconcileMatch(ctx, match)
		report.Actions = append(report.Actions, actions...)
		if err != nil {
			return err
		}

		if len(actions) > 0 {
			s.statusCache.invalidate(matchID)
			s.logger.InfoContext(ctx, "Resync repaired drift",
				attr.ExtractCorrelationID(ctx),
				attr.Int64("match_id", matchID),
				attr.Int("action_count", len(actions)),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
