package matchservice

import (
	"context"
	"fmt"

	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// EnsureWindowScheduled reconciles every match from the post-match grace
// boundary up through the lookahead horizon. One failing match does not stop
// the pass; its error lands in the action list for operator visibility.
func (s *MatchService) EnsureWindowScheduled(ctx context.Context) (*WindowReport, error) {
	report := &WindowReport{Actions: []string{}}
	err := s.withTelemetry(ctx, "ensure_window_scheduled", 0, func(ctx context.Context) error {
		now := s.clock.NowUTC()
		matches, err := s.matchRepo.ListInWindow(ctx, now.Add(-PostMatchGrace), now.Add(s.lookahead))
		if err != nil {
			return fmt.Errorf("failed to list matches in window: %w", err)
		}
		report.MatchesChecked = len(matches)

		for i := range matches {
			match := &matches[i]
			actions, err := s.reconcileMatch(ctx, match)
			for _, action := range actions {
				report.Actions = append(report.Actions, fmt.Sprintf("match %d: %s", match.ID, action))
			}
			if err != nil {
				s.logger.ErrorContext(ctx, "Reconcile failed for match",
					attr.Int64("match_id", match.ID),
					attr.Error(err))
				report.Actions = append(report.Actions, fmt.Sprintf("match %d: reconcile failed: %v", match.ID, err))
			}
		}

		s.logger.InfoContext(ctx, "Window reconciliation completed",
			attr.Int("matches_checked", report.MatchesChecked),
			attr.Int("action_count", len(report.Actions)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
