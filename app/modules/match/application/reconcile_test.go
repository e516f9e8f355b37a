package matchservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func upcomingMatch(id int64, kickoff time.Time) *matchtypes.Match {
	return &matchtypes.Match{
		ID:                  id,
		MatchID:             "mls-2026-1234",
		Opponent:            "Portland Timbers",
		DateTime:            kickoff,
		Competition:         "MLS",
		Venue:               "Lumen Field",
		IsHomeGame:          true,
		LiveReportingStatus: matchtypes.ReportingNotStarted,
	}
}

func TestResyncTooEarlyTakesNoAction(t *testing.T) {
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(72*time.Hour)))

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 0 {
		t.Errorf("ResyncMatch() actions = %v, want none", report.Actions)
	}
	if len(w.tasks.tasks) != 0 {
		t.Errorf("task rows created = %d, want 0", len(w.tasks.tasks))
	}
}

func TestResyncSchedulesThreadInsideWindow(t *testing.T) {
	kickoff := testNow.Add(47*time.Hour + 59*time.Minute)
	w := newTestWorld(testNow, upcomingMatch(1, kickoff))
	ctx := context.Background()

	report, err := w.service.ResyncMatch(ctx, 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 1 {
		t.Fatalf("ResyncMatch() actions = %v, want exactly one", report.Actions)
	}
	if !strings.Contains(report.Actions[0], "Scheduled THREAD_CREATION task") {
		t.Errorf("unexpected action %q", report.Actions[0])
	}

	task, err := w.tasks.FindActive(ctx, 1, matchtypes.TaskKindThreadCreation)
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	// Window already open, so the catch-up runs immediately.
	if !task.ScheduledTime.Equal(testNow) {
		t.Errorf("ScheduledTime = %v, want %v", task.ScheduledTime, testNow)
	}
	if w.jobIDFor(1, matchtypes.TaskKindThreadCreation) == 0 {
		t.Error("no marker written for thread task")
	}
	if !w.matches.matches[1].ThreadCreationScheduled {
		t.Error("thread_creation_scheduled not set")
	}

	// Second run with no external change is a no-op.
	report, err = w.service.ResyncMatch(ctx, 1)
	if err != nil {
		t.Fatalf("ResyncMatch() second run error = %v", err)
	}
	if len(report.Actions) != 0 {
		t.Errorf("second run actions = %v, want none", report.Actions)
	}
}

func TestResyncCatchesUpLiveReporting(t *testing.T) {
	kickoff := testNow.Add(-10 * time.Minute)
	m := upcomingMatch(1, kickoff)
	threadID := "thread-123"
	m.ThreadCreated = true
	m.DiscordThreadID = &threadID
	w := newTestWorld(testNow, m)

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 1 {
		t.Fatalf("ResyncMatch() actions = %v, want exactly one", report.Actions)
	}
	if !strings.Contains(report.Actions[0], "Scheduled LIVE_REPORTING_START task") {
		t.Errorf("unexpected action %q", report.Actions[0])
	}
	if got := w.matches.matches[1].LiveReportingStatus; got != matchtypes.ReportingPreparing {
		t.Errorf("LiveReportingStatus = %q, want %q", got, matchtypes.ReportingPreparing)
	}
	if w.jobIDFor(1, matchtypes.TaskKindLiveReportingStart) == 0 {
		t.Error("no marker written for reporting task")
	}
}

func TestResyncPostMatchSchedulesNothing(t *testing.T) {
	m := upcomingMatch(1, testNow.Add(-4*time.Hour))
	threadID := "thread-123"
	m.ThreadCreated = true
	m.DiscordThreadID = &threadID
	w := newTestWorld(testNow, m)

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 0 {
		t.Errorf("actions = %v, want none", report.Actions)
	}
}

func TestResyncExpiryBoundary(t *testing.T) {
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(100*time.Hour)))

	overdue := w.tasks.add(matchtypes.ScheduledTask{
		MatchID:       1,
		Kind:          matchtypes.TaskKindThreadCreation,
		ScheduledTime: testNow.Add(-7 * time.Hour),
		State:         matchtypes.TaskStateScheduled,
	})
	recent := w.tasks.add(matchtypes.ScheduledTask{
		MatchID:       1,
		Kind:          matchtypes.TaskKindLiveReportingStart,
		ScheduledTime: testNow.Add(-5 * time.Hour),
		State:         matchtypes.TaskStateScheduled,
	})

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}

	if got := w.tasks.tasks[overdue.ID].State; got != matchtypes.TaskStateExpired {
		t.Errorf("7h-old task state = %s, want EXPIRED", got)
	}
	if got := w.tasks.tasks[recent.ID].State; got != matchtypes.TaskStateScheduled {
		t.Errorf("5h-old task state = %s, want SCHEDULED", got)
	}

	found := false
	for _, action := range report.Actions {
		if strings.Contains(action, "Marked overdue THREAD_CREATION task as EXPIRED") {
			found = true
		}
	}
	if !found {
		t.Errorf("no expiry action in %v", report.Actions)
	}
}

func TestResyncRemovesGhostMarker(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(100*time.Hour)))

	// Marker pointing at a job the queue has never heard of.
	if err := w.markers.Set(ctx, 1, matchtypes.TaskKindThreadCreation, matchtypes.Marker{TaskID: "999"}); err != nil {
		t.Fatal(err)
	}

	report, err := w.service.ResyncMatch(ctx, 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 1 || !strings.Contains(report.Actions[0], "ghost") {
		t.Fatalf("actions = %v, want one ghost-removal action", report.Actions)
	}
	if _, ok := w.markers.data[markerKey(1, matchtypes.TaskKindThreadCreation)]; ok {
		t.Error("ghost marker still present")
	}
}

func TestResyncFailsRowWithMissingJob(t *testing.T) {
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(47*time.Hour)))

	// Active row whose queue job vanished, and no marker.
	row := w.tasks.add(matchtypes.ScheduledTask{
		MatchID:       1,
		Kind:          matchtypes.TaskKindThreadCreation,
		QueueJobID:    "555",
		ScheduledTime: testNow.Add(-time.Hour),
		State:         matchtypes.TaskStateScheduled,
	})

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if got := w.tasks.tasks[row.ID].State; got != matchtypes.TaskStateFailed {
		t.Errorf("row state = %s, want FAILED", got)
	}

	// And the same pass replaces it, since the window is open.
	if _, err := w.tasks.FindActive(context.Background(), 1, matchtypes.TaskKindThreadCreation); err != nil {
		t.Error("no replacement task scheduled after ghost row failed")
	}
	foundFail := false
	for _, action := range report.Actions {
		if strings.Contains(action, "no longer exists") {
			foundFail = true
		}
	}
	if !foundFail {
		t.Errorf("no ghost-row action in %v", report.Actions)
	}
}

func TestResyncFlagsInvariantViolation(t *testing.T) {
	m := upcomingMatch(1, testNow.Add(100*time.Hour))
	m.ThreadCreated = true // no DiscordThreadID recorded
	w := newTestWorld(testNow, m)

	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() error = %v", err)
	}
	if len(report.Actions) != 1 || !strings.Contains(report.Actions[0], "invariant violation") {
		t.Errorf("actions = %v, want one invariant flag", report.Actions)
	}
}

func TestResyncMatchNotFound(t *testing.T) {
	w := newTestWorld(testNow)

	_, err := w.service.ResyncMatch(context.Background(), 99)
	if !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("ResyncMatch() error = %v, want ErrMatchNotFound", err)
	}
}

func TestScheduleEnqueueFailureReleasesSlot(t *testing.T) {
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(24*time.Hour)))
	w.queue.scheduleErr = errors.New("queue down")

	_, err := w.service.ResyncMatch(context.Background(), 1)
	if err == nil {
		t.Fatal("ResyncMatch() error = nil, want enqueue failure")
	}

	// The claim must not stick, or the next pass could never retry.
	if _, err := w.tasks.FindActive(context.Background(), 1, matchtypes.TaskKindThreadCreation); err == nil {
		t.Error("failed claim left an active row behind")
	}

	w.queue.scheduleErr = nil
	report, err := w.service.ResyncMatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("ResyncMatch() retry error = %v", err)
	}
	if len(report.Actions) != 1 {
		t.Errorf("retry actions = %v, want one schedule action", report.Actions)
	}
}

func TestUnscheduleRevokesAndResets(t *testing.T) {
	ctx := context.Background()
	kickoff := testNow.Add(24 * time.Hour)
	w := newTestWorld(testNow, upcomingMatch(1, kickoff))

	if _, err := w.service.ScheduleMatchTasks(ctx, 1, false); err != nil {
		t.Fatalf("ScheduleMatchTasks() error = %v", err)
	}
	jobID := w.jobIDFor(1, matchtypes.TaskKindThreadCreation)
	if jobID == 0 {
		t.Fatal("no thread job scheduled")
	}

	report, err := w.service.UnscheduleMatchTasks(ctx, 1)
	if err != nil {
		t.Fatalf("UnscheduleMatchTasks() error = %v", err)
	}
	if len(report.Actions) == 0 {
		t.Fatal("UnscheduleMatchTasks() returned no actions")
	}
	if got := w.queue.jobs[jobID]; got != matchtypes.QueueRevoked {
		t.Errorf("queue job state = %s, want REVOKED", got)
	}
	if _, err := w.tasks.FindActive(ctx, 1, matchtypes.TaskKindThreadCreation); err == nil {
		t.Error("active row survived unschedule")
	}
	if len(w.markers.data) != 0 {
		t.Errorf("markers left behind: %v", w.markers.data)
	}
	if w.matches.matches[1].ThreadCreationScheduled {
		t.Error("thread_creation_scheduled still set")
	}
}

func TestForceScheduleRebuilds(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(24*time.Hour)))

	if _, err := w.service.ScheduleMatchTasks(ctx, 1, false); err != nil {
		t.Fatal(err)
	}
	firstJob := w.jobIDFor(1, matchtypes.TaskKindThreadCreation)

	report, err := w.service.ScheduleMatchTasks(ctx, 1, true)
	if err != nil {
		t.Fatalf("ScheduleMatchTasks(force) error = %v", err)
	}
	secondJob := w.jobIDFor(1, matchtypes.TaskKindThreadCreation)
	if secondJob == 0 || secondJob == firstJob {
		t.Errorf("force reschedule job id = %d, want a fresh job (old %d)", secondJob, firstJob)
	}
	if got := w.queue.jobs[firstJob]; got != matchtypes.QueueRevoked {
		t.Errorf("old job state = %s, want REVOKED", got)
	}
	if len(report.Actions) < 2 {
		t.Errorf("force actions = %v, want revoke and schedule entries", report.Actions)
	}
}

func TestEnsureWindowScheduled(t *testing.T) {
	inWindow := upcomingMatch(1, testNow.Add(24*time.Hour))
	tooFar := upcomingMatch(2, testNow.Add(20*24*time.Hour))
	w := newTestWorld(testNow, inWindow, tooFar)

	report, err := w.service.EnsureWindowScheduled(context.Background())
	if err != nil {
		t.Fatalf("EnsureWindowScheduled() error = %v", err)
	}
	if report.MatchesChecked != 1 {
		t.Errorf("MatchesChecked = %d, want 1 (lookahead is 14 days)", report.MatchesChecked)
	}
	if len(report.Actions) != 1 || !strings.Contains(report.Actions[0], "match 1:") {
		t.Errorf("actions = %v, want one prefixed action for match 1", report.Actions)
	}
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(testNow,
		upcomingMatch(1, testNow.Add(24*time.Hour)),
		upcomingMatch(2, testNow.Add(36*time.Hour)),
	)

	if _, err := w.service.EnsureWindowScheduled(ctx); err != nil {
		t.Fatal(err)
	}
	if len(w.markers.data) != 2 {
		t.Fatalf("setup markers = %d, want 2", len(w.markers.data))
	}

	report, err := w.service.RevokeAll(ctx)
	if err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}
	if report.MarkersRemoved != 2 {
		t.Errorf("MarkersRemoved = %d, want 2", report.MarkersRemoved)
	}
	if report.TasksRevoked != 2 {
		t.Errorf("TasksRevoked = %d, want 2", report.TasksRevoked)
	}
	if len(w.markers.data) != 0 {
		t.Errorf("markers left: %v", w.markers.data)
	}
	for id, state := range w.queue.jobs {
		if state != matchtypes.QueueRevoked {
			t.Errorf("job %d state = %s, want REVOKED", id, state)
		}
	}
	for _, m := range w.matches.matches {
		if m.ThreadCreationScheduled || m.LiveReportingScheduled {
			t.Errorf("match %d flags not reset", m.ID)
		}
	}
}

func TestRecoverRevokesThenReschedules(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(testNow, upcomingMatch(1, testNow.Add(24*time.Hour)))

	if _, err := w.service.EnsureWindowScheduled(ctx); err != nil {
		t.Fatal(err)
	}
	oldJob := w.jobIDFor(1, matchtypes.TaskKindThreadCreation)

	report, err := w.service.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if report.Revoked.MarkersRemoved != 1 {
		t.Errorf("Revoked.MarkersRemoved = %d, want 1", report.Revoked.MarkersRemoved)
	}
	newJob := w.jobIDFor(1, matchtypes.TaskKindThreadCreation)
	if newJob == 0 || newJob == oldJob {
		t.Errorf("recover job id = %d, want a fresh job (old %d)", newJob, oldJob)
	}
	if report.Rescheduled.MatchesChecked != 1 {
		t.Errorf("Rescheduled.MatchesChecked = %d, want 1", report.Rescheduled.MatchesChecked)
	}
}
