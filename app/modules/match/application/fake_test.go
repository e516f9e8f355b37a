package matchservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchqueue "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/queue"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	matchutil "github.com/north-end-collective/matchday-bot/app/modules/match/utils"
	"github.com/north-end-collective/matchday-bot/internal/observability"
	"go.opentelemetry.io/otel/trace/noop"
)

// fakeMatchRepo is an in-memory MatchRepository.
type fakeMatchRepo struct {
	matches map[int64]*matchtypes.Match
	getErr  error
}

func newFakeMatchRepo(matches ...*matchtypes.Match) *fakeMatchRepo {
	repo := &fakeMatchRepo{matches: make(map[int64]*matchtypes.Match)}
	for _, m := range matches {
		repo.matches[m.ID] = m
	}
	return repo
}

func (r *fakeMatchRepo) GetByID(_ context.Context, id int64) (*matchtypes.Match, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	m, ok := r.matches[id]
	if !ok {
		return nil, matchdb.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMatchRepo) ListInWindow(_ context.Context, from, to time.Time) ([]matchtypes.Match, error) {
	var out []matchtypes.Match
	for _, m := range r.matches {
		if !m.DateTime.Before(from) && !m.DateTime.After(to) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) MarkThreadScheduled(_ context.Context, id int64, threadTime time.Time) error {
	m, ok := r.matches[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	m.ThreadCreationScheduled = true
	t := threadTime
	m.ThreadCreationTime = &t
	return nil
}

func (r *fakeMatchRepo) MarkThreadCreated(_ context.Context, id int64, discordThreadID string) error {
	m, ok := r.matches[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	m.ThreadCreated = true
	m.DiscordThreadID = &discordThreadID
	return nil
}

func (r *fakeMatchRepo) SetReportingStatus(_ context.Context, id int64, status matchtypes.ReportingStatus, started bool, taskID string) error {
	m, ok := r.matches[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	m.LiveReportingStatus = status
	m.LiveReportingStarted = started
	if taskID != "" {
		m.LiveReportingTaskID = taskID
	}
	if status == matchtypes.ReportingPreparing || status == matchtypes.ReportingRunning {
		m.LiveReportingScheduled = true
	}
	return nil
}

func (r *fakeMatchRepo) ResetScheduleFlags(_ context.Context, id int64) error {
	m, ok := r.matches[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	m.ThreadCreationScheduled = false
	m.ThreadCreationTime = nil
	m.LiveReportingScheduled = false
	return nil
}

func (r *fakeMatchRepo) ResetAllScheduleFlags(_ context.Context) (int64, error) {
	var count int64
	for _, m := range r.matches {
		if m.ThreadCreationScheduled || m.LiveReportingScheduled || m.LiveReportingStarted || m.LiveReportingStatus != matchtypes.ReportingNotStarted {
			count++
		}
		m.ThreadCreationScheduled = false
		m.ThreadCreationTime = nil
		m.LiveReportingScheduled = false
		m.LiveReportingStarted = false
		m.LiveReportingStatus = matchtypes.ReportingNotStarted
		m.LiveReportingTaskID = ""
	}
	return count, nil
}

// fakeTaskRepo is an in-memory TaskRepository enforcing the one-active-row
// rule the partial unique index enforces in Postgres.
type fakeTaskRepo struct {
	tasks  map[int64]*matchtypes.ScheduledTask
	nextID int64
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[int64]*matchtypes.ScheduledTask), nextID: 1}
}

func (r *fakeTaskRepo) add(task matchtypes.ScheduledTask) *matchtypes.ScheduledTask {
	task.ID = r.nextID
	r.nextID++
	r.tasks[task.ID] = &task
	return &task
}

func (r *fakeTaskRepo) FindActive(_ context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.ScheduledTask, error) {
	for _, t := range r.tasks {
		if t.MatchID == matchID && t.Kind == kind && !t.State.Terminal() {
			copied := *t
			return &copied, nil
		}
	}
	return nil, matchdb.ErrNotFound
}

func (r *fakeTaskRepo) ClaimSlot(ctx context.Context, matchID int64, kind matchtypes.TaskKind, scheduledTime time.Time) (*matchtypes.ScheduledTask, bool, error) {
	if existing, err := r.FindActive(ctx, matchID, kind); err == nil {
		return existing, false, nil
	}
	task := r.add(matchtypes.ScheduledTask{
		MatchID:       matchID,
		Kind:          kind,
		ScheduledTime: scheduledTime,
		State:         matchtypes.TaskStateScheduled,
	})
	copied := *task
	return &copied, true, nil
}

func (r *fakeTaskRepo) BindQueueJob(_ context.Context, id int64, queueJobID string) error {
	t, ok := r.tasks[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	t.QueueJobID = queueJobID
	return nil
}

func (r *fakeTaskRepo) setState(id int64, state matchtypes.TaskState, queueJobID, lastError string) error {
	t, ok := r.tasks[id]
	if !ok {
		return matchdb.ErrNotFound
	}
	t.State = state
	if queueJobID != "" {
		t.QueueJobID = queueJobID
	}
	if lastError != "" {
		t.LastError = lastError
	}
	return nil
}

func (r *fakeTaskRepo) MarkRunning(_ context.Context, id int64, queueJobID string) error {
	return r.setState(id, matchtypes.TaskStateRunning, queueJobID, "")
}

func (r *fakeTaskRepo) MarkSuccess(_ context.Context, id int64) error {
	return r.setState(id, matchtypes.TaskStateSuccess, "", "")
}

func (r *fakeTaskRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	return r.setState(id, matchtypes.TaskStateFailed, "", reason)
}

func (r *fakeTaskRepo) MarkRevoked(_ context.Context, id int64) error {
	return r.setState(id, matchtypes.TaskStateRevoked, "", "")
}

func (r *fakeTaskRepo) ListByMatch(_ context.Context, matchID int64) ([]matchtypes.ScheduledTask, error) {
	var out []matchtypes.ScheduledTask
	for _, t := range r.tasks {
		if t.MatchID == matchID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) ExpireOverdue(_ context.Context, matchID int64, cutoff time.Time) ([]matchtypes.ScheduledTask, error) {
	var out []matchtypes.ScheduledTask
	for _, t := range r.tasks {
		if t.MatchID == matchID && t.State == matchtypes.TaskStateScheduled && t.ScheduledTime.Before(cutoff) {
			t.State = matchtypes.TaskStateExpired
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) CloseAllNonTerminal(_ context.Context, state matchtypes.TaskState) (int64, error) {
	var count int64
	for _, t := range r.tasks {
		if !t.State.Terminal() {
			t.State = state
			count++
		}
	}
	return count, nil
}

// fakeQueue is an in-memory TaskQueue.
type fakeQueue struct {
	jobs        map[int64]matchtypes.QueueState
	nextID      int64
	scheduleErr error
	stateErr    error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[int64]matchtypes.QueueState), nextID: 100}
}

func (q *fakeQueue) schedule() (int64, error) {
	if q.scheduleErr != nil {
		return 0, q.scheduleErr
	}
	id := q.nextID
	q.nextID++
	q.jobs[id] = matchtypes.QueuePending
	return id, nil
}

func (q *fakeQueue) ScheduleThreadCreate(_ context.Context, _, _ int64, _ time.Time) (int64, error) {
	return q.schedule()
}

func (q *fakeQueue) ScheduleLiveReportingStart(_ context.Context, _, _ int64, _ time.Time) (int64, error) {
	return q.schedule()
}

func (q *fakeQueue) CancelJob(_ context.Context, jobID int64) error {
	if _, ok := q.jobs[jobID]; ok {
		q.jobs[jobID] = matchtypes.QueueRevoked
	}
	return nil
}

func (q *fakeQueue) JobState(_ context.Context, jobID int64) (matchtypes.QueueState, error) {
	if q.stateErr != nil {
		return matchtypes.QueueError, q.stateErr
	}
	state, ok := q.jobs[jobID]
	if !ok {
		return matchtypes.QueueNotFound, nil
	}
	return state, nil
}

func (q *fakeQueue) DrainMatchJobs(_ context.Context) (int, error) {
	drained := 0
	for id, state := range q.jobs {
		if state == matchtypes.QueuePending || state == matchtypes.QueueRetry {
			q.jobs[id] = matchtypes.QueueRevoked
			drained++
		}
	}
	return drained, nil
}

func (q *fakeQueue) ListMatchJobs(_ context.Context) ([]matchqueue.JobInfo, error) {
	var out []matchqueue.JobInfo
	for id, state := range q.jobs {
		out = append(out, matchqueue.JobInfo{ID: id, State: string(state)})
	}
	return out, nil
}

// fakeMarkerStore is an in-memory MarkerStore.
type fakeMarkerStore struct {
	data   map[string]matchtypes.Marker
	getErr error
}

func newFakeMarkerStore() *fakeMarkerStore {
	return &fakeMarkerStore{data: make(map[string]matchtypes.Marker)}
}

func markerKey(matchID int64, kind matchtypes.TaskKind) string {
	return fmt.Sprintf("%d.%s", matchID, kind.MarkerSegment())
}

func (s *fakeMarkerStore) Set(_ context.Context, matchID int64, kind matchtypes.TaskKind, marker matchtypes.Marker) error {
	s.data[markerKey(matchID, kind)] = marker
	return nil
}

func (s *fakeMarkerStore) Get(_ context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.Marker, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	marker, ok := s.data[markerKey(matchID, kind)]
	if !ok {
		return nil, markers.ErrNoMarker
	}
	return &marker, nil
}

func (s *fakeMarkerStore) Delete(_ context.Context, matchID int64, kind matchtypes.TaskKind) error {
	delete(s.data, markerKey(matchID, kind))
	return nil
}

func (s *fakeMarkerStore) List(_ context.Context) (map[int64]map[matchtypes.TaskKind]matchtypes.Marker, error) {
	out := make(map[int64]map[matchtypes.TaskKind]matchtypes.Marker)
	for key, marker := range s.data {
		var matchID int64
		var segment string
		if _, err := fmt.Sscanf(key, "%d.%s", &matchID, &segment); err != nil {
			return nil, err
		}
		kind, ok := matchtypes.KindFromMarkerSegment(segment)
		if !ok {
			return nil, errors.New("bad segment " + segment)
		}
		if out[matchID] == nil {
			out[matchID] = make(map[matchtypes.TaskKind]matchtypes.Marker)
		}
		out[matchID][kind] = marker
	}
	return out, nil
}

// testWorld bundles the fakes behind one service under test.
type testWorld struct {
	now     time.Time
	matches *fakeMatchRepo
	tasks   *fakeTaskRepo
	queue   *fakeQueue
	markers *fakeMarkerStore
	service *MatchService
}

func newTestWorld(now time.Time, matches ...*matchtypes.Match) *testWorld {
	w := &testWorld{
		now:     now,
		matches: newFakeMatchRepo(matches...),
		tasks:   newFakeTaskRepo(),
		queue:   newFakeQueue(),
		markers: newFakeMarkerStore(),
	}
	clock := &matchutil.FakeClock{
		NowFn:    func() time.Time { return w.now },
		NowUTCFn: func() time.Time { return w.now.UTC() },
	}
	w.service = NewMatchService(
		w.matches,
		w.tasks,
		w.queue,
		w.markers,
		clock,
		14*24*time.Hour,
		0, // no status caching unless a test opts in
		observability.NoOpLogger,
		observability.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
	)
	return w
}

// jobIDFor returns the queue job id recorded for the match and kind.
func (w *testWorld) jobIDFor(matchID int64, kind matchtypes.TaskKind) int64 {
	marker, ok := w.markers.data[markerKey(matchID, kind)]
	if !ok {
		return 0
	}
	id, _ := strconv.ParseInt(marker.TaskID, 10, 64)
	return id
}
