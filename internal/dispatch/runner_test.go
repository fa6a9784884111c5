package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/generation"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
)

type mockStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*models.Schedule
	claimOK   bool
	claimErr  error

	claims       []uuid.UUID
	successes    []recordedSuccess
	failures     []recordedFailure
	deactivated  map[uuid.UUID]string
	findDueBatch []models.Schedule
}

type recordedSuccess struct {
	id        uuid.UUID
	nextRun   *time.Time
	messageID *string
}

type recordedFailure struct {
	id        uuid.UUID
	message   string
	nextRun   time.Time
	messageID *string
}

func newMockStore() *mockStore {
	return &mockStore{
		schedules:   make(map[uuid.UUID]*models.Schedule),
		claimOK:     true,
		deactivated: make(map[uuid.UUID]string),
	}
}

func (m *mockStore) add(s *models.Schedule) {
	m.schedules[s.ID] = s
}

func (m *mockStore) FindByID(_ context.Context, id uuid.UUID) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *s
	return &copied, nil
}

func (m *mockStore) FindDue(_ context.Context, _ int) ([]models.Schedule, error) {
	return m.findDueBatch, nil
}

func (m *mockStore) Claim(_ context.Context, id uuid.UUID, _ time.Time, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, id)
	return m.claimOK, m.claimErr
}

func (m *mockStore) RecordSuccess(_ context.Context, id uuid.UUID, nextRun *time.Time, messageID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, recordedSuccess{id, nextRun, messageID})
	return nil
}

func (m *mockStore) RecordFailure(_ context.Context, id uuid.UUID, message string, nextRun time.Time, messageID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, recordedFailure{id, message, nextRun, messageID})
	return nil
}

func (m *mockStore) Deactivate(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivated[id] = reason
	return nil
}

type mockGate struct {
	reserveErr error
	remaining  int
	commits    int
}

func (g *mockGate) Reserve(_ context.Context, _ *models.Schedule) error {
	return g.reserveErr
}

func (g *mockGate) Commit(_ context.Context, _ *models.Schedule) (int, error) {
	g.commits++
	return g.remaining, nil
}

type mockInvoker struct {
	mu      sync.Mutex
	result  *generation.Result
	err     error
	calls   int
	lastReq generation.Request
}

func (i *mockInvoker) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = i.calls + 1
	i.lastReq = req
	if i.err != nil {
		return nil, i.err
	}
	return i.result, nil
}

type armedMessage struct {
	payload queue.DispatchPayload
	at      time.Time
}

type mockDelayQueue struct {
	mu        sync.Mutex
	armed     []armedMessage
	cancelled []string
	nextID    string
}

func (q *mockDelayQueue) ScheduleDispatchAt(_ context.Context, payload queue.DispatchPayload, at time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.armed = append(q.armed, armedMessage{payload, at})
	if q.nextID == "" {
		return "msg-new", nil
	}
	return q.nextID, nil
}

func (q *mockDelayQueue) CancelDispatch(_ context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, messageID)
	return nil
}

type mockLogs struct {
	mu      sync.Mutex
	entries []models.GenerationLog
}

func (l *mockLogs) Append(_ context.Context, entry *models.GenerationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return nil
}

type mockArticles struct {
	key string
	err error
}

func (a *mockArticles) Put(_ context.Context, _, _ uuid.UUID, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.key, nil
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		BatchSize:              100,
		MaxConcurrency:         4,
		ClaimLease:             15 * time.Minute,
		GenerationTimeout:      time.Minute,
		RetryBaseDelay:         10 * time.Minute,
		RetryMaxDelay:          6 * time.Hour,
		MaxConsecutiveFailures: 5,
	}
}

func dailySchedule() *models.Schedule {
	next := time.Now().Add(-time.Minute)
	msgID := "msg-old"
	return &models.Schedule{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		WebsiteURL:        "https://example.com",
		Frequency:         models.FrequencyDaily,
		TimeOfDay:         "09:00",
		Timezone:          "UTC",
		IsActive:          true,
		NextRunAt:         &next,
		ExternalMessageID: &msgID,
	}
}

func newTestRunner(store *mockStore, gate *mockGate, inv *mockInvoker, dq *mockDelayQueue, logs *mockLogs) *Runner {
	return NewRunner(store, gate, inv, dq, logs, &mockArticles{key: "articles/a/b/1.html"}, testDispatchConfig())
}

func TestRunner_Dispatch_Success(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.Topics = models.StringArray{"seo", "content marketing"}
	store.add(schedule)

	gate := &mockGate{remaining: 9}
	inv := &mockInvoker{result: &generation.Result{JobID: "job-1", Title: "Ten SEO Tips", Content: "<p>...</p>", WordCount: 1200}}
	dq := &mockDelayQueue{}
	logs := &mockLogs{}

	runner := newTestRunner(store, gate, inv, dq, logs)

	outcome, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerWebhook)
	require.NoError(t, err)

	assert.Equal(t, "job-1", outcome.JobID)
	assert.Equal(t, 9, outcome.CreditsRemaining)
	require.NotNil(t, outcome.NextRun)
	assert.True(t, outcome.NextRun.After(time.Now()))

	// Claimed exactly once, credit committed after generation.
	assert.Equal(t, []uuid.UUID{schedule.ID}, store.claims)
	assert.Equal(t, 1, gate.commits)

	// The schedule's topics reach the generation service.
	assert.Equal(t, []string{"seo", "content marketing"}, inv.lastReq.Topics)

	// Re-armed cancel-then-create.
	assert.Equal(t, []string{"msg-old"}, dq.cancelled)
	require.Len(t, dq.armed, 1)
	assert.Equal(t, schedule.ID, dq.armed[0].payload.ScheduleID)
	assert.Equal(t, *outcome.NextRun, dq.armed[0].at)

	require.Len(t, store.successes, 1)
	require.NotNil(t, store.successes[0].messageID)
	assert.Equal(t, "msg-new", *store.successes[0].messageID)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.GenerationStatusSuccess, logs.entries[0].Status)
	assert.Equal(t, models.TriggerWebhook, logs.entries[0].Trigger)
	require.NotNil(t, logs.entries[0].ContentKey)
	assert.Equal(t, models.JSON{"job_id": "job-1", "word_count": 1200}, logs.entries[0].Metadata)
}

func TestRunner_Dispatch_ClaimLost(t *testing.T) {
	store := newMockStore()
	store.claimOK = false
	schedule := dailySchedule()
	store.add(schedule)

	inv := &mockInvoker{}
	runner := newTestRunner(store, &mockGate{}, inv, &mockDelayQueue{}, &mockLogs{})

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerCron)

	require.ErrorIs(t, err, ErrClaimLost)
	assert.Equal(t, 0, inv.calls)
}

func TestRunner_Dispatch_Inactive(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.IsActive = false
	store.add(schedule)

	runner := newTestRunner(store, &mockGate{}, &mockInvoker{}, &mockDelayQueue{}, &mockLogs{})

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerWebhook)
	require.ErrorIs(t, err, ErrScheduleInactive)
	assert.Empty(t, store.claims)
}

func TestRunner_Dispatch_NotArmed(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.NextRunAt = nil
	store.add(schedule)

	runner := newTestRunner(store, &mockGate{}, &mockInvoker{}, &mockDelayQueue{}, &mockLogs{})

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerWebhook)
	require.ErrorIs(t, err, ErrScheduleNotArmed)
}

func TestRunner_Dispatch_CreditsExhausted(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	store.add(schedule)

	gate := &mockGate{reserveErr: ErrCreditsExhausted}
	inv := &mockInvoker{}
	logs := &mockLogs{}

	runner := newTestRunner(store, gate, inv, &mockDelayQueue{}, logs)

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerWebhook)

	require.ErrorIs(t, err, ErrCreditsExhausted)
	assert.Equal(t, 0, inv.calls)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.GenerationStatusFailed, logs.entries[0].Status)
	assert.Equal(t, "credit balance exhausted", logs.entries[0].Message)
}

func TestRunner_Dispatch_FailureSchedulesRetry(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.FailureCount = 1
	store.add(schedule)

	genErr := errors.New("upstream timeout")
	runner := newTestRunner(store, &mockGate{}, &mockInvoker{err: genErr}, &mockDelayQueue{}, &mockLogs{})

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerQueue)
	require.Error(t, err)
	require.ErrorIs(t, err, genErr)

	// Second consecutive failure: retry 20 minutes out, still active.
	require.Len(t, store.failures, 1)
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), store.failures[0].nextRun, 5*time.Second)
	assert.Empty(t, store.deactivated)
}

func TestRunner_Dispatch_AutoPauseAfterMaxFailures(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.FailureCount = 4
	store.add(schedule)

	dq := &mockDelayQueue{}
	logs := &mockLogs{}
	runner := newTestRunner(store, &mockGate{}, &mockInvoker{err: errors.New("boom")}, dq, logs)

	_, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerQueue)
	require.Error(t, err)

	assert.Equal(t, "auto-paused after 5 consecutive failures", store.deactivated[schedule.ID])
	assert.Equal(t, []string{"msg-old"}, dq.cancelled)
	assert.Empty(t, dq.armed)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.GenerationStatusFailed, logs.entries[0].Status)
}

func TestRunner_Dispatch_OneShotCompletes(t *testing.T) {
	store := newMockStore()
	schedule := dailySchedule()
	schedule.Frequency = models.FrequencyOnce
	store.add(schedule)

	dq := &mockDelayQueue{}
	runner := newTestRunner(store, &mockGate{remaining: 2}, &mockInvoker{result: &generation.Result{JobID: "job-9", Content: "x"}}, dq, &mockLogs{})

	outcome, err := runner.Dispatch(context.Background(), schedule.ID, models.TriggerWebhook)
	require.NoError(t, err)

	assert.Nil(t, outcome.NextRun)
	assert.Equal(t, "completed", store.deactivated[schedule.ID])
	assert.Empty(t, dq.armed)

	require.Len(t, store.successes, 1)
	assert.Nil(t, store.successes[0].nextRun)
}

func TestRunner_RunDue(t *testing.T) {
	store := newMockStore()

	good := dailySchedule()
	bad := dailySchedule()
	gone := dailySchedule()
	gone.IsActive = false

	store.add(good)
	store.add(bad)
	store.add(gone)
	store.findDueBatch = []models.Schedule{*good, *bad, *gone}

	inv := &selectiveInvoker{failFor: bad.ID}
	runner := newTestRunner(store, &mockGate{remaining: 5}, nil, &mockDelayQueue{}, &mockLogs{})
	runner.invoker = inv

	summary, err := runner.RunDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Executed)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.Results, 3)
}

func TestRunner_RunDue_CancelWaitsForInflight(t *testing.T) {
	store := newMockStore()

	first := dailySchedule()
	second := dailySchedule()
	store.add(first)
	store.add(second)
	store.findDueBatch = []models.Schedule{*first, *second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newTestRunner(store, &mockGate{}, nil, &mockDelayQueue{}, &mockLogs{})
	runner.cfg.MaxConcurrency = 1
	runner.invoker = &cancellingInvoker{cancel: cancel}

	summary, err := runner.RunDue(ctx)

	require.ErrorIs(t, err, context.Canceled)

	// The in-flight worker finished before the summary was handed back, so
	// its result is present and nothing mutates the summary afterwards.
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, first.ID, summary.Results[0].ScheduleID)
}

func TestRunner_RunDue_Empty(t *testing.T) {
	store := newMockStore()
	runner := newTestRunner(store, &mockGate{}, &mockInvoker{}, &mockDelayQueue{}, &mockLogs{})

	summary, err := runner.RunDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Executed)
	assert.Empty(t, summary.Results)
}

// cancellingInvoker cancels the polling pass from inside the first dispatch,
// then keeps the worker busy long enough for the pass loop to observe the
// cancellation while the worker is still in flight.
type cancellingInvoker struct {
	cancel context.CancelFunc
}

func (i *cancellingInvoker) Generate(_ context.Context, _ generation.Request) (*generation.Result, error) {
	i.cancel()
	time.Sleep(100 * time.Millisecond)
	return nil, errors.New("upstream unavailable")
}

// selectiveInvoker fails only for one schedule, so a polling pass can mix
// outcomes.
type selectiveInvoker struct {
	failFor uuid.UUID
}

func (i *selectiveInvoker) Generate(_ context.Context, req generation.Request) (*generation.Result, error) {
	if req.ScheduleID == i.failFor {
		return nil, errors.New("generation blew up")
	}
	return &generation.Result{JobID: "job-" + req.ScheduleID.String()[:8], Content: "ok"}, nil
}
