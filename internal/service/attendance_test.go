package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"volunteer-checkin-bot/internal/gateway"
	"volunteer-checkin-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStateRepo is an in-memory AttendanceStateRepository.
type fakeStateRepo struct {
	mu     sync.Mutex
	states map[int64]*models.AttendanceState

	loadErr error
	saveErr error

	saveCalls  int
	clearCalls int
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[int64]*models.AttendanceState)}
}

func (r *fakeStateRepo) Load(chatID int64) (*models.AttendanceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	state, ok := r.states[chatID]
	if !ok {
		return models.NewReadyState(), nil
	}
	copied := *state
	return &copied, nil
}

func (r *fakeStateRepo) Save(chatID int64, state *models.AttendanceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.saveErr != nil {
		return r.saveErr
	}
	copied := *state
	r.states[chatID] = &copied
	return nil
}

func (r *fakeStateRepo) Clear(chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearCalls++
	delete(r.states, chatID)
	return nil
}

// fakeEventRepo records scan events in memory.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.ScanEvent
}

func (r *fakeEventRepo) Create(event *models.ScanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeEventRepo) GetByChatID(chatID int64, limit int) ([]*models.ScanEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ScanEvent
	for _, e := range r.events {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeEventRepo) DeleteByChatID(chatID int64) error { return nil }

// fakeGateway returns a canned outcome or error, optionally blocking until
// released so tests can hold a request in flight.
type fakeGateway struct {
	mu      sync.Mutex
	outcome *models.TransitionOutcome
	err     error

	submitCalls int
	manualCalls int

	blockCh chan struct{}
}

func (g *fakeGateway) SubmitToken(ctx context.Context, token string, clientTime time.Time) (*models.TransitionOutcome, error) {
	g.mu.Lock()
	g.submitCalls++
	block := g.blockCh
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if g.err != nil {
		return nil, g.err
	}
	out := *g.outcome
	return &out, nil
}

func (g *fakeGateway) ManualCheckOut(ctx context.Context, recordID string, clientTime time.Time) (*models.TransitionOutcome, error) {
	g.mu.Lock()
	g.manualCalls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := *g.outcome
	return &out, nil
}

const testChatID int64 = 42

func newTestService(repo *fakeStateRepo, events *fakeEventRepo, gw *fakeGateway) *AttendanceService {
	s := NewAttendanceService(repo, events, gw, "volunteerapp")
	s.logger.SetOutput(io.Discard)
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSubmitScanCheckIn(t *testing.T) {
	serverTime := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	events := &fakeEventRepo{}
	gw := &fakeGateway{outcome: &models.TransitionOutcome{
		Action:      models.ActionCheckIn,
		RecordID:    "42",
		ProjectName: "AI Camp",
		ServerTime:  serverTime,
	}}

	s := newTestService(repo, events, gw)
	s.now = fixedClock(serverTime)

	result := s.SubmitScan(context.Background(), testChatID, "volunteerapp://checkin/T123")

	require.True(t, result.OK)
	assert.Equal(t, models.ActionCheckIn, result.Kind)
	assert.Equal(t, "AI Camp", result.ProjectName)
	assert.Equal(t, serverTime, result.At)

	state, err := repo.Load(testChatID)
	require.NoError(t, err)
	require.True(t, state.IsCheckedIn())
	assert.Equal(t, "42", *state.ActiveRecordID)
	assert.Equal(t, "AI Camp", *state.ActiveProjectName)
	assert.Equal(t, serverTime, *state.CheckedInAt)
	assert.True(t, state.IsValid())
}

func TestSubmitScanCheckOut(t *testing.T) {
	now := time.Date(2026, 8, 28, 17, 30, 0, 0, time.Local)
	checkedInAt := now.Add(-3 * time.Hour)

	repo := newFakeStateRepo()
	repo.states[testChatID] = models.NewCheckedInState("42", "AI Camp", checkedInAt)

	hoursWorked := 3.5
	totalHours := 10.0
	events := &fakeEventRepo{}
	gw := &fakeGateway{outcome: &models.TransitionOutcome{
		Action:      models.ActionCheckOut,
		RecordID:    "42",
		ProjectName: "AI Camp",
		ServerTime:  now,
		HoursWorked: &hoursWorked,
		TotalHours:  &totalHours,
	}}

	s := newTestService(repo, events, gw)
	s.now = fixedClock(now)

	result := s.SubmitScan(context.Background(), testChatID, "T123")

	require.True(t, result.OK)
	assert.Equal(t, models.ActionCheckOut, result.Kind)
	require.NotNil(t, result.HoursWorked)
	assert.InDelta(t, 3.5, *result.HoursWorked, 0.001)
	require.NotNil(t, result.TotalHours)
	assert.InDelta(t, 10.0, *result.TotalHours, 0.001)

	state, err := repo.Load(testChatID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeReadyToCheckIn, state.Mode)
	assert.Nil(t, state.ActiveRecordID)
	assert.Nil(t, state.ActiveProjectName)
	assert.Nil(t, state.CheckedInAt)
	require.NotNil(t, state.LastAction)
	assert.Equal(t, models.ActionCheckOut, state.LastAction.Kind)
	assert.Equal(t, "AI Camp", state.LastAction.ProjectName)
	assert.Equal(t, now, state.LastAction.At)
}

// A gateway failure must leave the persisted state exactly as it was.
func TestSubmitScanGatewayFailureLeavesStateUntouched(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.Local)
	checkedInAt := now.Add(-time.Hour)

	repo := newFakeStateRepo()
	repo.states[testChatID] = models.NewCheckedInState("42", "AI Camp", checkedInAt)

	gw := &fakeGateway{err: errors.New("connection reset")}

	s := newTestService(repo, &fakeEventRepo{}, gw)
	s.now = fixedClock(now)

	result := s.SubmitScan(context.Background(), testChatID, "T123")

	require.False(t, result.OK)
	assert.NotEmpty(t, result.FailReason)
	assert.Zero(t, repo.saveCalls)

	state, err := repo.Load(testChatID)
	require.NoError(t, err)
	require.True(t, state.IsCheckedIn())
	assert.Equal(t, "42", *state.ActiveRecordID)
}

// Server rejections surface the backend's message verbatim.
func TestSubmitScanRejectedSurfacesServerMessage(t *testing.T) {
	repo := newFakeStateRepo()
	gw := &fakeGateway{err: &gateway.RejectedError{StatusCode: 409, Message: "already checked out"}}

	s := newTestService(repo, &fakeEventRepo{}, gw)

	result := s.SubmitScan(context.Background(), testChatID, "T123")

	require.False(t, result.OK)
	assert.Equal(t, "already checked out", result.FailReason)
	assert.Zero(t, repo.saveCalls)
}

func TestManualCheckOut(t *testing.T) {
	now := time.Date(2026, 8, 28, 18, 0, 0, 0, time.Local)
	checkedInAt := now.Add(-4 * time.Hour)

	repo := newFakeStateRepo()
	repo.states[testChatID] = models.NewCheckedInState("42", "AI Camp", checkedInAt)

	// Backend returns no hours for manual check-outs.
	gw := &fakeGateway{outcome: &models.TransitionOutcome{
		Action:     models.ActionCheckOut,
		ServerTime: now,
	}}

	s := newTestService(repo, &fakeEventRepo{}, gw)
	s.now = fixedClock(now)

	result := s.ManualCheckOut(context.Background(), testChatID)

	require.True(t, result.OK)
	assert.Equal(t, models.ActionCheckOut, result.Kind)
	assert.Equal(t, "AI Camp", result.ProjectName)
	assert.Nil(t, result.HoursWorked)
	assert.Equal(t, 1, gw.manualCalls)

	state, err := repo.Load(testChatID)
	require.NoError(t, err)
	assert.Equal(t, models.ModeReadyToCheckIn, state.Mode)
	assert.Nil(t, state.ActiveRecordID)
}

func TestManualCheckOutRequiresCheckedIn(t *testing.T) {
	repo := newFakeStateRepo()
	gw := &fakeGateway{}

	s := newTestService(repo, &fakeEventRepo{}, gw)

	result := s.ManualCheckOut(context.Background(), testChatID)

	require.False(t, result.OK)
	assert.Equal(t, reasonNotCheckedIn, result.FailReason)
	assert.Zero(t, gw.manualCalls)
}

// A checked-in state from yesterday is abandoned: the load returns the
// default and the store row is cleared.
func TestCurrentStateCrossDayInvalidation(t *testing.T) {
	now := time.Date(2026, 8, 28, 8, 0, 0, 0, time.Local)
	yesterday := time.Date(2026, 8, 27, 23, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	repo.states[testChatID] = models.NewCheckedInState("42", "AI Camp", yesterday)

	s := newTestService(repo, &fakeEventRepo{}, &fakeGateway{})
	s.now = fixedClock(now)

	state := s.CurrentState(testChatID)

	assert.Equal(t, models.ModeReadyToCheckIn, state.Mode)
	assert.Nil(t, state.ActiveRecordID)
	assert.Nil(t, state.ActiveProjectName)
	assert.Nil(t, state.CheckedInAt)
	assert.Equal(t, 1, repo.clearCalls)

	_, stored := repo.states[testChatID]
	assert.False(t, stored)
}

func TestCurrentStateSameDaySurvives(t *testing.T) {
	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.Local)
	morning := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	repo.states[testChatID] = models.NewCheckedInState("42", "AI Camp", morning)

	s := newTestService(repo, &fakeEventRepo{}, &fakeGateway{})
	s.now = fixedClock(now)

	state := s.CurrentState(testChatID)

	require.True(t, state.IsCheckedIn())
	assert.Equal(t, "AI Camp", *state.ActiveProjectName)
	assert.Zero(t, repo.clearCalls)
}

// Storage trouble degrades to the empty default, never to an error the
// volunteer sees.
func TestCurrentStateStorageErrorFallsBackToDefault(t *testing.T) {
	repo := newFakeStateRepo()
	repo.loadErr = errors.New("disk I/O error")

	s := newTestService(repo, &fakeEventRepo{}, &fakeGateway{})

	state := s.CurrentState(testChatID)

	assert.Equal(t, models.ModeReadyToCheckIn, state.Mode)
	assert.True(t, state.IsValid())
}

// Two scans racing each other must produce exactly one gateway call; the
// loser is dropped with a busy result.
func TestSubmitScanReentrancy(t *testing.T) {
	serverTime := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	gw := &fakeGateway{
		outcome: &models.TransitionOutcome{
			Action:      models.ActionCheckIn,
			RecordID:    "42",
			ProjectName: "AI Camp",
			ServerTime:  serverTime,
		},
		blockCh: make(chan struct{}),
	}

	s := newTestService(repo, &fakeEventRepo{}, gw)
	s.now = fixedClock(serverTime)

	firstDone := make(chan *TransitionResult, 1)
	go func() {
		firstDone <- s.SubmitScan(context.Background(), testChatID, "T123")
	}()

	// Wait until the first request is inside the gateway call.
	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.submitCalls == 1
	}, time.Second, time.Millisecond)

	second := s.SubmitScan(context.Background(), testChatID, "T123")
	require.False(t, second.OK)
	assert.True(t, second.Busy)

	close(gw.blockCh)
	first := <-firstDone
	require.True(t, first.OK)

	assert.Equal(t, 1, gw.submitCalls)

	// The lock was released, so the next scan goes through again.
	gw.blockCh = nil
	third := s.SubmitScan(context.Background(), testChatID, "T123")
	assert.False(t, third.Busy)
}

// Requests for different chats do not block each other.
func TestInFlightLockIsPerChat(t *testing.T) {
	serverTime := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	gw := &fakeGateway{
		outcome: &models.TransitionOutcome{
			Action:      models.ActionCheckIn,
			RecordID:    "1",
			ProjectName: "AI Camp",
			ServerTime:  serverTime,
		},
		blockCh: make(chan struct{}),
	}

	s := newTestService(repo, &fakeEventRepo{}, gw)
	s.now = fixedClock(serverTime)

	firstDone := make(chan *TransitionResult, 1)
	go func() {
		firstDone <- s.SubmitScan(context.Background(), testChatID, "T123")
	}()

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.submitCalls == 1
	}, time.Second, time.Millisecond)

	// A different chat acquires its own slot.
	assert.True(t, s.tryAcquire(testChatID+1))
	s.release(testChatID + 1)

	close(gw.blockCh)
	<-firstDone
}

// Successful transitions are appended to the local history log.
func TestTransitionsRecordScanEvents(t *testing.T) {
	serverTime := time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)

	repo := newFakeStateRepo()
	events := &fakeEventRepo{}
	gw := &fakeGateway{outcome: &models.TransitionOutcome{
		Action:      models.ActionCheckIn,
		RecordID:    "42",
		ProjectName: "AI Camp",
		ServerTime:  serverTime,
	}}

	s := newTestService(repo, events, gw)
	s.now = fixedClock(serverTime)

	result := s.SubmitScan(context.Background(), testChatID, "T123")
	require.True(t, result.OK)

	history, err := s.GetHistory(testChatID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionCheckIn, history[0].Kind)
	assert.Equal(t, "AI Camp", history[0].ProjectName)
	assert.Equal(t, serverTime, history[0].OccurredAt)
}
