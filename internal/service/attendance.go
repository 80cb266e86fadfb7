package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"volunteer-checkin-bot/internal/gateway"
	"volunteer-checkin-bot/internal/models"
	"volunteer-checkin-bot/internal/repository"
	"volunteer-checkin-bot/pkg/qrtoken"

	"github.com/sirupsen/logrus"
)

// User-facing failure reasons. Server rejections carry the backend's own
// message instead.
const (
	reasonBusy         = "still working on your previous request, one moment"
	reasonUnreachable  = "couldn't reach the attendance service, please try again"
	reasonNotCheckedIn = "you're not checked in right now"
)

// TransitionResult is what a scan or manual check-out produces for the UI.
// Either OK with display fields, or FailReason. Gateway and storage errors
// never leave this layer as raw errors.
type TransitionResult struct {
	OK         bool
	FailReason string

	// Busy marks the result of an input dropped because another request
	// for the same chat was still in flight.
	Busy bool

	Kind        models.ActionKind
	ProjectName string
	At          time.Time

	// Present on check-out when the backend reports them.
	HoursWorked *float64
	TotalHours  *float64
}

// AttendanceService is the check-in/check-out state machine. It is the only
// writer of the attendance state store: load state, validate freshness,
// submit the transition, and persist the new state only after the backend
// confirmed it.
type AttendanceService struct {
	stateRepo  repository.AttendanceStateRepository
	eventRepo  repository.ScanEventRepository
	gateway    gateway.AttendanceGateway
	deepScheme string
	logger     *logrus.Logger

	// now is swapped out in tests to pin the calendar day.
	now func() time.Time

	mu       sync.Mutex
	inFlight map[int64]bool
}

func NewAttendanceService(
	stateRepo repository.AttendanceStateRepository,
	eventRepo repository.ScanEventRepository,
	gw gateway.AttendanceGateway,
	deepLinkScheme string,
) *AttendanceService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &AttendanceService{
		stateRepo:  stateRepo,
		eventRepo:  eventRepo,
		gateway:    gw,
		deepScheme: deepLinkScheme,
		logger:     logger,
		now:        time.Now,
		inFlight:   make(map[int64]bool),
	}
}

// CurrentState returns the chat's attendance state after cross-day
// invalidation. Storage trouble is never surfaced: the caller gets the
// ready-to-check-in default and the volunteer simply scans again.
func (s *AttendanceService) CurrentState(chatID int64) *models.AttendanceState {
	return s.loadFresh(chatID)
}

// loadFresh loads the persisted state and applies the one implicit
// transition in the machine: a checked-in state from a previous local
// calendar day is an abandoned session and is discarded, store included.
// A volunteer who forgot to check out overnight must not silently accrue
// unbounded hours.
func (s *AttendanceService) loadFresh(chatID int64) *models.AttendanceState {
	state, err := s.stateRepo.Load(chatID)
	if err != nil {
		s.logger.WithField("chat_id", chatID).WithError(err).Warn("Failed to load attendance state, using default")
		return models.NewReadyState()
	}

	if state.IsCheckedIn() && !state.CheckedInOn(s.now()) {
		s.logger.WithFields(logrus.Fields{
			"chat_id":       chatID,
			"checked_in_at": state.CheckedInAt.Format("2006-01-02 15:04"),
		}).Info("Discarding stale cross-day attendance state")

		if err := s.stateRepo.Clear(chatID); err != nil {
			s.logger.WithError(err).Warn("Failed to clear stale attendance state")
		}
		return models.NewReadyState()
	}

	return state
}

// SubmitScan runs a scanned QR payload through the state machine. Whether
// it means check-in or check-out is the backend's call; the client never
// pre-commits to a direction, so it cannot diverge from server truth.
func (s *AttendanceService) SubmitScan(ctx context.Context, chatID int64, raw string) *TransitionResult {
	if !s.tryAcquire(chatID) {
		s.logger.WithField("chat_id", chatID).Debug("Scan dropped, request already in flight")
		return &TransitionResult{FailReason: reasonBusy, Busy: true}
	}
	defer s.release(chatID)

	token := qrtoken.Extract(s.deepScheme, raw)
	now := s.now()

	s.logger.WithField("chat_id", chatID).Info("Submitting scan")

	outcome, err := s.gateway.SubmitToken(ctx, token, now)
	if err != nil {
		return s.failure(chatID, err)
	}

	switch outcome.Action {
	case models.ActionCheckIn:
		return s.applyCheckIn(chatID, outcome)
	default:
		return s.applyCheckOut(chatID, outcome, now)
	}
}

// ManualCheckOut closes the open session without a scan. The handler layer
// is responsible for the explicit confirmation step before calling this.
func (s *AttendanceService) ManualCheckOut(ctx context.Context, chatID int64) *TransitionResult {
	if !s.tryAcquire(chatID) {
		s.logger.WithField("chat_id", chatID).Debug("Manual check-out dropped, request already in flight")
		return &TransitionResult{FailReason: reasonBusy, Busy: true}
	}
	defer s.release(chatID)

	state := s.loadFresh(chatID)
	if !state.IsCheckedIn() {
		return &TransitionResult{FailReason: reasonNotCheckedIn}
	}

	now := s.now()

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"record_id": *state.ActiveRecordID,
	}).Info("Submitting manual check-out")

	outcome, err := s.gateway.ManualCheckOut(ctx, *state.ActiveRecordID, now)
	if err != nil {
		return s.failure(chatID, err)
	}

	if outcome.ProjectName == "" {
		outcome.ProjectName = *state.ActiveProjectName
	}
	if outcome.RecordID == "" {
		outcome.RecordID = *state.ActiveRecordID
	}

	return s.applyCheckOut(chatID, outcome, now)
}

// applyCheckIn persists the new open session. The write happens strictly
// after gateway success; a crash in between at worst re-shows the check-in
// prompt and the backend reconciles the duplicate scan.
func (s *AttendanceService) applyCheckIn(chatID int64, outcome *models.TransitionOutcome) *TransitionResult {
	newState := models.NewCheckedInState(outcome.RecordID, outcome.ProjectName, outcome.ServerTime)

	if err := s.stateRepo.Save(chatID, newState); err != nil {
		// Server already accepted the check-in, so report success; the
		// next load resyncs through a re-scan.
		s.logger.WithField("chat_id", chatID).WithError(err).Warn("Check-in succeeded but state save failed")
	}

	s.recordEvent(&models.ScanEvent{
		ChatID:      chatID,
		Kind:        models.ActionCheckIn,
		RecordID:    outcome.RecordID,
		ProjectName: outcome.ProjectName,
		OccurredAt:  outcome.ServerTime,
	})

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"record_id": outcome.RecordID,
		"project":   outcome.ProjectName,
	}).Info("Checked in")

	return &TransitionResult{
		OK:          true,
		Kind:        models.ActionCheckIn,
		ProjectName: outcome.ProjectName,
		At:          outcome.ServerTime,
	}
}

// applyCheckOut clears the open session, keeping the completed action
// around so the UI can still show what just finished.
func (s *AttendanceService) applyCheckOut(chatID int64, outcome *models.TransitionOutcome, now time.Time) *TransitionResult {
	newState := models.NewReadyState()
	newState.LastAction = &models.CompletedAction{
		Kind:        models.ActionCheckOut,
		ProjectName: outcome.ProjectName,
		At:          now,
	}

	if err := s.stateRepo.Save(chatID, newState); err != nil {
		s.logger.WithField("chat_id", chatID).WithError(err).Warn("Check-out succeeded but state save failed")
	}

	s.recordEvent(&models.ScanEvent{
		ChatID:      chatID,
		Kind:        models.ActionCheckOut,
		RecordID:    outcome.RecordID,
		ProjectName: outcome.ProjectName,
		HoursWorked: outcome.HoursWorked,
		TotalHours:  outcome.TotalHours,
		OccurredAt:  now,
	})

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"project": outcome.ProjectName,
	}).Info("Checked out")

	return &TransitionResult{
		OK:          true,
		Kind:        models.ActionCheckOut,
		ProjectName: outcome.ProjectName,
		At:          now,
		HoursWorked: outcome.HoursWorked,
		TotalHours:  outcome.TotalHours,
	}
}

// failure maps a gateway error to a user-facing result. State is never
// mutated on any failure path.
func (s *AttendanceService) failure(chatID int64, err error) *TransitionResult {
	var rejected *gateway.RejectedError
	if errors.As(err, &rejected) {
		s.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"status":  rejected.StatusCode,
		}).Warn("Backend rejected attendance transition")
		return &TransitionResult{FailReason: rejected.Error()}
	}

	s.logger.WithField("chat_id", chatID).WithError(err).Warn("Attendance transition failed")
	return &TransitionResult{FailReason: reasonUnreachable}
}

// GetHistory returns the most recent locally logged transitions.
func (s *AttendanceService) GetHistory(chatID int64, limit int) ([]*models.ScanEvent, error) {
	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"limit":   limit,
	}).Debug("Getting scan history")

	return s.eventRepo.GetByChatID(chatID, limit)
}

func (s *AttendanceService) recordEvent(event *models.ScanEvent) {
	// History is best-effort; a logging failure never fails a transition
	// the backend already confirmed.
	if err := s.eventRepo.Create(event); err != nil {
		s.logger.WithField("chat_id", event.ChatID).WithError(err).Warn("Failed to record scan event")
	}
}

// tryAcquire takes the per-chat in-flight slot. At most one attendance-
// mutating request can be outstanding per chat, so a camera double-fire
// cannot start two concurrent check-ins.
func (s *AttendanceService) tryAcquire(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[chatID] {
		return false
	}
	s.inFlight[chatID] = true
	return true
}

func (s *AttendanceService) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, chatID)
}
