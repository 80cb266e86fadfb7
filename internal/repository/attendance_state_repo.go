package repository

import (
	"encoding/json"
	"errors"

	"volunteer-checkin-bot/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AttendanceStateRepository persists the per-chat attendance snapshot.
// Load never fails the caller with a bad payload: anything missing or
// unparsable comes back as the empty ready-to-check-in default, because
// worst case the volunteer just scans again.
type AttendanceStateRepository interface {
	Load(chatID int64) (*models.AttendanceState, error)
	Save(chatID int64, state *models.AttendanceState) error
	Clear(chatID int64) error
}

type GormAttendanceStateRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormAttendanceStateRepository(db *gorm.DB) (*GormAttendanceStateRepository, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if err := db.AutoMigrate(&models.AttendanceStateRecord{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate attendance_states table")
		return nil, err
	}

	logger.Info("Attendance state repository initialized")

	return &GormAttendanceStateRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *GormAttendanceStateRepository) Load(chatID int64) (*models.AttendanceState, error) {
	var record models.AttendanceStateRecord
	result := r.db.First(&record, "chat_id = ?", chatID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		r.logger.WithField("chat_id", chatID).Debug("No stored attendance state, using default")
		return models.NewReadyState(), nil
	}

	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to load attendance state")
		return nil, result.Error
	}

	var state models.AttendanceState
	if err := json.Unmarshal([]byte(record.Payload), &state); err != nil {
		r.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
		}).WithError(err).Warn("Stored attendance state is unparsable, using default")
		return models.NewReadyState(), nil
	}

	// A payload whose fields disagree with its mode is as good as garbage.
	if !state.IsValid() {
		r.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"mode":    state.Mode,
		}).Warn("Stored attendance state is inconsistent, using default")
		return models.NewReadyState(), nil
	}

	return &state, nil
}

func (r *GormAttendanceStateRepository) Save(chatID int64, state *models.AttendanceState) error {
	if state == nil || !state.IsValid() {
		r.logger.WithField("chat_id", chatID).Warn("Refusing to save inconsistent attendance state")
		return errors.New("inconsistent attendance state")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal attendance state")
		return err
	}

	record := models.AttendanceStateRecord{
		ChatID:  chatID,
		Payload: string(payload),
	}

	// Single upsert so a concurrent reader sees either the old row or the
	// new one, never a half-written value.
	result := r.db.Save(&record)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to save attendance state")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"mode":    state.Mode,
	}).Info("Attendance state saved")

	return nil
}

func (r *GormAttendanceStateRepository) Clear(chatID int64) error {
	result := r.db.Delete(&models.AttendanceStateRecord{}, "chat_id = ?", chatID)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to clear attendance state")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":       chatID,
		"rows_affected": result.RowsAffected,
	}).Info("Attendance state cleared")

	return nil
}
