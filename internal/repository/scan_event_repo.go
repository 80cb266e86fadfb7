package repository

import (
	"errors"

	"volunteer-checkin-bot/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ScanEventRepository interface {
	Create(event *models.ScanEvent) error
	GetByChatID(chatID int64, limit int) ([]*models.ScanEvent, error)
	DeleteByChatID(chatID int64) error
}

type GormScanEventRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormScanEventRepository(db *gorm.DB) (*GormScanEventRepository, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if err := db.AutoMigrate(&models.ScanEvent{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate scan_events table")
		return nil, err
	}

	logger.Info("Scan event repository initialized")

	return &GormScanEventRepository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *GormScanEventRepository) Create(event *models.ScanEvent) error {
	if !event.IsValid() {
		r.logger.WithFields(logrus.Fields{
			"chat_id": event.ChatID,
			"kind":    event.Kind,
		}).Warn("Invalid scan event data")
		return errors.New("invalid scan event data")
	}

	result := r.db.Create(event)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to create scan event")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"id":      event.ID,
		"chat_id": event.ChatID,
		"kind":    event.Kind,
		"project": event.ProjectName,
	}).Info("Scan event recorded")

	return nil
}

func (r *GormScanEventRepository) GetByChatID(chatID int64, limit int) ([]*models.ScanEvent, error) {
	var events []*models.ScanEvent

	query := r.db.Where("chat_id = ?", chatID).Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	result := query.Find(&events)
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to get scan events")
		return nil, result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"count":   len(events),
		"limit":   limit,
	}).Debug("Retrieved scan events")

	return events, nil
}

func (r *GormScanEventRepository) DeleteByChatID(chatID int64) error {
	result := r.db.Where("chat_id = ?", chatID).Delete(&models.ScanEvent{})
	if result.Error != nil {
		r.logger.WithError(result.Error).Error("Failed to delete scan events")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":       chatID,
		"rows_affected": result.RowsAffected,
	}).Info("Scan events deleted")

	return nil
}
