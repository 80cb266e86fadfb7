package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"volunteer-checkin-bot/internal/config"
	"volunteer-checkin-bot/internal/gateway"
	"volunteer-checkin-bot/internal/handler"
	"volunteer-checkin-bot/internal/repository"
	"volunteer-checkin-bot/internal/service"
	"volunteer-checkin-bot/pkg/telegram"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	logrus.Info("Initializing config...")
	cfg := config.GetBotConfig()
	logrus.Info("Config initialized...")

	db, err := gorm.Open(sqlite.Open(cfg.DatabaseURL), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true, // SQLite limitation
	})
	if err != nil {
		logrus.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatal("Failed to get database instance:", err)
	}

	// SQLite needs foreign keys switched on per connection
	_, err = sqlDB.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		logrus.Infof("Warning: Failed to enable foreign keys: %v", err)
	}

	stateRepo, err := repository.NewGormAttendanceStateRepository(db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create attendance state repository")
	}

	scanEventRepo, err := repository.NewGormScanEventRepository(db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create scan event repository")
	}

	apiClient := gateway.NewClient(
		cfg.AttendanceAPIURL,
		cfg.AttendanceAPIToken,
		time.Duration(cfg.APITimeoutSeconds)*time.Second,
	)

	attendanceService := service.NewAttendanceService(
		stateRepo,
		scanEventRepo,
		apiClient,
		cfg.DeepLinkScheme,
	)

	client, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		logrus.Fatal("Failed to create Telegram client:", err)
	}

	logrus.Infof("Authorized on account %s", client.Bot.Self.UserName)

	botHandler := handler.NewHandler(
		client,
		attendanceService,
		cfg,
	)

	updates := client.Bot.GetUpdatesChan(client.UpdateConfig)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go botHandler.HandleUpdates(updates)

	logrus.Info("Bot started. Press Ctrl+C to stop.")
	<-stop

	if err := sqlDB.Close(); err != nil {
		logrus.Infof("Error closing database: %v", err)
	}

	logrus.Info("Bot stopped gracefully")
}
