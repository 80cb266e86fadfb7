package config

import (
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type BotConfig struct {
	TelegramToken      string
	AttendanceAPIURL   string
	AttendanceAPIToken string
	DatabaseURL        string
	DeepLinkScheme     string
	HistoryLimit       int
	APITimeoutSeconds  int
}

var instance *BotConfig
var once sync.Once

func GetBotConfig() *BotConfig {
	once.Do(func() {
		instance = &BotConfig{}

		if err := godotenv.Load(); err != nil {
			logrus.Fatalf("error loading env variables: %s", err.Error())
		}

		instance.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
		if instance.TelegramToken == "" {
			logrus.Fatal("could not get bot token")
		}

		instance.AttendanceAPIURL = getEnv("ATTENDANCE_API_URL", "")
		if instance.AttendanceAPIURL == "" {
			logrus.Fatal("could not get attendance API url")
		}

		instance.AttendanceAPIToken = getEnv("ATTENDANCE_API_TOKEN", "")
		if instance.AttendanceAPIToken == "" {
			logrus.Fatal("could not get attendance API token")
		}

		instance.DatabaseURL = getEnv("DATABASE_URL", "")
		if instance.DatabaseURL == "" {
			logrus.Fatal("could not get db url")
		}

		instance.DeepLinkScheme = getEnv("DEEP_LINK_SCHEME", "volunteerapp")
		instance.HistoryLimit = int(getEnvAsInt("HISTORY_LIMIT", 10))
		instance.APITimeoutSeconds = int(getEnvAsInt("API_TIMEOUT_SECONDS", 30))
	})

	return instance
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultVal
}

func getEnvAsInt(name string, defaultVal int64) int64 {
	valStr := getEnv(name, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return int64(val)
	}

	return defaultVal
}
