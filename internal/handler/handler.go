package handler

import (
	"context"

	"volunteer-checkin-bot/internal/config"
	"volunteer-checkin-bot/internal/service"
	"volunteer-checkin-bot/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	client            *telegram.Client
	attendanceService *service.AttendanceService
	config            *config.BotConfig
}

func NewHandler(
	client *telegram.Client,
	attendanceService *service.AttendanceService,
	cfg *config.BotConfig,
) *Handler {
	return &Handler{
		client:            client,
		attendanceService: attendanceService,
		config:            cfg,
	}
}

func (h *Handler) HandleUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		// Inline keyboard taps (check-out confirmation)
		if update.CallbackQuery != nil {
			h.handleCallbackQuery(update.CallbackQuery)
			continue
		}

		if update.Message == nil {
			continue
		}

		h.handleMessage(update.Message)
	}
}

// handleCallbackQuery routes inline button taps.
func (h *Handler) handleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	data := callback.Data

	// Remove the keyboard so the confirmation cannot be tapped twice.
	editMsg := tgbotapi.NewEditMessageReplyMarkup(chatID, callback.Message.MessageID, tgbotapi.NewInlineKeyboardMarkup())
	h.client.Bot.Send(editMsg)

	switch data {
	case "confirm_checkout":
		h.performManualCheckOut(chatID)
	case "cancel_checkout":
		msg := tgbotapi.NewMessage(chatID, "❌ Check-out cancelled. You're still on duty.")
		h.client.Bot.Send(msg)
	case "command_status":
		h.showStatus(chatID)
	}

	// Answer the callback so the button stops spinning.
	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	h.client.Bot.Send(callbackConfig)
}

func (h *Handler) handleMessage(message *tgbotapi.Message) {
	logrus.Infof("[%s] %s", message.From.UserName, message.Text)

	if message.IsCommand() {
		h.handleCommand(message)
		return
	}

	// Any non-command text is treated as a scanned QR payload: a deep
	// link, a web URL, or a bare token pasted by the volunteer.
	h.handleScan(message)
}

// ctx returns the request context for outbound API calls. Timeouts live in
// the gateway's HTTP client.
func (h *Handler) ctx() context.Context {
	return context.Background()
}
