package handler

import (
	"fmt"
	"strconv"
	"strings"

	"volunteer-checkin-bot/internal/models"
	"volunteer-checkin-bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// handleScan feeds a scanned QR payload into the state machine.
func (h *Handler) handleScan(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	raw := strings.TrimSpace(message.Text)
	if raw == "" {
		msg := tgbotapi.NewMessage(chatID, "🤔 That message was empty. Send me the scanned code or link.")
		h.client.Bot.Send(msg)
		return
	}

	result := h.attendanceService.SubmitScan(h.ctx(), chatID, raw)

	if !result.OK {
		if result.Busy {
			msg := tgbotapi.NewMessage(chatID, "⏳ "+result.FailReason)
			h.client.Bot.Send(msg)
			return
		}
		msg := tgbotapi.NewMessage(chatID, "❌ Scan failed: "+result.FailReason+"\n\nPlease try scanning again.")
		h.client.Bot.Send(msg)
		return
	}

	if result.Kind == models.ActionCheckIn {
		h.sendCheckInConfirmation(chatID, result.ProjectName, result.At.Local().Format("15:04"))
		return
	}

	h.sendCheckOutConfirmation(chatID, result)
}

func (h *Handler) sendCheckInConfirmation(chatID int64, projectName, inTime string) {
	response := fmt.Sprintf(
		`✅ You're checked in!

📌 Project: %s
⏰ Since: %s

💡 Scan the code again when you leave, or use /checkout`,
		projectName,
		inTime,
	)

	msg := tgbotapi.NewMessage(chatID, response)

	inlineKeyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"📊 My status",
				"command_status",
			),
		),
	)
	msg.ReplyMarkup = inlineKeyboard

	h.client.Bot.Send(msg)
}

func (h *Handler) sendCheckOutConfirmation(chatID int64, result *service.TransitionResult) {
	response := fmt.Sprintf(
		`✅ You're checked out!

📌 Project: %s
⏰ At: %s`,
		result.ProjectName,
		result.At.Local().Format("15:04"),
	)

	if result.HoursWorked != nil {
		response += fmt.Sprintf("\n⏳ Worked today: %s", models.FormatHours(*result.HoursWorked))
	}
	if result.TotalHours != nil {
		response += fmt.Sprintf("\n📈 Total volunteer hours: %s", models.FormatHours(*result.TotalHours))
	}
	if result.HoursWorked == nil {
		response += "\n\n💡 Your hours will appear in the history a bit later."
	}

	response += "\n\n🙏 Thank you for volunteering!"

	msg := tgbotapi.NewMessage(chatID, response)
	h.client.Bot.Send(msg)
}

// showStatus answers /status with the mode hint driving the UI copy.
func (h *Handler) showStatus(chatID int64) {
	state := h.attendanceService.CurrentState(chatID)

	if state.IsCheckedIn() {
		response := fmt.Sprintf(
			`🟢 You're checked in.

📌 Project: %s
⏰ Since: %s

📷 Scan the QR code to check out, or use /checkout`,
			*state.ActiveProjectName,
			state.CheckedInAt.Local().Format("15:04"),
		)
		msg := tgbotapi.NewMessage(chatID, response)
		h.client.Bot.Send(msg)
		return
	}

	response := "⚪ You're not checked in.\n\n📷 Scan the QR code at your project site to check in."

	if state.LastAction != nil && state.LastAction.Kind == models.ActionCheckOut {
		response += fmt.Sprintf(
			"\n\n🕒 Last check-out: %s at %s",
			state.LastAction.ProjectName,
			state.LastAction.At.Local().Format("02.01.2006 15:04"),
		)
	}

	msg := tgbotapi.NewMessage(chatID, response)
	h.client.Bot.Send(msg)
}

// startManualCheckOut asks for confirmation before closing the session.
// The actual gateway call only happens from the confirm callback.
func (h *Handler) startManualCheckOut(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	state := h.attendanceService.CurrentState(chatID)
	if !state.IsCheckedIn() {
		msg := tgbotapi.NewMessage(chatID, "⚪ You're not checked in, nothing to check out from.")
		h.client.Bot.Send(msg)
		return
	}

	response := fmt.Sprintf(
		`🚪 Check out of %s without scanning?

⏰ Checked in since: %s`,
		*state.ActiveProjectName,
		state.CheckedInAt.Local().Format("15:04"),
	)

	msg := tgbotapi.NewMessage(chatID, response)

	inlineKeyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, check out", "confirm_checkout"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel_checkout"),
		),
	)
	msg.ReplyMarkup = inlineKeyboard

	h.client.Bot.Send(msg)
}

func (h *Handler) performManualCheckOut(chatID int64) {
	result := h.attendanceService.ManualCheckOut(h.ctx(), chatID)

	if !result.OK {
		if result.Busy {
			msg := tgbotapi.NewMessage(chatID, "⏳ "+result.FailReason)
			h.client.Bot.Send(msg)
			return
		}
		msg := tgbotapi.NewMessage(chatID, "❌ Check-out failed: "+result.FailReason)
		h.client.Bot.Send(msg)
		return
	}

	h.sendCheckOutConfirmation(chatID, result)
}

// showHistory lists recent transitions recorded on this device.
func (h *Handler) showHistory(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	limit := h.config.HistoryLimit
	if args := strings.TrimSpace(message.CommandArguments()); args != "" {
		if n, err := strconv.Atoi(args); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.attendanceService.GetHistory(chatID, limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get scan history")
		msg := tgbotapi.NewMessage(chatID, "❌ Couldn't load your history, please try again.")
		h.client.Bot.Send(msg)
		return
	}

	if len(events) == 0 {
		msg := tgbotapi.NewMessage(chatID, "📭 No check-ins recorded on this device yet.")
		h.client.Bot.Send(msg)
		return
	}

	var result strings.Builder
	result.WriteString("📋 Recent attendance:\n\n")
	for i, event := range events {
		fmt.Fprintf(&result, "%d. %s\n", i+1, event.FormatLine())
	}

	msg := tgbotapi.NewMessage(chatID, result.String())
	h.client.Bot.Send(msg)
}
