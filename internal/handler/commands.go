package handler

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (h *Handler) handleCommand(message *tgbotapi.Message) {
	command := message.Command()

	switch command {
	case "start":
		h.sendStartMessage(message)
	case "help":
		h.sendHelpMessage(message)
	case "status", "today":
		h.showStatus(message.Chat.ID)
	case "checkout", "out":
		h.startManualCheckOut(message)
	case "history":
		h.showHistory(message)
	default:
		h.sendUnknownCommand(message)
	}
}

func (h *Handler) sendStartMessage(message *tgbotapi.Message) {
	text := `👋 Welcome to the volunteer check-in bot!

Scan the QR code at your project site and send me what it says -
the link or the code itself, either works.

📷 Send a scanned code to check in or out
📊 /status - am I checked in right now?
🚪 /checkout - check out without scanning
📋 /history - your recent check-ins and check-outs
❓ /help - all commands`

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	h.client.Bot.Send(msg)
}

func (h *Handler) sendHelpMessage(message *tgbotapi.Message) {
	text := `📖 Commands:

📷 Send a scanned QR payload (link or bare code) to check in or out.
The server decides which one it is, so the same code works both ways.

/status - current attendance status
/checkout - manual check-out when scanning isn't practical
/history - recent transitions recorded on this device
/help - this message`

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	h.client.Bot.Send(msg)
}

func (h *Handler) sendUnknownCommand(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, "❌ Unknown command. Use /help for the list of commands.")
	h.client.Bot.Send(msg)
}
