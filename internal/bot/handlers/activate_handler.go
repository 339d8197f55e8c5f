package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/moalhelu/dejavplus-bots/internal/store"
)

const defaultActivationDays = 30

// NewActivateHandler returns a handler for the admin /activate command.
// Usage: /activate <user_id> [days]
func NewActivateHandler(deps HandlerDeps) bot.HandlerFunc {
	return activateHandler{deps}.Handle
}

type activateHandler struct {
	deps HandlerDeps
}

func (h activateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "activate")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	targetID, days, err := parseActivateArgs(update.Message.Text)
	if err != nil {
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   "Usage: /activate <user_id> [days]",
		})
		return
	}

	adminID := strconv.FormatInt(update.Message.From.ID, 10)
	expiry := time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")

	err = h.deps.Store.Update(ctx, func(state *store.State) error {
		u := state.EnsureUser(targetID, "")
		u.IsActive = true
		u.ActivationDate = time.Now().UTC().Format("2006-01-02")
		u.ExpiryDate = expiry
		u.AddAudit(adminID, "activate", fmt.Sprintf("%d days", days))

		// Clear any pending activation request for this user.
		pending := state.ActivationRequests[:0]
		for _, req := range state.ActivationRequests {
			if req.TGID != targetID {
				pending = append(pending, req)
			}
		}
		state.ActivationRequests = pending
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to activate user", "error", err, "target", targetID)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "Activation failed."})
		return
	}

	log.InfoContext(ctx, "User activated", "target", targetID, "days", days, "admin", adminID)
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("Activated %s until %s.", targetID, expiry),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send activation confirmation", "error", err, "chat_id", chatID)
	}
}

// parseActivateArgs extracts the target user id and optional day count
// from "/activate <user_id> [days]".
func parseActivateArgs(text string) (string, int, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("missing user id")
	}

	target := fields[1]
	if _, err := strconv.ParseInt(target, 10, 64); err != nil {
		return "", 0, fmt.Errorf("invalid user id %q", target)
	}

	days := defaultActivationDays
	if len(fields) > 2 {
		n, err := strconv.Atoi(fields[2])
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("invalid day count %q", fields[2])
		}
		days = n
	}
	return target, days, nil
}
