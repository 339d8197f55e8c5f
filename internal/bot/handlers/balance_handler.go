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

// NewBalanceHandler returns a handler for the /balance command.
func NewBalanceHandler(deps HandlerDeps) bot.HandlerFunc {
	return balanceHandler{deps}.Handle
}

type balanceHandler struct {
	deps HandlerDeps
}

func (h balanceHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "balance")

	if update.Message == nil || update.Message.From == nil {
		return
	}

	userID := strconv.FormatInt(update.Message.From.ID, 10)
	log.InfoContext(ctx, "Handling /balance command", "user_id", userID)

	var u *store.User
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		u = state.EnsureUser(userID, update.Message.From.Username)
		u.RolloverUsage(time.Now())
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to load account", "error", err, "user_id", userID)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   h.deps.Config.Messages.FetchFailed,
		})
		return
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   formatBalance(u, time.Now()),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send balance message", "error", err, "chat_id", update.Message.Chat.ID)
	}
}

// formatBalance renders the account summary shown by /balance.
func formatBalance(u *store.User, now time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Account: %s\n", u.DisplayName())
	fmt.Fprintf(&sb, "Plan: %s\n", u.Plan)
	if u.IsActive {
		sb.WriteString("Status: active\n")
	} else {
		sb.WriteString("Status: not activated\n")
	}

	if remaining := u.RemainingMonthlyReports(); remaining < 0 {
		sb.WriteString("Reports this month: unlimited\n")
	} else {
		fmt.Fprintf(&sb, "Reports this month: %d of %d left\n", remaining, u.Limits.Monthly)
	}
	fmt.Fprintf(&sb, "Used today: %d of %d\n", u.Limits.TodayUsed, u.Limits.Daily)

	switch days := u.DaysLeft(now); {
	case days < 0:
		// No expiry on record.
	case days == 0:
		sb.WriteString("Subscription: expired\n")
	default:
		fmt.Fprintf(&sb, "Subscription: %d days left\n", days)
	}

	return strings.TrimRight(sb.String(), "\n")
}
