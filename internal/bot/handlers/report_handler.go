package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/moalhelu/dejavplus-bots/internal/ledger"
	"github.com/moalhelu/dejavplus-bots/internal/report"
	"github.com/moalhelu/dejavplus-bots/internal/store"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
	"github.com/moalhelu/dejavplus-bots/internal/vin"
)

// NewReportHandler returns the default message handler: any text
// containing a VIN becomes a report request. Registered as the bot's
// default handler so it catches everything that is not a command.
func NewReportHandler(deps HandlerDeps) bot.HandlerFunc {
	return reportHandler{deps}.Handle
}

type reportHandler struct {
	deps HandlerDeps
}

func (h reportHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	// One correlation id per inbound message; every timing record emitted
	// below carries it.
	ctx = telemetry.WithRID(ctx, telemetry.NewRID("tg"))
	done := h.deps.Recorder.Timed(ctx, telemetry.EventTGHandle)

	outcome := h.handle(ctx, b, update)
	done("chat_id", update.Message.Chat.ID, "outcome", outcome)
}

func (h reportHandler) handle(ctx context.Context, b *bot.Bot, update *models.Update) string {
	log := h.deps.Logger.With("handler", "report")
	msg := update.Message
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(msg.From.ID, 10)

	requestedVIN := vin.ExtractFirst(msg.Text)
	if requestedVIN == "" {
		h.reply(ctx, b, chatID, h.deps.Config.Messages.InvalidVIN)
		return "rejected"
	}

	log.InfoContext(ctx, "Inbound report request", "user_id", userID, "vin", requestedVIN)

	// Message ids are unique per chat only.
	requestID := ledger.ComputeRequestID(ledger.RequestKey{
		Platform:   "telegram",
		UserID:     userID,
		VIN:        requestedVIN,
		Language:   h.deps.Config.Report.DefaultLanguage,
		Options:    map[string]string{"product": "carfax_vhr"},
		RequestKey: fmt.Sprintf("%d:%d", chatID, msg.ID),
	})

	// One load-mutate-save cycle covers the activation check, expiry
	// check, quota check, and charge reservation.
	var (
		notActivated bool
		expiredOn    string
		limitReached bool
		decision     ledger.Decision
	)
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		now := time.Now()
		u := state.EnsureUser(userID, msg.From.Username)
		u.RolloverUsage(now)
		if !u.IsActive {
			notActivated = true
			state.AddActivationRequest(userID, msg.From.Username, "")
			return nil
		}
		if u.IsExpired(now) {
			expiredOn = u.ExpiryDate
			return nil
		}
		if !u.CanRequestReport(now) {
			limitReached = true
			return nil
		}
		decision = ledger.Reserve(state.Ledger(), requestID, map[string]string{
			"platform": "telegram",
			"user":     userID,
			"vin":      requestedVIN,
		})
		if decision.Changed {
			state.EnsureUser(userID, "").ReserveCredit(time.Now())
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to reserve report charge", "error", err, "user_id", userID)
		h.reply(ctx, b, chatID, h.deps.Config.Messages.FetchFailed)
		return "failed"
	}

	switch {
	case notActivated:
		h.reply(ctx, b, chatID, h.deps.Config.Messages.NotActivated)
		return "rejected"
	case expiredOn != "":
		h.reply(ctx, b, chatID, strings.ReplaceAll(h.deps.Config.Messages.Expired, "{expiry}", expiredOn))
		return "rejected"
	case limitReached:
		h.reply(ctx, b, chatID, h.deps.Config.Messages.LimitReached)
		return "rejected"
	case !decision.Changed && decision.State == ledger.StateCommitted:
		h.reply(ctx, b, chatID, h.deps.Config.Messages.AlreadyHandled)
		return "duplicate"
	case !decision.Changed:
		return "duplicate"
	}

	h.reply(ctx, b, chatID, h.deps.Config.Messages.Fetching)

	result, err := h.deps.Reports.Fetch(ctx, requestedVIN)
	if err != nil {
		if errors.Is(err, report.ErrBusy) {
			h.refund(ctx, userID, requestID, "busy")
			h.reply(ctx, b, chatID, h.deps.Config.Messages.ServiceBusy)
			return "busy"
		}
		log.WarnContext(ctx, "Report fetch failed", "error", err, "vin", requestedVIN)
		h.refund(ctx, userID, requestID, "fetch_failed")
		h.reply(ctx, b, chatID, h.deps.Config.Messages.FetchFailed)
		return "failed"
	}

	_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: chatID,
		Document: &models.InputFileUpload{
			Filename: result.Filename,
			Data:     bytes.NewReader(result.PDF),
		},
		Caption: h.deps.Config.Messages.ReportCaption,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to deliver report document", "error", err, "vin", requestedVIN)
		h.refund(ctx, userID, requestID, "send_failed")
		h.reply(ctx, b, chatID, h.deps.Config.Messages.FetchFailed)
		return "failed"
	}

	h.commit(ctx, userID, requestID, result.SHA256)
	return "handled"
}

// refund returns the reserved charge. The ledger guards against double
// refunds on redelivered failures.
func (h reportHandler) refund(ctx context.Context, userID, requestID, reason string) {
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		dec := ledger.Refund(state.Ledger(), requestID, map[string]string{"reason": reason})
		if dec.Changed {
			state.EnsureUser(userID, "").RefundCredit()
		}
		return nil
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to refund charge", "error", err, "request_id", requestID)
	}
}

// commit settles the charge as a delivered report.
func (h reportHandler) commit(ctx context.Context, userID, requestID, sha string) {
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		dec := ledger.Commit(state.Ledger(), requestID, map[string]string{"sha256": sha})
		if dec.Changed {
			state.EnsureUser(userID, "").CommitCredit()
		}
		return nil
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to commit charge", "error", err, "request_id", requestID)
	}
}

func (h reportHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}
