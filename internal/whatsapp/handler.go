package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/ledger"
	"github.com/moalhelu/dejavplus-bots/internal/report"
	"github.com/moalhelu/dejavplus-bots/internal/store"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
	"github.com/moalhelu/dejavplus-bots/internal/vin"
)

// Event handling outcomes, used as metric label values.
const (
	OutcomeHandled   = "handled"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
)

// Gateway sends outbound WhatsApp messages.
type Gateway interface {
	SendText(ctx context.Context, to, body string) error
	SendDocument(ctx context.Context, to string, document []byte, filename, caption string) error
}

// Fetcher retrieves report PDFs.
type Fetcher interface {
	Fetch(ctx context.Context, vin string) (*report.Result, error)
}

// HandlerDeps provides dependencies for the webhook event handler.
type HandlerDeps struct {
	Logger      *slog.Logger
	Recorder    *telemetry.Recorder
	Store       *store.Store
	Reports     Fetcher
	Gateway     Gateway
	Messages    config.MessagesConfig
	Dedup       *DedupCache
	DefaultLang string
	Metrics     *Metrics
}

// Handler processes inbound webhook events end to end: dedup, VIN
// extraction, credit reservation, report fetch, and delivery.
type Handler struct {
	deps HandlerDeps
	log  *slog.Logger
}

// NewHandler creates an event handler.
func NewHandler(deps HandlerDeps) *Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		deps: deps,
		log:  log.With("component", "wa_handler"),
	}
}

// HandleEvent processes one inbound event and returns its outcome. A
// fresh correlation id is minted here; every timing record emitted while
// handling this event carries it.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) string {
	ctx = telemetry.WithRID(ctx, telemetry.NewRID("wa"))
	done := h.deps.Recorder.Timed(ctx, telemetry.EventWAHandle)
	start := time.Now()

	outcome := h.handle(ctx, ev)

	done("msg_id", ev.ID, "outcome", outcome)
	if h.deps.Metrics != nil {
		h.deps.Metrics.EventsTotal.WithLabelValues(outcome).Inc()
		h.deps.Metrics.HandleDuration.Observe(time.Since(start).Seconds())
	}
	return outcome
}

func (h *Handler) handle(ctx context.Context, ev Event) string {
	if ev.EventType != "" && ev.EventType != "message_received" {
		h.log.DebugContext(ctx, "Skipping unsupported event type", "event_type", ev.EventType)
		return OutcomeIgnored
	}
	if ev.Type != "" && ev.Type != "chat" {
		h.log.DebugContext(ctx, "Skipping unsupported message type", "type", ev.Type)
		return OutcomeIgnored
	}
	if ev.FromMe {
		return OutcomeIgnored
	}

	sender := normalizeSender(ev.From)
	if sender == "" {
		h.log.WarnContext(ctx, "Event has no usable sender", "from", ev.From)
		return OutcomeIgnored
	}

	if h.deps.Dedup.Seen(sender, ev.ID) {
		h.log.InfoContext(ctx, "Duplicate webhook delivery ignored", "sender", sender, "msg_id", ev.ID)
		return OutcomeDuplicate
	}

	if ev.Body == "" {
		return OutcomeIgnored
	}

	requestedVIN := vin.ExtractFirst(ev.Body)
	if requestedVIN == "" {
		h.reply(ctx, ev.From, h.deps.Messages.InvalidVIN)
		return OutcomeRejected
	}

	h.log.InfoContext(ctx, "Inbound report request", "sender", sender, "vin", requestedVIN)

	requestID := ledger.ComputeRequestID(ledger.RequestKey{
		Platform:   "whatsapp",
		UserID:     sender,
		VIN:        requestedVIN,
		Language:   h.deps.DefaultLang,
		Options:    map[string]string{"product": "carfax_vhr"},
		RequestKey: ev.ID,
	})

	// One load-mutate-save cycle covers the activation check, expiry
	// check, quota check, and charge reservation, so concurrent events
	// can't slip past the limits together.
	var (
		notActivated bool
		expiredOn    string
		limitReached bool
		decision     ledger.Decision
	)
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		now := time.Now()
		u := state.EnsureUser(sender, "")
		if u.Phone == "" {
			u.Phone = sender
		}
		u.RolloverUsage(now)
		if !u.IsActive {
			notActivated = true
			state.AddActivationRequest(sender, "", sender)
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
			"platform": "whatsapp",
			"user":     sender,
			"vin":      requestedVIN,
		})
		if decision.Changed {
			state.EnsureUser(sender, "").ReserveCredit(time.Now())
		}
		return nil
	})
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to reserve report charge", "error", err, "sender", sender)
		h.reply(ctx, ev.From, h.deps.Messages.FetchFailed)
		return OutcomeFailed
	}

	switch {
	case notActivated:
		h.reply(ctx, ev.From, h.deps.Messages.NotActivated)
		return OutcomeRejected
	case expiredOn != "":
		h.reply(ctx, ev.From, strings.ReplaceAll(h.deps.Messages.Expired, "{expiry}", expiredOn))
		return OutcomeRejected
	case limitReached:
		h.reply(ctx, ev.From, h.deps.Messages.LimitReached)
		return OutcomeRejected
	case !decision.Changed && decision.State == ledger.StateCommitted:
		h.reply(ctx, ev.From, h.deps.Messages.AlreadyHandled)
		return OutcomeDuplicate
	case !decision.Changed:
		// Reserved or refunded by an earlier delivery of this request.
		return OutcomeDuplicate
	}

	h.reply(ctx, ev.From, h.deps.Messages.Fetching)

	result, err := h.deps.Reports.Fetch(ctx, requestedVIN)
	if err != nil {
		if errors.Is(err, report.ErrBusy) {
			h.refund(ctx, sender, requestID, "busy")
			h.reply(ctx, ev.From, h.deps.Messages.ServiceBusy)
			return OutcomeBusy
		}
		h.log.WarnContext(ctx, "Report fetch failed", "error", err, "vin", requestedVIN)
		h.refund(ctx, sender, requestID, "fetch_failed")
		h.reply(ctx, ev.From, h.deps.Messages.FetchFailed)
		return OutcomeFailed
	}

	if err := h.deps.Gateway.SendDocument(ctx, ev.From, result.PDF, result.Filename, h.deps.Messages.ReportCaption); err != nil {
		h.log.ErrorContext(ctx, "Failed to deliver report document", "error", err, "vin", requestedVIN)
		h.refund(ctx, sender, requestID, "send_failed")
		h.reply(ctx, ev.From, h.deps.Messages.FetchFailed)
		return OutcomeFailed
	}

	h.commit(ctx, sender, requestID, result.SHA256)
	return OutcomeHandled
}

// refund returns the reserved charge. The ledger guards against double
// refunds, so a re-delivered failure can't credit the user twice.
func (h *Handler) refund(ctx context.Context, sender, requestID, reason string) {
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		dec := ledger.Refund(state.Ledger(), requestID, map[string]string{"reason": reason})
		if dec.Changed {
			state.EnsureUser(sender, "").RefundCredit()
		}
		return nil
	})
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to refund charge", "error", err, "request_id", requestID)
	}
}

// commit settles the charge as a delivered report.
func (h *Handler) commit(ctx context.Context, sender, requestID, sha string) {
	err := h.deps.Store.Update(ctx, func(state *store.State) error {
		dec := ledger.Commit(state.Ledger(), requestID, map[string]string{"sha256": sha})
		if dec.Changed {
			state.EnsureUser(sender, "").CommitCredit()
		}
		return nil
	})
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to commit charge", "error", err, "request_id", requestID)
	}
}

func (h *Handler) reply(ctx context.Context, to, body string) {
	if body == "" {
		return
	}
	if err := h.deps.Gateway.SendText(ctx, to, body); err != nil {
		h.log.WarnContext(ctx, "Failed to send reply", "error", err, "to", to)
	}
}

// normalizeSender reduces a provider JID like "15551234567@c.us" to the
// bare identity used as the user key.
func normalizeSender(from string) string {
	s := strings.TrimSpace(from)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "+")
}
