package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/quickagent/callminder/internal/callflow"
	"github.com/quickagent/callminder/internal/telephony"
	"github.com/quickagent/callminder/pkg/logging"
)

const (
	webhookProvider  = "telnyx"
	maxWebhookBody   = 1 << 20
	headerTimestamp  = "Telnyx-Timestamp"
	headerSignature  = "Telnyx-Signature"
	headerCompatSign = "X-Signature"
	headerCompatTime = "X-Timestamp"
)

// SignatureVerifier validates webhook authenticity. Satisfied by
// *telephony.TelnyxClient.
type SignatureVerifier interface {
	VerifyWebhookSignature(timestamp, signature string, payload []byte) error
}

// ProcessedMarker deduplicates webhook deliveries by provider event id.
// Satisfied by *events.ProcessedStore.
type ProcessedMarker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// CallWebhookHandler receives telephony gateway events and routes them
// through the call state machine. One handler serves both the voice and the
// message webhook endpoints; the event type distinguishes them.
type CallWebhookHandler struct {
	verifier  SignatureVerifier
	machine   *callflow.Machine
	processed ProcessedMarker
	logger    *logging.Logger
}

func NewCallWebhookHandler(verifier SignatureVerifier, machine *callflow.Machine, processed ProcessedMarker, logger *logging.Logger) *CallWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CallWebhookHandler{
		verifier:  verifier,
		machine:   machine,
		processed: processed,
		logger:    logger,
	}
}

// HandleEvent is the webhook endpoint. The gateway retries non-2xx
// responses, so persistent-store failures return 500 to get the event
// redelivered, while garbage input returns 4xx to stop the retries.
func (h *CallWebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		ts := firstHeader(r, headerTimestamp, headerCompatTime)
		sig := firstHeader(r, headerSignature, headerCompatSign)
		if err := h.verifier.VerifyWebhookSignature(ts, sig, body); err != nil {
			h.logger.Warn("webhook signature rejected", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	ev, err := telephony.ParseEvent(body)
	if err != nil {
		h.logger.Warn("webhook event unparseable", "error", err)
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if h.processed != nil && ev.ID != "" {
		seen, err := h.processed.AlreadyProcessed(ctx, webhookProvider, ev.ID)
		if err != nil {
			h.logger.Error("processed-event lookup failed", "event_id", ev.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if seen {
			writeInstructions(w, nil)
			return
		}
	}

	instrs, err := h.machine.HandleEvent(ctx, ev)
	if err != nil {
		h.logger.Error("event handling failed",
			"event_type", ev.EventType, "session_id", ev.SessionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Mark only after the machine committed its effects; a crash before
	// this point means redelivery, and replay protection upstream keeps
	// the redelivered event harmless.
	if h.processed != nil && ev.ID != "" {
		if _, err := h.processed.MarkProcessed(ctx, webhookProvider, ev.ID); err != nil {
			h.logger.Error("failed to mark event processed", "event_id", ev.ID, "error", err)
		}
	}

	writeInstructions(w, instrs)
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func writeInstructions(w http.ResponseWriter, instrs []telephony.Instruction) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if instrs == nil {
		instrs = []telephony.Instruction{}
	}
	_ = json.NewEncoder(w).Encode(telephony.InstructionResponse{Instructions: instrs})
}
