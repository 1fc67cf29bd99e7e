package api

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// maxWebhookBody bounds provider callback payloads.
const maxWebhookBody = 64 << 10

// PaymentWebhook receives provider payment callbacks. The provider is named
// by the ?provider= query parameter or sniffed from the payload shape; its
// implementation authenticates the delivery before any state changes.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	name := r.URL.Query().Get("provider")
	if name == "" {
		name = sniffProvider(body)
	}
	provider, err := h.providers.ByName(name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unknown payment provider")
		return
	}

	event, err := provider.ParseWebhook(r.Header, body)
	if err != nil {
		zctx.From(r.Context()).Warn("webhook rejected",
			zap.String("provider", name), zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if event == nil {
		// Authentic but irrelevant event type.
		respond(w, http.StatusOK, nil)
		return
	}

	if err := h.orders.ApplyPaymentEvent(r.Context(), *event); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

// sniffProvider inspects top-level payload fields to identify the sender:
// MoMo notifications carry partnerCode/resultCode, Stripe events carry an
// object:"event" discriminator. Unknown shapes return "".
func sniffProvider(body []byte) string {
	d := jx.DecodeBytes(body)
	name := ""
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "partnerCode", "resultCode":
			name = "momo"
		case "object":
			s, err := d.Str()
			if err == nil && s == "event" {
				name = "stripe"
			}
			return err
		}
		return d.Skip()
	})
	return name
}
