package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

type stripeInvoice struct {
	ID           string               `json:"id"`
	Customer     json.RawMessage      `json:"customer"`
	Subscription json.RawMessage      `json:"subscription"`
	Parent       *stripeInvoiceParent `json:"parent"`
	Lines        struct {
		Data []stripeInvoiceLine `json:"data"`
	} `json:"lines"`
}

type stripeInvoiceParent struct {
	SubscriptionDetails *struct {
		Subscription json.RawMessage `json:"subscription"`
	} `json:"subscription_details"`
}

type stripeInvoiceLine struct {
	Price   json.RawMessage `json:"price"`
	Pricing *struct {
		PriceDetails *struct {
			Price json.RawMessage `json:"price"`
		} `json:"price_details"`
	} `json:"pricing"`
}

type stripeSubscription struct {
	ID       string          `json:"id"`
	Customer json.RawMessage `json:"customer"`
	Items    struct {
		Data []struct {
			Price json.RawMessage `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          json.RawMessage   `json:"customer"`
	Subscription      json.RawMessage   `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event.
// Types billing does not act on are returned with only the envelope populated.
func (a *Adapter) ParseEvent(ctx context.Context, payload []byte, signatureHeader string) (paymentdomain.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return paymentdomain.Event{}, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return paymentdomain.Event{}, paymentdomain.ErrInvalidSignature
		}
		a.log.Debug("stripe event rejected", zap.Error(err))
		return paymentdomain.Event{}, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(string(event.Type)) == "" {
		return paymentdomain.Event{}, paymentdomain.ErrInvalidEvent
	}

	out := paymentdomain.Event{
		Provider:   providerName,
		ID:         event.ID,
		Type:       string(event.Type),
		RawPayload: payload,
	}
	if event.Created > 0 {
		out.OccurredAt = time.Unix(event.Created, 0).UTC()
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		if isHandled(out.Type) {
			return paymentdomain.Event{}, paymentdomain.ErrInvalidPayload
		}
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Type {
	case paymentdomain.EventInvoicePaymentSucceeded, paymentdomain.EventInvoicePaymentFailed:
		var invoice stripeInvoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return paymentdomain.Event{}, paymentdomain.ErrInvalidPayload
		}
		out.CustomerID = expandableID(invoice.Customer)
		out.SubscriptionID = invoice.subscriptionID()
		out.PriceRef = invoice.priceRef()
	case paymentdomain.EventSubscriptionDeleted:
		var sub stripeSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return paymentdomain.Event{}, paymentdomain.ErrInvalidPayload
		}
		out.SubscriptionID = sub.ID
		out.CustomerID = expandableID(sub.Customer)
		if len(sub.Items.Data) > 0 {
			out.PriceRef = expandableID(sub.Items.Data[0].Price)
		}
	case paymentdomain.EventCheckoutCompleted, paymentdomain.EventCheckoutExpired:
		var session stripeCheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return paymentdomain.Event{}, paymentdomain.ErrInvalidPayload
		}
		out.SessionID = session.ID
		out.CustomerID = expandableID(session.Customer)
		out.SubscriptionID = expandableID(session.Subscription)
		out.CheckoutReference = firstNonEmpty(session.ClientReferenceID, session.Metadata["checkout_reference"])
	}

	return out, nil
}

func (i stripeInvoice) subscriptionID() string {
	if id := expandableID(i.Subscription); id != "" {
		return id
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return expandableID(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (i stripeInvoice) priceRef() string {
	for _, line := range i.Lines.Data {
		if id := expandableID(line.Price); id != "" {
			return id
		}
		if line.Pricing != nil && line.Pricing.PriceDetails != nil {
			if id := expandableID(line.Pricing.PriceDetails.Price); id != "" {
				return id
			}
		}
	}
	return ""
}

// expandableID reads a field that is either an id string or an expanded object.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return ""
		}
		return strings.TrimSpace(id)
	case '{':
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func isHandled(eventType string) bool {
	switch eventType {
	case paymentdomain.EventInvoicePaymentSucceeded,
		paymentdomain.EventInvoicePaymentFailed,
		paymentdomain.EventSubscriptionDeleted,
		paymentdomain.EventCheckoutCompleted,
		paymentdomain.EventCheckoutExpired:
		return true
	}
	return false
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
