// Package webhook applies payment gateway events to orders.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/jeffsasaki/store-admin/checkout"
	"github.com/jeffsasaki/store-admin/errs"
	model "github.com/jeffsasaki/store-admin/models"
	"github.com/jeffsasaki/store-admin/store"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

const SignatureHeader = "Stripe-Signature"

type Store interface {
	MarkOrderPaid(ctx context.Context, paid store.PaidOrder) (*model.OrderPaidEvent, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, storeID string) error
}

type Reconciler struct {
	store  Store
	cache  Invalidator
	secret string
	logger *slog.Logger
}

func NewReconciler(store Store, cache Invalidator, signingSecret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, cache: cache, secret: signingSecret, logger: logger}
}

// Handle verifies payload against the signature header and applies it.
// A nil return means the delivery should be acknowledged.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, r.secret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return errs.Signature(err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return r.checkoutCompleted(ctx, event)
	default:
		r.logger.Debug("ignoring webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, event stripe.Event) error {
	// A signed event that cannot be read will not improve on redelivery.
	if event.Data == nil {
		r.logger.Warn("checkout completed event without data", "event_id", event.ID)
		return nil
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		r.logger.Warn("undecodable checkout session", "event_id", event.ID, "err", err)
		return nil
	}

	orderID := session.Metadata[checkout.MetadataOrderID]
	if orderID == "" {
		r.logger.Warn("checkout session without order id", "event_id", event.ID, "session_id", session.ID)
		return nil
	}

	paid := store.PaidOrder{
		EventID:   event.ID,
		EventType: string(event.Type),
		OrderID:   orderID,
	}
	if d := session.CustomerDetails; d != nil {
		paid.Address = FormatAddress(d.Address)
		paid.Phone = d.Phone
	}

	result, err := r.store.MarkOrderPaid(ctx, paid)
	switch {
	case errors.Is(err, store.ErrOrderAlreadyPaid):
		r.logger.Info("order already paid by another event", "event_id", event.ID, "order_id", orderID)
		return nil
	case errors.Is(err, store.ErrEventAlreadyApplied):
		r.logger.Info("webhook event already applied", "event_id", event.ID, "order_id", orderID)
		return nil
	case errors.Is(err, store.ErrOrderNotFound):
		// Redelivery cannot make the order appear, so the event is acknowledged.
		r.logger.Warn("checkout completed for unknown order", "event_id", event.ID, "order_id", orderID)
		return nil
	case err != nil:
		return errs.Internal("mark order paid", err)
	}

	r.logger.Info("order paid",
		"event_id", event.ID,
		"order_id", orderID,
		"store_id", result.StoreID,
		"archived_products", len(result.ProductIDs))

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, result.StoreID); err != nil {
			r.logger.Warn("product cache invalidation failed", "store_id", result.StoreID, "err", err)
		}
	}
	return nil
}

// FormatAddress joins the non-empty address components with ", ".
func FormatAddress(a *stripe.Address) string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
