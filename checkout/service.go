// Package checkout turns a storefront cart into a pending order and a
// hosted checkout session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jeffsasaki/store-admin/errs"
	model "github.com/jeffsasaki/store-admin/models"

	"github.com/shopspring/decimal"
)

const MetadataOrderID = "orderId"

var errEmptySessionURL = errors.New("gateway returned an empty session url")

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
	Currency   string
}

type SessionRequest struct {
	LineItems             []LineItem
	PaymentMode           bool
	RequireBillingAddress bool
	CollectPhoneNumber    bool
	SuccessURL            string
	CancelURL             string
	Metadata              map[string]string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (url string, err error)
}

type Store interface {
	StoreExists(ctx context.Context, storeID string) (bool, error)
	FindProducts(ctx context.Context, storeID string, ids []string) ([]model.Product, error)
	CreateOrder(ctx context.Context, storeID string, productIDs []string) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Service struct {
	store   Store
	gateway Gateway
	cfg     Config
	logger  *slog.Logger
}

func NewService(store Store, gateway Gateway, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: store, gateway: gateway, cfg: cfg, logger: logger}
}

// Checkout creates an unpaid order for productIDs and returns the hosted
// checkout URL. Every id must name an available product of the store with
// a whole minor-unit price. If the gateway call fails the order is deleted
// again.
func (s *Service) Checkout(ctx context.Context, storeID string, productIDs []string) (string, error) {
	if len(productIDs) == 0 {
		return "", errs.Validation("product ids required")
	}

	exists, err := s.store.StoreExists(ctx, storeID)
	if err != nil {
		return "", errs.Internal("find store", err)
	}
	if !exists {
		return "", errs.NotFound("store %s not found", storeID)
	}

	products, err := s.store.FindProducts(ctx, storeID, distinct(productIDs))
	if err != nil {
		return "", errs.Internal("find products", err)
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		if !p.IsArchived {
			byID[p.ID] = p
		}
	}

	var unknown, unpriced []string
	items := make([]LineItem, 0, len(productIDs))
	for _, id := range productIDs {
		p, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		amount, err := MinorUnits(p.Price)
		if err != nil {
			unpriced = append(unpriced, id)
			continue
		}
		items = append(items, LineItem{
			Name:       p.Name,
			UnitAmount: amount,
			Quantity:   1,
			Currency:   s.cfg.Currency,
		})
	}
	if len(unknown) > 0 {
		return "", errs.Validation("unknown product ids: %s", strings.Join(distinct(unknown), ", "))
	}
	if len(unpriced) > 0 {
		return "", errs.Validation("products without a whole minor-unit price: %s", strings.Join(distinct(unpriced), ", "))
	}

	order, err := s.store.CreateOrder(ctx, storeID, productIDs)
	if err != nil {
		return "", errs.Internal("create order", err)
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, SessionRequest{
		LineItems:             items,
		PaymentMode:           true,
		RequireBillingAddress: true,
		CollectPhoneNumber:    true,
		SuccessURL:            s.cfg.SuccessURL,
		CancelURL:             s.cfg.CancelURL,
		Metadata:              map[string]string{MetadataOrderID: order.ID},
	})
	if err == nil && url == "" {
		err = errEmptySessionURL
	}
	if err != nil {
		s.compensate(ctx, order.ID)
		return "", errs.Internal("create checkout session", err)
	}

	s.logger.Info("checkout session created",
		"store_id", storeID,
		"order_id", order.ID,
		"items", len(productIDs))
	return url, nil
}

func (s *Service) compensate(ctx context.Context, orderID string) {
	// The request context may already be cancelled; the delete must still run.
	if err := s.store.DeleteOrder(context.WithoutCancel(ctx), orderID); err != nil {
		s.logger.Error("failed to delete order after gateway failure",
			"order_id", orderID,
			"err", err)
		return
	}
	s.logger.Warn("order deleted after gateway failure", "order_id", orderID)
}

// MinorUnits returns a stored price, already in minor currency units, as the
// gateway's integer unit amount.
func MinorUnits(price decimal.Decimal) (int64, error) {
	if !price.IsInteger() || price.IsNegative() {
		return 0, fmt.Errorf("price %s is not a whole number of minor units", price)
	}
	return price.IntPart(), nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
