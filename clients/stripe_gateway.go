package clients

import (
	"context"

	"github.com/jeffsasaki/store-admin/checkout"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway creates hosted checkout sessions. It holds its own API
// client so no package-level stripe.Key is needed.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req checkout.SessionRequest) (string, error) {
	params := sessionParams(req)
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func sessionParams(req checkout.SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.PaymentMode {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
	}
	if req.RequireBillingAddress {
		params.BillingAddressCollection = stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired))
	}
	if req.CollectPhoneNumber {
		params.PhoneNumberCollection = &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		}
	}

	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}
