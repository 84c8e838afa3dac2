package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/jeffsasaki/store-admin/errs"
	model "github.com/jeffsasaki/store-admin/models"
	"github.com/jeffsasaki/store-admin/store"
	"github.com/jeffsasaki/store-admin/webhook"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

const secret = "whsec_test_secret"

// memStore applies MarkOrderPaid to in-memory rows with the same rules as
// the Postgres store.
type memStore struct {
	orders   map[string]*model.Order
	items    map[string][]string
	products map[string]*model.Product
	events   map[string]bool
	calls    int
	err      error
}

func newMemStore() *memStore {
	return &memStore{
		orders: map[string]*model.Order{
			"order-1": {ID: "order-1", StoreID: "store-1"},
		},
		items: map[string][]string{
			"order-1": {"p1", "p2"},
		},
		products: map[string]*model.Product{
			"p1": {ID: "p1", StoreID: "store-1"},
			"p2": {ID: "p2", StoreID: "store-1"},
			"p3": {ID: "p3", StoreID: "store-1"},
		},
		events: map[string]bool{},
	}
}

func (m *memStore) MarkOrderPaid(_ context.Context, paid store.PaidOrder) (*model.OrderPaidEvent, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.events[paid.EventID] {
		return nil, store.ErrEventAlreadyApplied
	}
	order, ok := m.orders[paid.OrderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	if order.IsPaid {
		return nil, store.ErrOrderAlreadyPaid
	}
	m.events[paid.EventID] = true
	order.IsPaid = true
	order.Address = paid.Address
	order.Phone = paid.Phone
	for _, id := range m.items[order.ID] {
		m.products[id].IsArchived = true
	}
	return &model.OrderPaidEvent{OrderID: order.ID, StoreID: order.StoreID, ProductIDs: m.items[order.ID]}, nil
}

func (m *memStore) snapshot() (model.Order, map[string]bool) {
	archived := map[string]bool{}
	for id, p := range m.products {
		archived[id] = p.IsArchived
	}
	return *m.orders["order-1"], archived
}

type fakeCache struct {
	invalidated []string
	err         error
}

func (f *fakeCache) Invalidate(_ context.Context, storeID string) error {
	f.invalidated = append(f.invalidated, storeID)
	return f.err
}

func completedEvent(id, orderID string, details map[string]any) []byte {
	session := map[string]any{
		"id":               "cs_test_1",
		"object":           "checkout.session",
		"metadata":         map[string]string{"orderId": orderID},
		"customer_details": details,
	}
	return eventJSON(id, "checkout.session.completed", session)
}

func eventJSON(id, typ string, object map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	Expect(err).NotTo(HaveOccurred())
	return body
}

func sign(payload []byte, withSecret string) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload: payload,
		Secret:  withSecret,
	}).Header
}

var springfield = map[string]any{
	"phone": "+15555550100",
	"address": map[string]any{
		"line1":       "1 Main St",
		"line2":       nil,
		"city":        "Springfield",
		"state":       "IL",
		"postal_code": "62704",
		"country":     "US",
	},
}

var _ = Describe("Reconciler", func() {
	var (
		ctx   context.Context
		st    *memStore
		cache *fakeCache
		r     *webhook.Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newMemStore()
		cache = &fakeCache{}
		r = webhook.NewReconciler(st, cache, secret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	Context("when the signature does not verify", func() {
		It("rejects a payload signed with another secret without touching the store", func() {
			payload := completedEvent("evt_1", "order-1", springfield)

			err := r.Handle(ctx, payload, sign(payload, "whsec_other"))

			Expect(err).To(HaveOccurred())
			Expect(errs.KindOf(err)).To(Equal(errs.KindSignature))
			Expect(st.calls).To(BeZero())
			order, _ := st.snapshot()
			Expect(order.IsPaid).To(BeFalse())
		})

		It("rejects a missing signature header", func() {
			err := r.Handle(ctx, completedEvent("evt_1", "order-1", springfield), "")

			Expect(errs.KindOf(err)).To(Equal(errs.KindSignature))
			Expect(st.calls).To(BeZero())
		})

		It("rejects a body altered after signing", func() {
			payload := completedEvent("evt_1", "order-1", springfield)
			header := sign(payload, secret)

			err := r.Handle(ctx, completedEvent("evt_1", "order-2", springfield), header)

			Expect(errs.KindOf(err)).To(Equal(errs.KindSignature))
		})
	})

	Context("when checkout.session.completed is verified", func() {
		It("marks the order paid and archives its products", func() {
			payload := completedEvent("evt_1", "order-1", springfield)

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())

			order, archived := st.snapshot()
			Expect(order.IsPaid).To(BeTrue())
			Expect(order.Address).To(Equal("1 Main St, Springfield, IL, 62704, US"))
			Expect(order.Phone).To(Equal("+15555550100"))
			Expect(archived).To(Equal(map[string]bool{"p1": true, "p2": true, "p3": false}))
			Expect(cache.invalidated).To(ConsistOf("store-1"))
		})

		It("stores an empty phone and address when the customer details are absent", func() {
			payload := completedEvent("evt_1", "order-1", nil)

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())

			order, _ := st.snapshot()
			Expect(order.IsPaid).To(BeTrue())
			Expect(order.Address).To(BeEmpty())
			Expect(order.Phone).To(BeEmpty())
		})

		It("leaves the same final state when the event is replayed", func() {
			payload := completedEvent("evt_1", "order-1", springfield)
			header := sign(payload, secret)

			Expect(r.Handle(ctx, payload, header)).To(Succeed())
			onceOrder, onceArchived := st.snapshot()

			Expect(r.Handle(ctx, payload, header)).To(Succeed())
			twiceOrder, twiceArchived := st.snapshot()

			Expect(twiceOrder).To(Equal(onceOrder))
			Expect(twiceArchived).To(Equal(onceArchived))
			Expect(st.calls).To(Equal(2))
		})

		It("keeps the first payment when another event completes a paid order", func() {
			first := completedEvent("evt_1", "order-1", springfield)
			Expect(r.Handle(ctx, first, sign(first, secret))).To(Succeed())

			second := completedEvent("evt_7", "order-1", map[string]any{
				"phone":   "+15550000",
				"address": map[string]any{"line1": "2 Other Rd", "country": "US"},
			})
			Expect(r.Handle(ctx, second, sign(second, secret))).To(Succeed())

			order, _ := st.snapshot()
			Expect(order.Address).To(Equal("1 Main St, Springfield, IL, 62704, US"))
			Expect(order.Phone).To(Equal("+15555550100"))
			Expect(cache.invalidated).To(HaveLen(1))
		})

		It("acknowledges a signed event whose session cannot be decoded", func() {
			payload := eventJSON("evt_4", "checkout.session.completed", map[string]any{
				"id":       "cs_test_3",
				"object":   "checkout.session",
				"metadata": "order-1",
			})

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
			Expect(st.calls).To(BeZero())
		})

		It("acknowledges a signed event without data", func() {
			payload, err := json.Marshal(map[string]any{
				"id":          "evt_5",
				"object":      "event",
				"type":        "checkout.session.completed",
				"api_version": stripe.APIVersion,
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
			Expect(st.calls).To(BeZero())
		})

		It("acknowledges an event for an unknown order", func() {
			payload := completedEvent("evt_9", "order-404", springfield)

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
			Expect(cache.invalidated).To(BeEmpty())
		})

		It("acknowledges a session that carries no order id", func() {
			payload := completedEvent("evt_2", "", springfield)

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
			Expect(st.calls).To(BeZero())
		})

		It("surfaces persistence failures as internal errors", func() {
			st.err = errors.New("connection reset by peer")
			payload := completedEvent("evt_1", "order-1", springfield)

			err := r.Handle(ctx, payload, sign(payload, secret))

			Expect(errs.KindOf(err)).To(Equal(errs.KindInternal))
			Expect(errs.Message(err)).To(Equal("Internal Error"))
		})

		It("does not fail the delivery when cache invalidation fails", func() {
			cache.err = errors.New("redis down")
			payload := completedEvent("evt_1", "order-1", springfield)

			Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
		})
	})

	It("ignores other event types", func() {
		payload := eventJSON("evt_3", "checkout.session.expired", map[string]any{
			"id":       "cs_test_2",
			"object":   "checkout.session",
			"metadata": map[string]string{"orderId": "order-1"},
		})

		Expect(r.Handle(ctx, payload, sign(payload, secret))).To(Succeed())
		Expect(st.calls).To(BeZero())
	})
})

var _ = DescribeTable("FormatAddress",
	func(a *stripe.Address, want string) {
		Expect(webhook.FormatAddress(a)).To(Equal(want))
	},
	Entry("nil address", (*stripe.Address)(nil), ""),
	Entry("skips an empty second line",
		&stripe.Address{Line1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"},
		"1 Main St, Springfield, IL, 62704, US"),
	Entry("keeps every component in order",
		&stripe.Address{Line1: "1 Main St", Line2: "Apt 4", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"},
		"1 Main St, Apt 4, Springfield, IL, 62704, US"),
	Entry("country only", &stripe.Address{Country: "DE"}, "DE"),
)
