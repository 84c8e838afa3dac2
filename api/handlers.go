package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jeffsasaki/store-admin/errs"
	model "github.com/jeffsasaki/store-admin/models"
	"github.com/jeffsasaki/store-admin/webhook"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 16

type checkoutRequest struct {
	ProductIDs []string `json:"productIds"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, s.Logger, errs.Validation("invalid request body"))
		return
	}

	url, err := s.Checkout.Checkout(r.Context(), chi.URLParam(r, "storeId"), req.ProductIDs)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: url})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = s.Webhook.Handle(r.Context(), payload, r.Header.Get(webhook.SignatureHeader))
	if errs.KindOf(err) == errs.KindSignature {
		http.Error(w, "Webhook Error: "+errs.Message(err), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ProductFilter{
		CategoryID: q.Get("categoryId"),
		SizeID:     q.Get("sizeId"),
		ColorID:    q.Get("colorId"),
		IsFeatured: q.Get("isFeatured") != "",
	}

	products, err := s.Catalog.ListProducts(r.Context(), chi.URLParam(r, "storeId"), filter)
	if err != nil {
		writeError(w, r, s.Logger, errs.Internal("list products", err))
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.Orders.ListOrders(r.Context(), chi.URLParam(r, "storeId"))
	if err != nil {
		writeError(w, r, s.Logger, errs.Internal("list orders", err))
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats.Stats(r.Context(), chi.URLParam(r, "storeId"))
	if err != nil {
		writeError(w, r, s.Logger, errs.Internal("dashboard stats", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// requireAdmin stands in for the identity provider on dashboard routes.
// With no key configured the routes are closed.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if s.AdminAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.AdminAPIKey)) != 1 {
			writeError(w, r, s.Logger, errs.Authentication("Unauthenticated"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
