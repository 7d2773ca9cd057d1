// Package api is the demo HTTP surface over the checkout saga and the
// order aggregate's query side: a POST-to-kick-off-a-workflow,
// GET-to-replay-a-timeline shape driving the checkout saga's Sagas cache
// and the event store directly, with no separate use-case or repository
// layer in between.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
	"github.com/rakhimjonshokirov/eventkit/saga"
	"github.com/rakhimjonshokirov/eventkit/saga/checkout"
)

// CheckoutHandler serves the reference HTTP surface: start a checkout,
// read back an order's replayed state and event timeline.
type CheckoutHandler struct {
	sagas  *checkout.Sagas
	orders eventstore.EventStore
	ids    envport.IDGenerator
	log    *zap.Logger
}

func NewCheckoutHandler(sagas *checkout.Sagas, orders eventstore.EventStore, ids envport.IDGenerator, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{sagas: sagas, orders: orders, ids: ids, log: log}
}

// CheckoutRequest is the HTTP request body for POST /checkout.
type CheckoutRequest struct {
	CustomerID     string `json:"customer_id"`
	TicketClass    string `json:"ticket_class"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// CheckoutResponse is the HTTP response for POST /checkout.
type CheckoutResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Checkout handles POST /checkout: starts a new checkout saga and returns
// immediately (202 Accepted), processing asynchronously; poll the order
// endpoint for the outcome.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CustomerID == "" {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	if req.TicketClass == "" {
		http.Error(w, "ticket_class is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		http.Error(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	orderID := h.ids.NewID()
	correlationID := saga.CorrelationID(h.ids.NewID())

	s := h.sagas.For(orderID)
	if _, err := s.SendCascading(r.Context(), checkout.Action{
		Kind:           checkout.Initiate,
		CorrelationID:  correlationID,
		OrderID:        orderID,
		CustomerID:     req.CustomerID,
		TicketClass:    req.TicketClass,
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
	}); err != nil {
		h.log.Error("checkout: failed to initiate saga", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "failed to start checkout", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(CheckoutResponse{
		OrderID: orderID,
		Status:  string(saga.StatusRunning),
		Message: "checkout accepted and is processing asynchronously",
	})

	h.log.Info("checkout initiated", zap.String("order_id", orderID), zap.String("customer_id", req.CustomerID))
}

// TimelineEvent is one entry in an order's replayed history.
type TimelineEvent struct {
	Version   int64     `json:"version"`
	EventType string    `json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderHistoryResponse is the response for GET /orders/{orderID}.
type OrderHistoryResponse struct {
	OrderID     string          `json:"order_id"`
	Status      string          `json:"status"`
	CustomerID  string          `json:"customer_id"`
	TicketClass string          `json:"ticket_class"`
	Quantity    int             `json:"quantity"`
	Timeline    []TimelineEvent `json:"timeline"`
}

// OrderHistory handles GET /orders/{orderID}: rebuilds a timeline by
// replaying the order stream straight from the event store rather than
// from a separately maintained read model.
func (h *CheckoutHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orderID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/orders/"))
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	events, err := h.orders.LoadEvents(r.Context(), order.StreamID(orderID), nil)
	if err != nil {
		h.log.Error("order history: load events", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}

	state, err := order.Rehydrate(events)
	if err != nil {
		h.log.Error("order history: rehydrate", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "failed to replay order", http.StatusInternalServerError)
		return
	}

	timeline := make([]TimelineEvent, 0, len(events))
	for _, evt := range events {
		timeline = append(timeline, TimelineEvent{
			Version:   int64(evt.Version),
			EventType: evt.EventType,
			CreatedAt: evt.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(OrderHistoryResponse{
		OrderID:     state.OrderID,
		Status:      string(state.Status),
		CustomerID:  state.CustomerID,
		TicketClass: state.TicketClass,
		Quantity:    state.Quantity,
		Timeline:    timeline,
	})
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
