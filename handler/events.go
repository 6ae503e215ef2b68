package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopaytr/infra/opensearch"
	"github.com/mstgnz/gopaytr/infra/response"
)

const (
	defaultStatsHours = 24
	maxStatsHours     = 24 * 30
)

// EventSearcher defines the read side of the payment event store
type EventSearcher interface {
	GetEventsByOrder(ctx context.Context, provider, merchantOid string) ([]opensearch.PaymentEvent, error)
	GetRecentFailures(ctx context.Context, provider string, hours int) ([]opensearch.PaymentEvent, error)
	GetProviderStats(ctx context.Context, provider string, hours int) (map[string]any, error)
}

// EventsHandler exposes recorded payment events
type EventsHandler struct {
	events EventSearcher
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(events EventSearcher) *EventsHandler {
	return &EventsHandler{events: events}
}

// OrderEvents lists the token requests and notifications of one order
func (h *EventsHandler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	merchantOid := chi.URLParam(r, "merchantOid")
	if merchantOid == "" {
		response.Error(w, http.StatusBadRequest, "Merchant order id is required", nil)
		return
	}

	events, err := h.events.GetEventsByOrder(ctx, "paytr", merchantOid)
	if err != nil {
		h.searchError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Events retrieved", map[string]any{
		"merchantOid": merchantOid,
		"events":      events,
		"count":       len(events),
	})
}

// RecentFailures lists unsuccessful events of the last hours
func (h *EventsHandler) RecentFailures(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	hours := parseHours(r.URL.Query().Get("hours"))
	events, err := h.events.GetRecentFailures(ctx, "paytr", hours)
	if err != nil {
		h.searchError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Failures retrieved", map[string]any{
		"hours":  hours,
		"events": events,
		"count":  len(events),
	})
}

// Stats returns aggregated event statistics
func (h *EventsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	hours := parseHours(r.URL.Query().Get("hours"))
	stats, err := h.events.GetProviderStats(ctx, "paytr", hours)
	if err != nil {
		h.searchError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Stats retrieved", map[string]any{
		"hours": hours,
		"stats": stats,
	})
}

func (h *EventsHandler) searchError(w http.ResponseWriter, err error) {
	if errors.Is(err, opensearch.ErrLoggingDisabled) {
		response.Error(w, http.StatusServiceUnavailable, "Event logging is disabled", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "Failed to search events", err)
}

func parseHours(raw string) int {
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return defaultStatsHours
	}
	return min(hours, maxStatsHours)
}
