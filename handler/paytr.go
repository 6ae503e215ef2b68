package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopaytr/infra/config"
	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/mstgnz/gopaytr/infra/metrics"
	"github.com/mstgnz/gopaytr/infra/middle"
	"github.com/mstgnz/gopaytr/infra/opensearch"
	"github.com/mstgnz/gopaytr/infra/response"
	"github.com/mstgnz/gopaytr/provider"
)

const (
	callbackOK      = "OK"
	callbackBadHash = "PAYTR notification failed: bad hash"
	callbackFailed  = "PAYTR notification failed: outcome not processed"

	FlashSuccessCookie = "paytr_flash_success"
	FlashErrorCookie   = "paytr_flash_error"

	flashMaxAge         = 60
	maxCallbackMemory   = 1 << 20
	tokenRequestTimeout = 30 * time.Second
	eventTimeout        = 5 * time.Second
)

// OutcomeHandler receives verified payment outcomes. Returning an error
// makes the callback answer 500 so the provider delivers it again.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, outcome provider.Outcome) error
}

// OutcomeFunc adapts a function to OutcomeHandler
type OutcomeFunc func(ctx context.Context, outcome provider.Outcome) error

// HandleOutcome calls f
func (f OutcomeFunc) HandleOutcome(ctx context.Context, outcome provider.Outcome) error {
	return f(ctx, outcome)
}

// EventRecorder stores payment events, e.g. in OpenSearch
type EventRecorder interface {
	LogPaymentEvent(ctx context.Context, event opensearch.PaymentEvent) error
}

// TokenResponse is returned by the token endpoint on success
type TokenResponse struct {
	Token       string `json:"token"`
	IframeURL   string `json:"iframeUrl"`
	MerchantOid string `json:"merchantOid"`
}

// PaytrHandler serves the PayTR callback, browser return and token routes
type PaytrHandler struct {
	gateway  provider.Gateway
	cfg      *config.PaytrConfig
	validate *validator.Validate
	outcomes OutcomeHandler
	events   EventRecorder
	metrics  *metrics.PaytrMetrics
}

// HandlerOption configures optional PaytrHandler collaborators
type HandlerOption func(*PaytrHandler)

// WithOutcomeHandler sets the receiver of verified outcomes
func WithOutcomeHandler(outcomes OutcomeHandler) HandlerOption {
	return func(h *PaytrHandler) { h.outcomes = outcomes }
}

// WithEventRecorder sets where payment events are recorded
func WithEventRecorder(events EventRecorder) HandlerOption {
	return func(h *PaytrHandler) { h.events = events }
}

// WithMetrics sets the payment metrics collectors
func WithMetrics(m *metrics.PaytrMetrics) HandlerOption {
	return func(h *PaytrHandler) { h.metrics = m }
}

// NewPaytrHandler creates a new PayTR handler
func NewPaytrHandler(gateway provider.Gateway, cfg *config.PaytrConfig, validate *validator.Validate, opts ...HandlerOption) *PaytrHandler {
	h := &PaytrHandler{
		gateway:  gateway,
		cfg:      cfg,
		validate: validate,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Callback handles the server to server payment notification. It answers
// with the plain text the provider expects.
func (h *PaytrHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if err := parseCallbackForm(r); err != nil {
		logger.Warn("PayTR notification with unreadable form", logger.LogContext{
			Provider:  "paytr",
			RequestID: middle.GetRequestID(r.Context()),
			Fields:    map[string]any{"error": err.Error(), "client_ip": middle.GetClientIP(r)},
		})
		response.Text(w, http.StatusBadRequest, callbackBadHash)
		return
	}

	post := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		post[key] = r.PostForm.Get(key)
	}

	event := opensearch.PaymentEvent{
		EventType:   opensearch.EventCallback,
		Provider:    "paytr",
		MerchantOid: post["merchant_oid"],
		Status:      post["status"],
		RequestID:   middle.GetRequestID(r.Context()),
		ClientIP:    middle.GetClientIP(r),
		UserAgent:   r.UserAgent(),
		TestMode:    post["test_mode"] == "1",
	}

	outcome, err := h.gateway.HandleCallback(post)
	if err != nil {
		logger.Warn("PayTR notification failed: bad hash", logger.LogContext{
			Provider:  "paytr",
			RequestID: event.RequestID,
			Fields: map[string]any{
				"client_ip":    event.ClientIP,
				"user_agent":   event.UserAgent,
				"merchant_oid": event.MerchantOid,
			},
		})
		h.metrics.ObserveCallback(metrics.CallbackBadHash)
		event.Message = callbackBadHash
		h.record(event)
		response.Text(w, http.StatusBadRequest, callbackBadHash)
		return
	}

	event.MerchantOid = outcome.MerchantOid()
	result := metrics.CallbackFailed
	switch o := outcome.(type) {
	case provider.PaymentSucceeded:
		result = metrics.CallbackSuccess
		event.Success = true
		event.Amount = int64(o.Amount)
	case provider.PaymentFailed:
		event.Amount = int64(o.Payload.TotalAmount)
		event.Message = o.Reason
	}

	if h.outcomes != nil {
		if err := h.outcomes.HandleOutcome(r.Context(), outcome); err != nil {
			logger.Error("PayTR outcome handler failed", err, logger.LogContext{
				Provider:  "paytr",
				RequestID: event.RequestID,
				Fields:    map[string]any{"merchant_oid": event.MerchantOid},
			})
			h.metrics.ObserveCallback(metrics.CallbackError)
			event.Message = err.Error()
			h.record(event)
			response.Text(w, http.StatusInternalServerError, callbackFailed)
			return
		}
	}

	logger.Info("PayTR notification processed", logger.LogContext{
		Provider:  "paytr",
		RequestID: event.RequestID,
		Fields: map[string]any{
			"merchant_oid": event.MerchantOid,
			"status":       event.Status,
		},
	})
	h.metrics.ObserveCallback(result)
	h.record(event)
	response.Text(w, http.StatusOK, callbackOK)
}

// parseCallbackForm fills r.PostForm from an urlencoded or multipart body
func parseCallbackForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxCallbackMemory)
	}
	return r.ParseForm()
}

// Success redirects the buyer after a completed payment
func (h *PaytrHandler) Success(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.cfg.RedirectSuccess, FlashSuccessCookie, h.cfg.SuccessMessage)
}

// Fail redirects the buyer after a failed or cancelled payment
func (h *PaytrHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.cfg.RedirectFail, FlashErrorCookie, h.cfg.FailMessage)
}

func (h *PaytrHandler) redirect(w http.ResponseWriter, r *http.Request, target, cookie, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, config.RedirectTarget(target), http.StatusFound)
}

// RequestToken exchanges a JSON token request for an iframe token
func (h *PaytrHandler) RequestToken(w http.ResponseWriter, r *http.Request) {
	var req provider.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveInvalidRequest("validation")
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.ClientIP = middle.GetClientIP(r)

	if err := h.validate.Struct(req); err != nil {
		h.metrics.ObserveInvalidRequest("validation")
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), tokenRequestTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.gateway.RequestToken(ctx, req)
	if err != nil {
		var validationErr *provider.ValidationError
		switch {
		case errors.As(err, &validationErr):
			h.metrics.ObserveInvalidRequest("validation")
			response.Error(w, http.StatusBadRequest, "Validation error", err)
		case errors.Is(err, provider.ErrMissingCredentials):
			h.metrics.ObserveInvalidRequest("configuration")
			logger.Error("PayTR gateway is not configured", err, logger.LogContext{Provider: "paytr"})
			response.Error(w, http.StatusInternalServerError, "Payment gateway not configured", nil)
		default:
			h.metrics.ObserveInvalidRequest("internal")
			response.Error(w, http.StatusInternalServerError, "Token request failed", err)
		}
		return
	}
	elapsed := time.Since(start)
	h.metrics.ObserveToken(*result, elapsed)

	h.record(opensearch.PaymentEvent{
		EventType:        opensearch.EventTokenRequest,
		Provider:         "paytr",
		MerchantOid:      result.MerchantOid,
		RequestID:        middle.GetRequestID(r.Context()),
		ClientIP:         req.ClientIP,
		UserAgent:        r.UserAgent(),
		Amount:           int64(math.Round(req.TotalAmount * 100)),
		Currency:         req.Currency,
		Success:          result.Success,
		FailureKind:      string(result.Kind),
		Message:          result.Message,
		ProcessingTimeMs: elapsed.Milliseconds(),
		TestMode:         h.cfg != nil && h.cfg.TestMode,
	})

	if !result.Success {
		status := http.StatusBadGateway
		if result.Kind == provider.FailureProvider {
			status = http.StatusUnprocessableEntity
		}
		response.Error(w, status, result.Message, nil)
		return
	}

	response.Success(w, http.StatusOK, "Token created", TokenResponse{
		Token:       result.Token,
		IframeURL:   h.gateway.IframeURL(result.Token),
		MerchantOid: result.MerchantOid,
	})
}

// record stores the event without delaying the response
func (h *PaytrHandler) record(event opensearch.PaymentEvent) {
	if h.events == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		if err := h.events.LogPaymentEvent(ctx, event); err != nil {
			logger.Warn("Failed to record payment event", logger.LogContext{
				Provider: "paytr",
				Fields:   map[string]any{"error": err.Error(), "event_type": event.EventType},
			})
		}
	}()
}
