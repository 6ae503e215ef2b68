package paytr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/mstgnz/gopaytr/provider"
)

const (
	providerName = "paytr"

	// API URLs
	apiBaseURL    = "https://www.paytr.com"
	iframeBaseURL = "https://www.paytr.com/odeme/guvenlik/"

	// API Endpoints
	endpointIFrameToken = "/odeme/api/get-token"

	// PayTR Status Codes
	statusSuccess = "success"
	statusFailed  = "failed"

	// Result messages
	msgConnectionError = "Connection error: "
	msgInvalidResponse = "Invalid response from PayTR"
	msgUnknownError    = "Unknown PayTR Error"

	// Default Values
	requestTimeout      = 20 * time.Second
	defaultTimeoutLimit = 30
	minTimeoutLimit     = 1
	maxTimeoutLimit     = 1440
	maxInstallmentLimit = 12

	// payment_amount must stay below 2^63 to fit in int64
	maxMinorAmount = float64(math.MaxInt64)
)

// Config holds everything a Provider needs at construction
type Config struct {
	Credentials provider.Credentials
	TestMode    bool
	// Debug only sets PayTR's debug_on flag and enables verbose local logging
	Debug bool
	// TimeoutLimit is the payment page lifetime in minutes, clamped to 1..1440
	TimeoutLimit int
	// OkURL and FailURL are used when a request does not carry its own
	OkURL   string
	FailURL string
}

// Option customizes a Provider
type Option func(*Provider)

// WithBaseURL points the provider at a different API host
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithTransport replaces the HTTP transport used for the token call
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Provider) {
		p.transport = transport
	}
}

// Provider is the PayTR iframe gateway. It is safe for concurrent use.
type Provider struct {
	mu          sync.RWMutex
	credentials provider.Credentials

	testMode     bool
	debug        bool
	timeoutLimit int
	okURL        string
	failURL      string

	baseURL   string
	transport http.RoundTripper
	client    *provider.ProviderHTTPClient
}

var _ provider.Gateway = (*Provider)(nil)

// NewProvider creates a new PayTR gateway
func NewProvider(conf Config, opts ...Option) *Provider {
	p := &Provider{
		credentials:  conf.Credentials,
		testMode:     conf.TestMode,
		debug:        conf.Debug,
		timeoutLimit: clamp(conf.TimeoutLimit, minTimeoutLimit, maxTimeoutLimit),
		okURL:        conf.OkURL,
		failURL:      conf.FailURL,
		baseURL:      apiBaseURL,
	}
	if conf.TimeoutLimit == 0 {
		p.timeoutLimit = defaultTimeoutLimit
	}

	for _, opt := range opts {
		opt(p)
	}

	httpConfig := provider.CreateHTTPClientConfig(p.baseURL, requestTimeout)
	httpConfig.FreshConnect = true
	httpConfig.Transport = p.transport
	p.client = provider.NewProviderHTTPClient(httpConfig)

	return p
}

// SetCredentials overrides the configured merchant credentials
func (p *Provider) SetCredentials(id, key, salt string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.credentials = provider.Credentials{
		MerchantID:   id,
		MerchantKey:  key,
		MerchantSalt: salt,
	}
	return p
}

func (p *Provider) creds() provider.Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.credentials
}

// Payload is the signed field set sent to the get-token endpoint
type Payload struct {
	MerchantID     string
	UserIP         string
	MerchantOid    string
	Email          string
	PaymentAmount  int64
	UserBasket     string
	DebugOn        int
	NoInstallment  int
	MaxInstallment int
	UserName       string
	UserAddress    string
	UserPhone      string
	OkURL          string
	FailURL        string
	TimeoutLimit   int
	Currency       string
	TestMode       int
	Lang           string
	Token          string
}

// HashString returns the signed concatenation, without the merchant salt
func (p Payload) HashString() string {
	return p.MerchantID + p.UserIP + p.MerchantOid + p.Email +
		strconv.FormatInt(p.PaymentAmount, 10) + p.UserBasket +
		strconv.Itoa(p.NoInstallment) + strconv.Itoa(p.MaxInstallment) +
		p.Currency + strconv.Itoa(p.TestMode)
}

// Form encodes the payload as the get-token request body
func (p Payload) Form() url.Values {
	form := url.Values{}
	form.Set("merchant_id", p.MerchantID)
	form.Set("user_ip", p.UserIP)
	form.Set("merchant_oid", p.MerchantOid)
	form.Set("email", p.Email)
	form.Set("payment_amount", strconv.FormatInt(p.PaymentAmount, 10))
	form.Set("paytr_token", p.Token)
	form.Set("user_basket", p.UserBasket)
	form.Set("debug_on", strconv.Itoa(p.DebugOn))
	form.Set("no_installment", strconv.Itoa(p.NoInstallment))
	form.Set("max_installment", strconv.Itoa(p.MaxInstallment))
	form.Set("user_name", p.UserName)
	form.Set("user_address", p.UserAddress)
	form.Set("user_phone", p.UserPhone)
	form.Set("merchant_ok_url", p.OkURL)
	form.Set("merchant_fail_url", p.FailURL)
	form.Set("timeout_limit", strconv.Itoa(p.TimeoutLimit))
	form.Set("currency", p.Currency)
	form.Set("test_mode", strconv.Itoa(p.TestMode))
	form.Set("lang", p.Lang)
	return form
}

// BuildPayload validates and sanitizes a request and signs it. No network
// call is made; RequestToken sends the result.
func (p *Provider) BuildPayload(request provider.TokenRequest) (*Payload, error) {
	creds := p.creds()
	if !creds.Complete() {
		return nil, &provider.ConfigurationError{Provider: providerName, Err: provider.ErrMissingCredentials}
	}

	merchantOid := MerchantOid(request.OrderID)
	if merchantOid == "" {
		return nil, &provider.ValidationError{Provider: providerName, Field: "order_id", Reason: "empty after removing non-alphanumeric characters"}
	}

	totalAmount := Amount(request.TotalAmount)
	if totalAmount <= 0 {
		return nil, &provider.ValidationError{Provider: providerName, Field: "total_amount", Reason: "must be greater than zero"}
	}
	minorAmount := math.Round(totalAmount * 100)
	if minorAmount >= maxMinorAmount {
		return nil, &provider.ValidationError{Provider: providerName, Field: "total_amount", Reason: "too large"}
	}

	basket := Basket(request.Basket)
	if len(basket) == 0 {
		return nil, &provider.ValidationError{Provider: providerName, Field: "basket", Reason: "no valid items"}
	}
	userBasket, err := encodeBasket(basket)
	if err != nil {
		return nil, fmt.Errorf("paytr: failed to encode basket: %w", err)
	}

	userIP := request.Customer.IPAddress
	if userIP == "" {
		userIP = request.ClientIP
	}

	payload := &Payload{
		MerchantID:     creds.MerchantID,
		UserIP:         IP(userIP),
		MerchantOid:    merchantOid,
		Email:          Email(request.Customer.Email),
		PaymentAmount:  int64(minorAmount),
		UserBasket:     userBasket,
		DebugOn:        boolFlag(p.debug),
		NoInstallment:  noInstallment(request.Installments.NoInstallment),
		MaxInstallment: clamp(request.Installments.MaxInstallment, 0, maxInstallmentLimit),
		UserName:       Text(request.Customer.Name, 100),
		UserAddress:    Text(request.Customer.Address, 300),
		UserPhone:      Phone(request.Customer.Phone),
		OkURL:          firstNonEmpty(request.OkURL, p.okURL),
		FailURL:        firstNonEmpty(request.FailURL, p.failURL),
		TimeoutLimit:   p.timeoutLimit,
		Currency:       Currency(request.Currency),
		TestMode:       boolFlag(p.testMode),
		Lang:           Language(request.Lang),
	}
	payload.Token = sign(payload.HashString()+creds.MerchantSalt, creds.MerchantKey)

	return payload, nil
}

// RequestToken exchanges a signed payment request for an iframe token.
// Only configuration and validation problems are returned as errors;
// transport, protocol and provider failures are reported in the result.
func (p *Provider) RequestToken(ctx context.Context, request provider.TokenRequest) (*provider.TokenResult, error) {
	payload, err := p.BuildPayload(request)
	if err != nil {
		return nil, err
	}

	if p.debug {
		logger.Debug("PayTR token request", logger.LogContext{
			MerchantID: payload.MerchantID,
			Provider:   providerName,
			Fields:     payload.logFields(),
		})
	}

	result := p.send(ctx, payload)
	result.MerchantOid = payload.MerchantOid
	return result, nil
}

func (p *Provider) send(ctx context.Context, payload *Payload) *provider.TokenResult {
	resp, err := p.client.SendForm(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointIFrameToken,
		FormData: payload.Form(),
	})
	if err != nil {
		logger.Error("PayTR token request failed", err, logger.LogContext{
			MerchantID: payload.MerchantID,
			Provider:   providerName,
			Fields:     map[string]any{"merchant_oid": payload.MerchantOid},
		})
		return &provider.TokenResult{
			Message: msgConnectionError + err.Error(),
			Kind:    provider.FailureTransport,
			Err:     &provider.TransportError{Err: err},
		}
	}

	if p.debug {
		logger.Debug("PayTR token response", logger.LogContext{
			MerchantID: payload.MerchantID,
			Provider:   providerName,
			Fields: map[string]any{
				"status_code": resp.StatusCode,
				"body":        string(resp.Body),
			},
		})
	}

	return parseTokenResponse(resp)
}

func parseTokenResponse(resp *provider.HTTPResponse) *provider.TokenResult {
	protocolFailure := func(err error) *provider.TokenResult {
		return &provider.TokenResult{
			Message: msgInvalidResponse,
			Kind:    provider.FailureProtocol,
			Err:     &provider.ProtocolError{StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err},
		}
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return protocolFailure(err)
	}
	if body == nil {
		return protocolFailure(nil)
	}

	if status, _ := body["status"].(string); status == statusSuccess {
		token, ok := body["token"].(string)
		if !ok || token == "" {
			return protocolFailure(errors.New("success response without token"))
		}
		return &provider.TokenResult{Success: true, Token: token}
	}

	message := msgUnknownError
	switch reason := body["reason"].(type) {
	case nil:
	case string:
		if reason != "" {
			message = reason
		}
	default:
		message = fmt.Sprint(reason)
	}

	return &provider.TokenResult{Message: message, Kind: provider.FailureProvider}
}

// VerifyCallback recomputes the callback hash and compares it with the
// supplied one in constant time. A gateway without a merchant key or salt
// never verifies anything.
func (p *Provider) VerifyCallback(post map[string]string) bool {
	creds := p.creds()
	if creds.MerchantKey == "" || creds.MerchantSalt == "" {
		return false
	}

	payload := CallbackData(post)
	expected := callbackHash(payload, creds)

	return subtle.ConstantTimeCompare([]byte(expected), []byte(post["hash"])) == 1
}

// HandleCallback verifies a callback and maps it to a payment outcome
func (p *Provider) HandleCallback(post map[string]string) (provider.Outcome, error) {
	if !p.VerifyCallback(post) {
		return nil, fmt.Errorf("paytr: %w", provider.ErrSignatureMismatch)
	}

	payload := CallbackData(post)
	if payload.Succeeded() {
		return provider.PaymentSucceeded{
			OrderID: payload.MerchantOid,
			Amount:  payload.TotalAmount,
			Payload: payload,
		}, nil
	}

	return provider.PaymentFailed{
		OrderID: payload.MerchantOid,
		Reason:  payload.FailedReasonMsg,
		Payload: payload,
	}, nil
}

// IframeURL returns the hosted payment page address for a token
func (p *Provider) IframeURL(token string) string {
	return iframeBaseURL + token
}

// Hash generation methods

func callbackHash(payload provider.CallbackPayload, creds provider.Credentials) string {
	return sign(payload.MerchantOid+creds.MerchantSalt+payload.Status+strconv.Itoa(payload.TotalAmount), creds.MerchantKey)
}

// sign returns base64(HMAC-SHA256(key, data))
func sign(data, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// encodeBasket JSON-encodes the basket and base64-encodes the JSON. The
// signature covers the base64 string, so the bytes must be stable.
func encodeBasket(basket []provider.BasketItem) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(basket); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Helper methods

func (p Payload) logFields() map[string]any {
	return map[string]any{
		"merchant_oid":    p.MerchantOid,
		"user_ip":         p.UserIP,
		"email":           p.Email,
		"payment_amount":  p.PaymentAmount,
		"user_basket":     p.UserBasket,
		"no_installment":  p.NoInstallment,
		"max_installment": p.MaxInstallment,
		"currency":        p.Currency,
		"test_mode":       p.TestMode,
		"lang":            p.Lang,
		"timeout_limit":   p.TimeoutLimit,
		"paytr_token":     "***",
	}
}

func noInstallment(v int) int {
	if v == 1 {
		return 1
	}
	return 0
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
