package provider

import (
	"bytes"
	"context"
	"encoding/json"
)

// Credentials are the merchant secrets issued by the payment provider
type Credentials struct {
	MerchantID   string `json:"merchantId"`
	MerchantKey  string `json:"-"`
	MerchantSalt string `json:"-"`
}

// Complete reports whether all three credential parts are set
func (c Credentials) Complete() bool {
	return c.MerchantID != "" && c.MerchantKey != "" && c.MerchantSalt != ""
}

// Customer represents the buyer information sent with a token request
type Customer struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	IPAddress string `json:"ip,omitempty"`
}

// BasketRow is a single untyped basket entry in [name, price, quantity] form.
// Rows usually come straight from decoded JSON, so each element may be a
// string or a number.
type BasketRow []any

// NewBasketRow builds a well-formed basket row
func NewBasketRow(name string, price float64, quantity int) BasketRow {
	return BasketRow{name, price, quantity}
}

// BasketItem is a sanitized basket entry. It encodes to JSON as the
// [name, price, quantity] triple the provider expects.
type BasketItem struct {
	Name     string
	Price    string
	Quantity int
}

// MarshalJSON encodes the item as a three element array. HTML characters
// are left unescaped; names are already entity-encoded by the sanitizer.
func (b BasketItem) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]any{b.Name, b.Price, b.Quantity}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Installments holds the installment bounds for a token request
type Installments struct {
	NoInstallment  int `json:"noInstallment"`
	MaxInstallment int `json:"maxInstallment"`
}

// TokenRequest contains everything needed to request an iframe token
type TokenRequest struct {
	Customer     Customer     `json:"customer"`
	Basket       []BasketRow  `json:"basket" validate:"required,min=1"`
	OrderID      string       `json:"orderId" validate:"required"`
	TotalAmount  float64      `json:"totalAmount" validate:"gt=0"`
	OkURL        string       `json:"okUrl,omitempty" validate:"omitempty,url"`
	FailURL      string       `json:"failUrl,omitempty" validate:"omitempty,url"`
	Currency     string       `json:"currency,omitempty"`
	Lang         string       `json:"lang,omitempty"`
	Installments Installments `json:"installments"`
	// ClientIP is the network address the host observed for the buyer.
	// It is used when Customer.IPAddress is empty.
	ClientIP string `json:"-"`
}

// FailureKind classifies a failed token request
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTransport FailureKind = "transport"
	FailureProtocol  FailureKind = "protocol"
	FailureProvider  FailureKind = "provider"
)

// TokenResult is the outcome of a token request. Network and provider side
// failures are reported here instead of as errors.
type TokenResult struct {
	Success     bool        `json:"success"`
	Token       string      `json:"token,omitempty"`
	Message     string      `json:"message,omitempty"`
	MerchantOid string      `json:"merchantOid,omitempty"`
	Kind        FailureKind `json:"kind,omitempty"`
	Err         error       `json:"-"`
}

// CallbackPayload is the sanitized projection of a provider callback
type CallbackPayload struct {
	MerchantOid      string `json:"merchant_oid"`
	Status           string `json:"status"`
	TotalAmount      int    `json:"total_amount"`
	Hash             string `json:"hash"`
	FailedReasonCode int    `json:"failed_reason_code"`
	FailedReasonMsg  string `json:"failed_reason_msg"`
	TestMode         int    `json:"test_mode"`
	PaymentType      string `json:"payment_type"`
}

// Succeeded reports whether the provider marked the payment as successful
func (p CallbackPayload) Succeeded() bool {
	return p.Status == "success"
}

// Outcome is the result of a verified callback. It is either
// PaymentSucceeded or PaymentFailed.
type Outcome interface {
	MerchantOid() string
	isOutcome()
}

// PaymentSucceeded is reported for a verified successful payment.
// Amount is in minor units.
type PaymentSucceeded struct {
	OrderID string
	Amount  int
	Payload CallbackPayload
}

func (o PaymentSucceeded) MerchantOid() string { return o.OrderID }
func (PaymentSucceeded) isOutcome()            {}

// PaymentFailed is reported for a verified failed payment
type PaymentFailed struct {
	OrderID string
	Reason  string
	Payload CallbackPayload
}

func (o PaymentFailed) MerchantOid() string { return o.OrderID }
func (PaymentFailed) isOutcome()            {}

// Gateway defines the operations a hosted payment page integration exposes
type Gateway interface {
	// RequestToken builds and signs a payment request and exchanges it for an iframe token
	RequestToken(ctx context.Context, request TokenRequest) (*TokenResult, error)

	// VerifyCallback checks the signature of an inbound provider callback
	VerifyCallback(post map[string]string) bool

	// HandleCallback verifies a callback and maps it to an Outcome
	HandleCallback(post map[string]string) (Outcome, error)

	// IframeURL returns the hosted payment page address for a token
	IframeURL(token string) string
}
