package paytr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mstgnz/gopaytr/provider"
)

const (
	fixtureBasket     = "W1siV2lkZ2V0IiwiMTAuNTAiLDFdXQ=="
	fixtureHashString = "100127.0.0.1order123buyer@example.com1050" + fixtureBasket + "00TL1"
	fixtureToken      = "kID9WTybx8T8kd4Gm8mDU9sbB/YqmQIv/0THO5f1UBY="

	// base64(HMAC-SHA256("key", "order123" + "salt" + status + "1050"))
	fixtureSuccessHash = "L82PK6Lq/Xl11hKImhj3pX7/Q22lVb6RlxOMyfoXygE="
	fixtureFailedHash  = "6zZMS2iizagvOgUFkzu87q7tdpUQTw/GkTfcTcyXpY0="
)

func testCredentials() provider.Credentials {
	return provider.Credentials{MerchantID: "100", MerchantKey: "key", MerchantSalt: "salt"}
}

func testRequest() provider.TokenRequest {
	return provider.TokenRequest{
		Customer: provider.Customer{
			Email:     "buyer@example.com",
			Name:      "Ali Veli",
			Address:   "Atatürk Cad. No:1 İstanbul",
			Phone:     "+90 532 123 45 67",
			IPAddress: "127.0.0.1",
		},
		Basket:      []provider.BasketRow{provider.NewBasketRow("Widget", 10.50, 1)},
		OrderID:     "order-123!",
		TotalAmount: 10.5,
		OkURL:       "https://shop.example.com/payment/paytr/success",
		FailURL:     "https://shop.example.com/payment/paytr/fail",
	}
}

// paytrServer stands in for the get-token endpoint and records every call
type paytrServer struct {
	*httptest.Server
	calls int32
	mu    sync.Mutex
	form  url.Values
}

func newPaytrServer(t *testing.T, status int, body string) *paytrServer {
	t.Helper()
	s := &paytrServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		if r.URL.Path != endpointIFrameToken || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		s.mu.Lock()
		s.form = r.PostForm
		s.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *paytrServer) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

func (s *paytrServer) Form() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

func newTestProvider(baseURL string) *Provider {
	return NewProvider(Config{
		Credentials: testCredentials(),
		TestMode:    true,
	}, WithBaseURL(baseURL))
}

func TestProvider_BuildPayload_Fixture(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:0")

	payload, err := p.BuildPayload(testRequest())
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}

	if payload.MerchantOid != "order123" {
		t.Errorf("MerchantOid = %q, want order123", payload.MerchantOid)
	}
	if payload.PaymentAmount != 1050 {
		t.Errorf("PaymentAmount = %d, want 1050", payload.PaymentAmount)
	}
	if payload.UserBasket != fixtureBasket {
		t.Errorf("UserBasket = %q, want %q", payload.UserBasket, fixtureBasket)
	}
	if got := payload.HashString(); got != fixtureHashString {
		t.Errorf("HashString() = %q, want %q", got, fixtureHashString)
	}
	if payload.Token != fixtureToken {
		t.Errorf("Token = %q, want %q", payload.Token, fixtureToken)
	}
	if payload.UserPhone != "+905321234567" {
		t.Errorf("UserPhone = %q", payload.UserPhone)
	}
	if payload.TimeoutLimit != defaultTimeoutLimit {
		t.Errorf("TimeoutLimit = %d, want %d", payload.TimeoutLimit, defaultTimeoutLimit)
	}
}

func TestProvider_BuildPayload_Deterministic(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:0")

	first, err := p.BuildPayload(testRequest())
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.BuildPayload(testRequest())
		if err != nil {
			t.Fatalf("BuildPayload() error = %v", err)
		}
		if again.Token != first.Token {
			t.Fatalf("token changed between calls: %q != %q", again.Token, first.Token)
		}
	}
}

func TestProvider_BuildPayload_LargeAmount(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:0")

	req := testRequest()
	req.TotalAmount = 1e15
	payload, err := p.BuildPayload(req)
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload.PaymentAmount != 100000000000000000 {
		t.Errorf("PaymentAmount = %d, want 100000000000000000", payload.PaymentAmount)
	}
}

func TestProvider_BuildPayload_Normalization(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		modify func(*provider.TokenRequest)
		check  func(*testing.T, *Payload)
	}{
		{
			name:   "Installments clamped",
			config: Config{},
			modify: func(r *provider.TokenRequest) {
				r.Installments = provider.Installments{NoInstallment: 5, MaxInstallment: 20}
			},
			check: func(t *testing.T, p *Payload) {
				if p.NoInstallment != 0 || p.MaxInstallment != 12 {
					t.Errorf("installments = %d/%d, want 0/12", p.NoInstallment, p.MaxInstallment)
				}
			},
		},
		{
			name:   "Single payment flag kept",
			config: Config{},
			modify: func(r *provider.TokenRequest) {
				r.Installments = provider.Installments{NoInstallment: 1, MaxInstallment: -4}
			},
			check: func(t *testing.T, p *Payload) {
				if p.NoInstallment != 1 || p.MaxInstallment != 0 {
					t.Errorf("installments = %d/%d, want 1/0", p.NoInstallment, p.MaxInstallment)
				}
			},
		},
		{
			name:   "Timeout limit clamped high",
			config: Config{TimeoutLimit: 5000},
			check: func(t *testing.T, p *Payload) {
				if p.TimeoutLimit != 1440 {
					t.Errorf("TimeoutLimit = %d, want 1440", p.TimeoutLimit)
				}
			},
		},
		{
			name:   "Timeout limit clamped low",
			config: Config{TimeoutLimit: -10},
			check: func(t *testing.T, p *Payload) {
				if p.TimeoutLimit != 1 {
					t.Errorf("TimeoutLimit = %d, want 1", p.TimeoutLimit)
				}
			},
		},
		{
			name:   "Client IP fallback",
			config: Config{},
			modify: func(r *provider.TokenRequest) {
				r.Customer.IPAddress = ""
				r.ClientIP = "10.0.0.1"
			},
			check: func(t *testing.T, p *Payload) {
				if p.UserIP != "10.0.0.1" {
					t.Errorf("UserIP = %q, want 10.0.0.1", p.UserIP)
				}
			},
		},
		{
			name:   "Invalid IP replaced",
			config: Config{},
			modify: func(r *provider.TokenRequest) {
				r.Customer.IPAddress = "not-an-ip"
			},
			check: func(t *testing.T, p *Payload) {
				if p.UserIP != "0.0.0.0" {
					t.Errorf("UserIP = %q, want 0.0.0.0", p.UserIP)
				}
			},
		},
		{
			name:   "Currency and language normalized",
			config: Config{},
			modify: func(r *provider.TokenRequest) {
				r.Currency = "usd "
				r.Lang = "EN"
			},
			check: func(t *testing.T, p *Payload) {
				if p.Currency != "USD" || p.Lang != "en" {
					t.Errorf("currency/lang = %s/%s, want USD/en", p.Currency, p.Lang)
				}
			},
		},
		{
			name:   "Default redirect URLs",
			config: Config{OkURL: "https://shop.example.com/ok", FailURL: "https://shop.example.com/fail"},
			modify: func(r *provider.TokenRequest) {
				r.OkURL = ""
				r.FailURL = ""
			},
			check: func(t *testing.T, p *Payload) {
				if p.OkURL != "https://shop.example.com/ok" || p.FailURL != "https://shop.example.com/fail" {
					t.Errorf("redirect URLs = %s %s", p.OkURL, p.FailURL)
				}
			},
		},
		{
			name:   "Flags",
			config: Config{Debug: true, TestMode: false},
			check: func(t *testing.T, p *Payload) {
				if p.DebugOn != 1 || p.TestMode != 0 {
					t.Errorf("debug/test = %d/%d, want 1/0", p.DebugOn, p.TestMode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := tt.config
			conf.Credentials = testCredentials()
			p := NewProvider(conf)

			req := testRequest()
			if tt.modify != nil {
				tt.modify(&req)
			}

			payload, err := p.BuildPayload(req)
			if err != nil {
				t.Fatalf("BuildPayload() error = %v", err)
			}
			tt.check(t, payload)
		})
	}
}

func TestProvider_RequestToken_Preconditions(t *testing.T) {
	tests := []struct {
		name      string
		creds     provider.Credentials
		modify    func(*provider.TokenRequest)
		wantField string
		wantConf  bool
	}{
		{
			name:     "Missing credentials",
			creds:    provider.Credentials{MerchantID: "100", MerchantKey: "key"},
			wantConf: true,
		},
		{
			name:      "Empty merchant oid",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.OrderID = "---" },
			wantField: "order_id",
		},
		{
			name:      "Zero amount",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.TotalAmount = 0 },
			wantField: "total_amount",
		},
		{
			name:      "Negative amount",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.TotalAmount = -10 },
			wantField: "total_amount",
		},
		{
			name:      "Amount overflows minor units",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.TotalAmount = 1e17 },
			wantField: "total_amount",
		},
		{
			name:      "Huge amount",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.TotalAmount = 1e300 },
			wantField: "total_amount",
		},
		{
			name:      "Empty basket",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.Basket = nil },
			wantField: "basket",
		},
		{
			name:      "Only malformed rows",
			creds:     testCredentials(),
			modify:    func(r *provider.TokenRequest) { r.Basket = []provider.BasketRow{{"Widget", 10}} },
			wantField: "basket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPaytrServer(t, http.StatusOK, `{"status":"success","token":"unused"}`)
			p := NewProvider(Config{Credentials: tt.creds}, WithBaseURL(server.URL))

			req := testRequest()
			if tt.modify != nil {
				tt.modify(&req)
			}

			result, err := p.RequestToken(context.Background(), req)
			if err == nil {
				t.Fatalf("RequestToken() expected error, got result %+v", result)
			}
			if result != nil {
				t.Errorf("RequestToken() result = %+v, want nil", result)
			}

			if tt.wantConf {
				var confErr *provider.ConfigurationError
				if !errors.As(err, &confErr) {
					t.Errorf("error = %v, want ConfigurationError", err)
				}
				if !errors.Is(err, provider.ErrMissingCredentials) {
					t.Errorf("error = %v, want ErrMissingCredentials", err)
				}
			} else {
				var valErr *provider.ValidationError
				if !errors.As(err, &valErr) {
					t.Fatalf("error = %v, want ValidationError", err)
				}
				if valErr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", valErr.Field, tt.wantField)
				}
				if !errors.Is(err, provider.ErrValidation) {
					t.Errorf("errors.Is(err, ErrValidation) = false")
				}
			}

			if calls := server.Calls(); calls != 0 {
				t.Errorf("outbound calls = %d, want 0", calls)
			}
		})
	}
}

func TestProvider_RequestToken_Success(t *testing.T) {
	server := newPaytrServer(t, http.StatusOK, `{"status":"success","token":"iframe-token-1"}`)
	p := newTestProvider(server.URL)

	result, err := p.RequestToken(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}
	if !result.Success || result.Token != "iframe-token-1" {
		t.Errorf("result = %+v, want success with token", result)
	}
	if result.MerchantOid != "order123" {
		t.Errorf("MerchantOid = %q, want order123", result.MerchantOid)
	}
	if server.Calls() != 1 {
		t.Errorf("outbound calls = %d, want 1", server.Calls())
	}

	form := server.Form()
	want := map[string]string{
		"merchant_id":       "100",
		"user_ip":           "127.0.0.1",
		"merchant_oid":      "order123",
		"email":             "buyer@example.com",
		"payment_amount":    "1050",
		"paytr_token":       fixtureToken,
		"user_basket":       fixtureBasket,
		"debug_on":          "0",
		"no_installment":    "0",
		"max_installment":   "0",
		"user_name":         "Ali Veli",
		"user_phone":        "+905321234567",
		"merchant_ok_url":   "https://shop.example.com/payment/paytr/success",
		"merchant_fail_url": "https://shop.example.com/payment/paytr/fail",
		"timeout_limit":     "30",
		"currency":          "TL",
		"test_mode":         "1",
		"lang":              "tr",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Errorf("form[%s] = %q, want %q", key, got, value)
		}
	}
	if _, ok := form["user_address"]; !ok {
		t.Error("form is missing user_address")
	}
}

func TestProvider_RequestToken_FailureResults(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantKind    provider.FailureKind
	}{
		{
			name:        "Provider reason",
			status:      http.StatusOK,
			body:        `{"status":"failed","reason":"paytr_token gonderilmedi veya gecersiz"}`,
			wantMessage: "paytr_token gonderilmedi veya gecersiz",
			wantKind:    provider.FailureProvider,
		},
		{
			name:        "Provider failure without reason",
			status:      http.StatusOK,
			body:        `{"status":"failed"}`,
			wantMessage: "Unknown PayTR Error",
			wantKind:    provider.FailureProvider,
		},
		{
			name:        "Error status still parsed",
			status:      http.StatusBadRequest,
			body:        `{"status":"failed","reason":"Invalid merchant"}`,
			wantMessage: "Invalid merchant",
			wantKind:    provider.FailureProvider,
		},
		{
			name:        "Non JSON body",
			status:      http.StatusOK,
			body:        `<html>maintenance</html>`,
			wantMessage: "Invalid response from PayTR",
			wantKind:    provider.FailureProtocol,
		},
		{
			name:        "JSON array body",
			status:      http.StatusOK,
			body:        `[1,2,3]`,
			wantMessage: "Invalid response from PayTR",
			wantKind:    provider.FailureProtocol,
		},
		{
			name:        "Null body",
			status:      http.StatusOK,
			body:        `null`,
			wantMessage: "Invalid response from PayTR",
			wantKind:    provider.FailureProtocol,
		},
		{
			name:        "Success without token",
			status:      http.StatusOK,
			body:        `{"status":"success"}`,
			wantMessage: "Invalid response from PayTR",
			wantKind:    provider.FailureProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPaytrServer(t, tt.status, tt.body)
			p := newTestProvider(server.URL)

			result, err := p.RequestToken(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("RequestToken() error = %v", err)
			}
			if result.Success {
				t.Fatalf("result = %+v, want failure", result)
			}
			if result.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", result.Message, tt.wantMessage)
			}
			if result.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", result.Kind, tt.wantKind)
			}
			if tt.wantKind == provider.FailureProtocol {
				var protoErr *provider.ProtocolError
				if !errors.As(result.Err, &protoErr) {
					t.Errorf("Err = %v, want ProtocolError", result.Err)
				} else if protoErr.StatusCode != tt.status {
					t.Errorf("StatusCode = %d, want %d", protoErr.StatusCode, tt.status)
				}
			}
		})
	}
}

func TestProvider_RequestToken_TransportFailure(t *testing.T) {
	server := newPaytrServer(t, http.StatusOK, `{}`)
	baseURL := server.URL
	server.Close()

	p := newTestProvider(baseURL)

	result, err := p.RequestToken(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for unreachable server")
	}
	if !strings.HasPrefix(result.Message, "Connection error: ") {
		t.Errorf("Message = %q, want Connection error prefix", result.Message)
	}
	if result.Kind != provider.FailureTransport {
		t.Errorf("Kind = %q, want transport", result.Kind)
	}
	var transportErr *provider.TransportError
	if !errors.As(result.Err, &transportErr) {
		t.Errorf("Err = %v, want TransportError", result.Err)
	}
}

func TestProvider_RequestToken_ContextCanceled(t *testing.T) {
	server := newPaytrServer(t, http.StatusOK, `{"status":"success","token":"abc"}`)
	p := newTestProvider(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.RequestToken(ctx, testRequest())
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}
	if result.Kind != provider.FailureTransport {
		t.Errorf("Kind = %q, want transport", result.Kind)
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", result.Err)
	}
}

func TestProvider_SetCredentials(t *testing.T) {
	p := NewProvider(Config{TestMode: true}).SetCredentials("100", "key", "salt")

	payload, err := p.BuildPayload(testRequest())
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload.Token != fixtureToken {
		t.Errorf("Token = %q, want %q", payload.Token, fixtureToken)
	}

	p.SetCredentials("", "", "")
	if _, err := p.BuildPayload(testRequest()); !errors.Is(err, provider.ErrMissingCredentials) {
		t.Errorf("error = %v, want ErrMissingCredentials", err)
	}
}

func TestProvider_VerifyCallback(t *testing.T) {
	flipped := "M" + fixtureSuccessHash[1:]

	tests := []struct {
		name  string
		creds provider.Credentials
		post  map[string]string
		want  bool
	}{
		{
			name:  "Valid success hash",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "status": "success", "total_amount": "1050", "hash": fixtureSuccessHash},
			want:  true,
		},
		{
			name:  "Valid failed hash",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "status": "failed", "total_amount": "1050", "hash": fixtureFailedHash},
			want:  true,
		},
		{
			name:  "Flipped character",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "status": "success", "total_amount": "1050", "hash": flipped},
			want:  false,
		},
		{
			name:  "Missing status defaults to failed",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "total_amount": "1050", "hash": fixtureFailedHash},
			want:  true,
		},
		{
			name:  "Tampered amount",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "status": "success", "total_amount": "1", "hash": fixtureSuccessHash},
			want:  false,
		},
		{
			name:  "Missing hash",
			creds: testCredentials(),
			post:  map[string]string{"merchant_oid": "order123", "status": "success", "total_amount": "1050"},
			want:  false,
		},
		{
			name:  "Missing salt",
			creds: provider.Credentials{MerchantID: "100", MerchantKey: "key"},
			post:  map[string]string{"merchant_oid": "order123", "status": "success", "total_amount": "1050", "hash": fixtureSuccessHash},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(Config{Credentials: tt.creds})
			if got := p.VerifyCallback(tt.post); got != tt.want {
				t.Errorf("VerifyCallback() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProvider_HandleCallback(t *testing.T) {
	p := NewProvider(Config{Credentials: testCredentials()})

	outcome, err := p.HandleCallback(map[string]string{
		"merchant_oid": "order123", "status": "success", "total_amount": "1050", "hash": fixtureSuccessHash,
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	succeeded, ok := outcome.(provider.PaymentSucceeded)
	if !ok {
		t.Fatalf("outcome = %T, want PaymentSucceeded", outcome)
	}
	if succeeded.OrderID != "order123" || succeeded.Amount != 1050 {
		t.Errorf("outcome = %+v", succeeded)
	}

	outcome, err = p.HandleCallback(map[string]string{
		"merchant_oid": "order123", "status": "failed", "total_amount": "1050", "hash": fixtureFailedHash,
		"failed_reason_code": "6", "failed_reason_msg": "Yetersiz bakiye",
	})
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	failed, ok := outcome.(provider.PaymentFailed)
	if !ok {
		t.Fatalf("outcome = %T, want PaymentFailed", outcome)
	}
	if failed.MerchantOid() != "order123" || failed.Reason != "Yetersiz bakiye" || failed.Payload.FailedReasonCode != 6 {
		t.Errorf("outcome = %+v", failed)
	}

	_, err = p.HandleCallback(map[string]string{
		"merchant_oid": "order123", "status": "success", "total_amount": "1050", "hash": "bogus",
	})
	if !errors.Is(err, provider.ErrSignatureMismatch) {
		t.Errorf("error = %v, want ErrSignatureMismatch", err)
	}
}

func TestProvider_IframeURL(t *testing.T) {
	p := NewProvider(Config{})
	if got := p.IframeURL("abc123"); got != "https://www.paytr.com/odeme/guvenlik/abc123" {
		t.Errorf("IframeURL() = %q", got)
	}
}
