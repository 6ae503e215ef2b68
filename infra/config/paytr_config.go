package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mstgnz/gopaytr/provider"
)

const (
	defaultRoutePrefix     = "payment/paytr"
	defaultSuccessMessage  = "Ödeme başarılı!"
	defaultFailMessage     = "Ödeme başarısız!"
	defaultMerchantProfile = "default"
)

// RouteConfig holds the path segments of the PayTR routes
type RouteConfig struct {
	Prefix   string
	Callback string `validate:"required"`
	Success  string `validate:"required"`
	Fail     string `validate:"required"`
}

// Path joins the prefix and a segment into an absolute route path
func (r RouteConfig) Path(segment string) string {
	prefix := strings.Trim(r.Prefix, "/")
	segment = strings.Trim(segment, "/")
	if prefix == "" {
		return "/" + segment
	}
	return "/" + prefix + "/" + segment
}

func (r RouteConfig) CallbackPath() string { return r.Path(r.Callback) }
func (r RouteConfig) SuccessPath() string  { return r.Path(r.Success) }
func (r RouteConfig) FailPath() string     { return r.Path(r.Fail) }

// PaytrConfig is the merchant and routing configuration of the PayTR gateway
type PaytrConfig struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	TestMode     bool
	Debug        bool
	TimeoutLimit int

	// OkURL and FailURL are the absolute redirect URLs sent to PayTR
	OkURL   string `validate:"omitempty,url"`
	FailURL string `validate:"omitempty,url"`

	Routes RouteConfig

	RedirectSuccess string
	RedirectFail    string
	SuccessMessage  string
	FailMessage     string

	CredentialsDB   string
	MerchantProfile string `validate:"required"`
}

// CredentialStore loads merchant credentials by profile name
type CredentialStore interface {
	LoadCredentials(profile string) (provider.Credentials, error)
}

// LoadPaytrConfig reads the PayTR configuration from the environment
func LoadPaytrConfig(app *AppConfig) (*PaytrConfig, error) {
	cfg := &PaytrConfig{
		MerchantID:   GetEnv("PAYTR_MERCHANT_ID", ""),
		MerchantKey:  GetEnv("PAYTR_MERCHANT_KEY", ""),
		MerchantSalt: GetEnv("PAYTR_MERCHANT_SALT", ""),
		TestMode:     GetBoolEnv("PAYTR_TEST_MODE", false),
		Debug:        GetBoolEnv("PAYTR_DEBUG", false),
		TimeoutLimit: clampTimeout(GetIntEnv("PAYTR_TIMEOUT_LIMIT", 30)),
		Routes: RouteConfig{
			Prefix:   GetEnv("PAYTR_ROUTE_PREFIX", defaultRoutePrefix),
			Callback: GetEnv("PAYTR_ROUTE_CALLBACK", "callback"),
			Success:  GetEnv("PAYTR_ROUTE_SUCCESS", "success"),
			Fail:     GetEnv("PAYTR_ROUTE_FAIL", "fail"),
		},
		RedirectSuccess: GetEnv("PAYTR_REDIRECT_SUCCESS", "/"),
		RedirectFail:    GetEnv("PAYTR_REDIRECT_FAIL", "/"),
		SuccessMessage:  GetEnv("PAYTR_SUCCESS_MESSAGE", defaultSuccessMessage),
		FailMessage:     GetEnv("PAYTR_FAIL_MESSAGE", defaultFailMessage),
		CredentialsDB:   GetEnv("PAYTR_CREDENTIALS_DB", ""),
		MerchantProfile: GetEnv("PAYTR_MERCHANT_PROFILE", defaultMerchantProfile),
	}

	if app != nil && app.AppURL != "" {
		base := strings.TrimRight(app.AppURL, "/")
		cfg.OkURL = base + cfg.Routes.SuccessPath()
		cfg.FailURL = base + cfg.Routes.FailPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with the shared validator
func (c *PaytrConfig) Validate() error {
	if err := App().Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid paytr configuration: %w", err)
	}
	return nil
}

// Credentials returns the configured merchant credentials
func (c *PaytrConfig) Credentials() provider.Credentials {
	return provider.Credentials{
		MerchantID:   c.MerchantID,
		MerchantKey:  c.MerchantKey,
		MerchantSalt: c.MerchantSalt,
	}
}

// ApplyStore overrides the credentials with the ones stored for the
// configured merchant profile. Empty stored values keep the env values.
func (c *PaytrConfig) ApplyStore(store CredentialStore) error {
	if store == nil {
		return errors.New("credential store is nil")
	}

	creds, err := store.LoadCredentials(c.MerchantProfile)
	if err != nil {
		return err
	}

	if creds.MerchantID != "" {
		c.MerchantID = creds.MerchantID
	}
	if creds.MerchantKey != "" {
		c.MerchantKey = creds.MerchantKey
	}
	if creds.MerchantSalt != "" {
		c.MerchantSalt = creds.MerchantSalt
	}
	return nil
}

// RedirectTarget returns target when it is a relative path or an http(s)
// URL and "/" otherwise
func RedirectTarget(target string) string {
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "http") {
		return target
	}
	return "/"
}

func clampTimeout(minutes int) int {
	return max(1, min(1440, minutes))
}
