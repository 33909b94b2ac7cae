package config

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kyungseok/course-payments/common/errors"
)

// Provider reads gateway settings. Implementations are read-only and are queried on every request.
type Provider interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
}

// Static is a fixed in-memory Provider
type Static map[string]string

// Get returns the requested keys that are present
func (s Static) Get(_ context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Settings keys
const (
	KeyBkashAppKey      = "bkash_app_key"
	KeyBkashAppSecret   = "bkash_app_secret"
	KeyBkashUsername    = "bkash_username"
	KeyBkashPassword    = "bkash_password"
	KeyBkashCallbackURL = "bkash_callback_url"
	KeyBkashIsLive      = "bkash_is_live"
	KeyBkashBaseURL     = "bkash_base_url"

	KeySSLStoreID       = "sslcommerz_store_id"
	KeySSLStorePassword = "sslcommerz_store_password"
	KeySSLSuccessURL    = "sslcommerz_success_url"
	KeySSLFailURL       = "sslcommerz_fail_url"
	KeySSLCancelURL     = "sslcommerz_cancel_url"
	KeySSLIPNURL        = "sslcommerz_ipn_url"
	KeySSLIsLive        = "sslcommerz_is_live"
	KeySSLBaseURL       = "sslcommerz_base_url"
)

// BkashCredentials for the tokenized checkout API
type BkashCredentials struct {
	AppKey      string `setting:"bkash_app_key" validate:"required"`
	AppSecret   string `setting:"bkash_app_secret" validate:"required"`
	Username    string `setting:"bkash_username" validate:"required"`
	Password    string `setting:"bkash_password" validate:"required"`
	CallbackURL string `setting:"bkash_callback_url" validate:"required,url"`
	IsLive      bool
	BaseURL     string
}

// SSLCommerzCredentials for the hosted checkout and validation APIs
type SSLCommerzCredentials struct {
	StoreID       string `setting:"sslcommerz_store_id" validate:"required"`
	StorePassword string `setting:"sslcommerz_store_password" validate:"required"`
	SuccessURL    string `setting:"sslcommerz_success_url" validate:"required,url"`
	FailURL       string `setting:"sslcommerz_fail_url" validate:"required,url"`
	CancelURL     string `setting:"sslcommerz_cancel_url" validate:"required,url"`
	IPNURL        string `setting:"sslcommerz_ipn_url" validate:"required,url"`
	IsLive        bool
	BaseURL       string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("setting")
	})
	return v
}

// LoadBkash reads and checks bKash credentials
func LoadBkash(ctx context.Context, p Provider) (*BkashCredentials, error) {
	values, err := p.Get(ctx,
		KeyBkashAppKey, KeyBkashAppSecret, KeyBkashUsername, KeyBkashPassword,
		KeyBkashCallbackURL, KeyBkashIsLive, KeyBkashBaseURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigurationError, "failed to load bkash settings", err)
	}

	creds := &BkashCredentials{
		AppKey:      trimmed(values, KeyBkashAppKey),
		AppSecret:   trimmed(values, KeyBkashAppSecret),
		Username:    trimmed(values, KeyBkashUsername),
		Password:    trimmed(values, KeyBkashPassword),
		CallbackURL: trimmed(values, KeyBkashCallbackURL),
		IsLive:      ParseBool(values[KeyBkashIsLive]),
		BaseURL:     strings.TrimRight(trimmed(values, KeyBkashBaseURL), "/"),
	}
	if err := check("bkash", creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// LoadSSLCommerz reads and checks SSLCommerz credentials
func LoadSSLCommerz(ctx context.Context, p Provider) (*SSLCommerzCredentials, error) {
	values, err := p.Get(ctx,
		KeySSLStoreID, KeySSLStorePassword, KeySSLSuccessURL, KeySSLFailURL,
		KeySSLCancelURL, KeySSLIPNURL, KeySSLIsLive, KeySSLBaseURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigurationError, "failed to load sslcommerz settings", err)
	}

	creds := &SSLCommerzCredentials{
		StoreID:       trimmed(values, KeySSLStoreID),
		StorePassword: trimmed(values, KeySSLStorePassword),
		SuccessURL:    trimmed(values, KeySSLSuccessURL),
		FailURL:       trimmed(values, KeySSLFailURL),
		CancelURL:     trimmed(values, KeySSLCancelURL),
		IPNURL:        trimmed(values, KeySSLIPNURL),
		IsLive:        ParseBool(values[KeySSLIsLive]),
		BaseURL:       strings.TrimRight(trimmed(values, KeySSLBaseURL), "/"),
	}
	if err := check("sslcommerz", creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func trimmed(values map[string]string, key string) string {
	return strings.TrimSpace(values[key])
}

// check turns validation failures into one ConfigurationError listing the offending keys
func check(gateway string, creds interface{}) error {
	err := validate.Struct(creds)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrCodeConfigurationError, gateway+" settings are invalid", err)
	}

	keys := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		keys = append(keys, fe.Field())
	}
	sort.Strings(keys)
	return errors.New(errors.ErrCodeConfigurationError,
		fmt.Sprintf("%s settings missing or invalid: %s", gateway, strings.Join(keys, ", ")))
}
