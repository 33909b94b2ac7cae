package config

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/course-payments/common/errors"
)

func bkashSettings() Static {
	return Static{
		KeyBkashAppKey:      "app-key",
		KeyBkashAppSecret:   "app-secret",
		KeyBkashUsername:    "merchant",
		KeyBkashPassword:    "secret",
		KeyBkashCallbackURL: "https://api.example.com/api/payments/bkash/callback",
		KeyBkashIsLive:      "true",
		KeyBkashBaseURL:     "https://bkash.test/v1.2.0-beta/",
	}
}

func sslSettings() Static {
	return Static{
		KeySSLStoreID:       "store",
		KeySSLStorePassword: "store@ssl",
		KeySSLSuccessURL:    "https://shop.example.com/payment/success",
		KeySSLFailURL:       "https://shop.example.com/payment/failed",
		KeySSLCancelURL:     "https://shop.example.com/payment/cancelled",
		KeySSLIPNURL:        "https://api.example.com/api/payments/sslcommerz/ipn",
	}
}

func TestLoadBkash(t *testing.T) {
	creds, err := LoadBkash(context.Background(), bkashSettings())
	require.NoError(t, err)
	assert.Equal(t, "app-key", creds.AppKey)
	assert.True(t, creds.IsLive)
	assert.Equal(t, "https://bkash.test/v1.2.0-beta", creds.BaseURL)
}

func TestLoadBkash_MissingFields(t *testing.T) {
	settings := bkashSettings()
	delete(settings, KeyBkashPassword)
	settings[KeyBkashAppSecret] = "   "

	_, err := LoadBkash(context.Background(), settings)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeConfigurationError))
	assert.Contains(t, err.Error(), "bkash_app_secret, bkash_password")
}

func TestLoadSSLCommerz(t *testing.T) {
	creds, err := LoadSSLCommerz(context.Background(), sslSettings())
	require.NoError(t, err)
	assert.Equal(t, "store", creds.StoreID)
	assert.False(t, creds.IsLive)

	settings := sslSettings()
	settings[KeySSLIPNURL] = "not a url"
	_, err = LoadSSLCommerz(context.Background(), settings)
	require.True(t, errors.Is(err, errors.ErrCodeConfigurationError))
	assert.Contains(t, err.Error(), KeySSLIPNURL)
}

type failingProvider struct{}

func (failingProvider) Get(context.Context, ...string) (map[string]string, error) {
	return nil, stderrors.New("settings table unavailable")
}

func TestLoad_ProviderFailure(t *testing.T) {
	_, err := LoadSSLCommerz(context.Background(), failingProvider{})
	require.True(t, errors.Is(err, errors.ErrCodeConfigurationError))
}

func TestStatic_Get(t *testing.T) {
	got, err := Static{"a": "1", "b": "2"}.Get(context.Background(), "a", "c")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1"}, got)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("GATEWAY_TIMEOUT", "5s")
	t.Setenv("OUTBOX_INTERVAL", "nonsense")
	t.Setenv("FRONTEND_URL", "https://shop.example.com/")
	t.Setenv("LOG_DEVELOPMENT", "yes")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, time.Second, cfg.OutboxInterval)
	assert.Equal(t, "https://shop.example.com", cfg.FrontendURL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Development)
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, "yes": true, "false": false, "": false, "0": false} {
		assert.Equal(t, want, ParseBool(in), in)
	}
}
