package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/config"
)

type fakeBkash struct {
	t         *testing.T
	grant     func(w http.ResponseWriter, r *http.Request)
	create    func(w http.ResponseWriter, r *http.Request)
	execute   func(w http.ResponseWriter, r *http.Request)
	grantHits int
}

func (f *fakeBkash) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/tokenized/checkout/token/grant", func(w http.ResponseWriter, r *http.Request) {
		f.grantHits++
		assert.Equal(f.t, "merchant", r.Header.Get("username"))
		assert.Equal(f.t, "secret", r.Header.Get("password"))
		var body bkashGrantRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(f.t, "app-key", body.AppKey)
		assert.Equal(f.t, "app-secret", body.AppSecret)
		f.grant(w, r)
	})
	mux.HandleFunc("/tokenized/checkout/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "id-token", r.Header.Get("Authorization"))
		assert.Equal(f.t, "app-key", r.Header.Get("X-APP-Key"))
		f.create(w, r)
	})
	mux.HandleFunc("/tokenized/checkout/execute", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "id-token", r.Header.Get("Authorization"))
		f.execute(w, r)
	})
	srv := httptest.NewServer(mux)
	f.t.Cleanup(srv.Close)
	return srv
}

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func grantOK(w http.ResponseWriter, _ *http.Request) {
	writeBody(w, http.StatusOK, map[string]interface{}{
		"statusCode": "0000", "statusMessage": "Successful", "id_token": "id-token", "token_type": "Bearer", "expires_in": 3600,
	})
}

func bkashProvider(baseURL string) config.Static {
	return config.Static{
		config.KeyBkashAppKey:      "app-key",
		config.KeyBkashAppSecret:   "app-secret",
		config.KeyBkashUsername:    "merchant",
		config.KeyBkashPassword:    "secret",
		config.KeyBkashCallbackURL: "https://api.example.com/api/payments/bkash/callback",
		config.KeyBkashBaseURL:     baseURL,
	}
}

func testSession() Session {
	return Session{
		TransactionID: "BKS123",
		Amount:        decimal.NewFromInt(2500),
		Currency:      "BDT",
		CourseID:      "course-1",
		CourseTitle:   "Go for Payments",
		Customer:      Customer{ID: "u1", Name: "Rahim", Email: "r@example.com", Phone: "01711111111"},
	}
}

func TestBkash_Begin(t *testing.T) {
	fake := &fakeBkash{t: t, grant: grantOK}
	fake.create = func(w http.ResponseWriter, r *http.Request) {
		var body bkashCreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0011", body.Mode)
		assert.Equal(t, "2500.00", body.Amount)
		assert.Equal(t, "BDT", body.Currency)
		assert.Equal(t, "sale", body.Intent)
		assert.Equal(t, "BKS123", body.MerchantInvoiceNumber)
		assert.Equal(t, "01711111111", body.PayerReference)
		assert.Equal(t, "https://api.example.com/api/payments/bkash/callback", body.CallbackURL)
		writeBody(w, http.StatusOK, map[string]string{
			"statusCode": "0000", "paymentID": "TR0011ABC", "bkashURL": "https://sandbox.payment.bkash.com/?paymentId=TR0011ABC",
		})
	}
	srv := fake.server()

	gw := NewBkash(bkashProvider(srv.URL), NewHTTPClient(5*time.Second), zap.NewNop())
	checkout, err := gw.Begin(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, "TR0011ABC", checkout.SessionID)
	assert.Equal(t, "https://sandbox.payment.bkash.com/?paymentId=TR0011ABC", checkout.RedirectURL)
}

func TestBkash_BeginErrors(t *testing.T) {
	var tests = []struct {
		name     string
		settings func(base string) config.Static
		grant    func(w http.ResponseWriter, r *http.Request)
		create   func(w http.ResponseWriter, r *http.Request)
		wantCode errors.ErrorCode
	}{
		{
			name: "missing credentials",
			settings: func(base string) config.Static {
				s := bkashProvider(base)
				delete(s, config.KeyBkashAppSecret)
				return s
			},
			wantCode: errors.ErrCodeConfigurationError,
		},
		{
			name: "grant without token",
			grant: func(w http.ResponseWriter, _ *http.Request) {
				writeBody(w, http.StatusUnauthorized, map[string]string{"statusCode": "2079", "statusMessage": "Invalid username and password"})
			},
			wantCode: errors.ErrCodeGatewayAuthError,
		},
		{
			name:     "grant returns garbage",
			grant:    func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("<html>")) },
			wantCode: errors.ErrCodeGatewayAuthError,
		},
		{
			name:  "create without url",
			grant: grantOK,
			create: func(w http.ResponseWriter, _ *http.Request) {
				writeBody(w, http.StatusOK, map[string]string{"statusCode": "2023", "statusMessage": "Insufficient Balance"})
			},
			wantCode: errors.ErrCodeGatewaySessionError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBkash{t: t, grant: tt.grant, create: tt.create}
			srv := fake.server()
			settings := bkashProvider(srv.URL)
			if tt.settings != nil {
				settings = tt.settings(srv.URL)
			}

			gw := NewBkash(settings, NewHTTPClient(5*time.Second), zap.NewNop())
			_, err := gw.Begin(context.Background(), testSession())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err), err.Error())
			if tt.wantCode == errors.ErrCodeConfigurationError {
				assert.Zero(t, fake.grantHits)
			}
		})
	}
}

func TestBkash_Confirm(t *testing.T) {
	t.Run("trxID proves success", func(t *testing.T) {
		fake := &fakeBkash{t: t, grant: grantOK}
		fake.execute = func(w http.ResponseWriter, r *http.Request) {
			var body bkashExecuteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "TR0011ABC", body.PaymentID)
			writeBody(w, http.StatusOK, map[string]string{
				"statusCode": "0000", "paymentID": "TR0011ABC", "trxID": "X", "transactionStatus": "Completed",
				"amount": "2500.00", "merchantInvoiceNumber": "BKS123",
			})
		}
		srv := fake.server()

		gw := NewBkash(bkashProvider(srv.URL), NewHTTPClient(5*time.Second), zap.NewNop())
		outcome, err := gw.Confirm(context.Background(), "TR0011ABC")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "X", outcome.GatewayTransactionID)
		assert.Equal(t, "BKS123", outcome.TransactionID)
		assert.True(t, outcome.Amount.Equal(decimal.NewFromInt(2500)))
		assert.Equal(t, 1, fake.grantHits)
	})

	t.Run("rejected execute is a failed outcome", func(t *testing.T) {
		fake := &fakeBkash{t: t, grant: grantOK}
		fake.execute = func(w http.ResponseWriter, _ *http.Request) {
			writeBody(w, http.StatusOK, map[string]string{"statusCode": "2056", "statusMessage": "Invalid Payment State"})
		}
		srv := fake.server()

		gw := NewBkash(bkashProvider(srv.URL), NewHTTPClient(5*time.Second), zap.NewNop())
		outcome, err := gw.Confirm(context.Background(), "TR0011ABC")
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, "Invalid Payment State", outcome.Reason)
	})

	t.Run("each confirm grants a fresh token", func(t *testing.T) {
		fake := &fakeBkash{t: t, grant: grantOK}
		fake.execute = func(w http.ResponseWriter, _ *http.Request) {
			writeBody(w, http.StatusOK, map[string]string{"statusCode": "0000", "trxID": "X"})
		}
		srv := fake.server()

		gw := NewBkash(bkashProvider(srv.URL), NewHTTPClient(5*time.Second), zap.NewNop())
		_, err := gw.Confirm(context.Background(), "P1")
		require.NoError(t, err)
		_, err = gw.Confirm(context.Background(), "P1")
		require.NoError(t, err)
		assert.Equal(t, 2, fake.grantHits)
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		gw := NewBkash(bkashProvider(srv.URL), NewHTTPClient(time.Second), zap.NewNop())
		_, err := gw.Confirm(context.Background(), "P1")
		assert.Equal(t, errors.ErrCodeGatewayAuthError, errors.CodeOf(err))
	})
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, bkashSandboxURL, baseURL("", false, bkashSandboxURL, bkashLiveURL))
	assert.Equal(t, bkashLiveURL, baseURL("", true, bkashSandboxURL, bkashLiveURL))
	assert.Equal(t, "http://override", baseURL("http://override", true, bkashSandboxURL, bkashLiveURL))
}
