package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/config"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

const (
	bkashSandboxURL = "https://tokenized.sandbox.bka.sh/v1.2.0-beta"
	bkashLiveURL    = "https://tokenized.pay.bka.sh/v1.2.0-beta"

	bkashStatusOK     = "0000"
	bkashModeCheckout = "0011"
)

// Bkash implements the tokenized checkout pull flow: grant, create, execute
type Bkash struct {
	settings config.Provider
	client   *http.Client
	logger   *zap.Logger
}

// NewBkash creates the bKash gateway
func NewBkash(settings config.Provider, client *http.Client, logger *zap.Logger) *Bkash {
	return &Bkash{
		settings: settings,
		client:   client,
		logger:   logger,
	}
}

// Method reports bkash
func (b *Bkash) Method() domain.PaymentMethod {
	return domain.PaymentMethodBkash
}

type bkashStatus struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
	Message       string `json:"message"`
}

func (s bkashStatus) ok() bool {
	return (s.StatusCode == "" || s.StatusCode == bkashStatusOK) && s.ErrorCode == ""
}

func (s bkashStatus) reason() string {
	for _, r := range []string{s.StatusMessage, s.ErrorMessage, s.Message, s.StatusCode, s.ErrorCode} {
		if r != "" {
			return r
		}
	}
	return "no reason given"
}

type bkashGrantRequest struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

type bkashGrantResponse struct {
	bkashStatus
	IDToken   string `json:"id_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

type bkashCreateRequest struct {
	Mode                  string `json:"mode"`
	PayerReference        string `json:"payerReference"`
	CallbackURL           string `json:"callbackURL"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Intent                string `json:"intent"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

type bkashCreateResponse struct {
	bkashStatus
	PaymentID             string `json:"paymentID"`
	BkashURL              string `json:"bkashURL"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

type bkashExecuteRequest struct {
	PaymentID string `json:"paymentID"`
}

type bkashExecuteResponse struct {
	bkashStatus
	PaymentID             string `json:"paymentID"`
	TrxID                 string `json:"trxID"`
	TransactionStatus     string `json:"transactionStatus"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

// Begin grants a token and creates a payment for the session
func (b *Bkash) Begin(ctx context.Context, session Session) (*Checkout, error) {
	creds, err := config.LoadBkash(ctx, b.settings)
	if err != nil {
		return nil, err
	}

	token, err := b.grant(ctx, creds)
	if err != nil {
		return nil, err
	}

	payer := session.Customer.Phone
	if payer == "" {
		payer = session.Customer.ID
	}

	req := bkashCreateRequest{
		Mode:                  bkashModeCheckout,
		PayerReference:        payer,
		CallbackURL:           creds.CallbackURL,
		Amount:                session.Amount.StringFixed(2),
		Currency:              session.Currency,
		Intent:                "sale",
		MerchantInvoiceNumber: session.TransactionID,
	}

	var resp bkashCreateResponse
	if _, err := postJSON(ctx, b.client, baseURL(creds.BaseURL, creds.IsLive, bkashSandboxURL, bkashLiveURL)+"/tokenized/checkout/create",
		b.authHeaders(creds, token), req, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeGatewaySessionError, "bkash create payment failed", err)
	}
	if !resp.ok() || resp.BkashURL == "" || resp.PaymentID == "" {
		return nil, errors.New(errors.ErrCodeGatewaySessionError, "bkash did not return a payment session: "+resp.reason())
	}

	b.logger.Debug("bkash payment created",
		zap.String("transactionId", session.TransactionID),
		zap.String("paymentId", resp.PaymentID))

	return &Checkout{
		RedirectURL: resp.BkashURL,
		SessionID:   resp.PaymentID,
	}, nil
}

// Confirm grants a fresh token and executes the payment identified by reference (bKash paymentID)
func (b *Bkash) Confirm(ctx context.Context, reference string) (*Outcome, error) {
	creds, err := config.LoadBkash(ctx, b.settings)
	if err != nil {
		return nil, err
	}

	token, err := b.grant(ctx, creds)
	if err != nil {
		return nil, err
	}

	var resp bkashExecuteResponse
	if _, err := postJSON(ctx, b.client, baseURL(creds.BaseURL, creds.IsLive, bkashSandboxURL, bkashLiveURL)+"/tokenized/checkout/execute",
		b.authHeaders(creds, token), bkashExecuteRequest{PaymentID: reference}, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeGatewayValidationError, "bkash execute payment failed", err)
	}

	outcome := &Outcome{
		TransactionID:        resp.MerchantInvoiceNumber,
		GatewayTransactionID: resp.TrxID,
		Amount:               parseAmount(resp.Amount),
		Status:               resp.TransactionStatus,
	}
	if resp.ok() && resp.TrxID != "" {
		outcome.Success = true
	} else {
		outcome.Reason = resp.reason()
	}
	return outcome, nil
}

func (b *Bkash) grant(ctx context.Context, creds *config.BkashCredentials) (string, error) {
	headers := map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	}

	var resp bkashGrantResponse
	if _, err := postJSON(ctx, b.client, baseURL(creds.BaseURL, creds.IsLive, bkashSandboxURL, bkashLiveURL)+"/tokenized/checkout/token/grant",
		headers, bkashGrantRequest{AppKey: creds.AppKey, AppSecret: creds.AppSecret}, &resp); err != nil {
		return "", errors.Wrap(errors.ErrCodeGatewayAuthError, "bkash token grant failed", err)
	}
	if resp.IDToken == "" {
		return "", errors.New(errors.ErrCodeGatewayAuthError, "bkash did not grant a token: "+resp.reason())
	}
	return resp.IDToken, nil
}

func (b *Bkash) authHeaders(creds *config.BkashCredentials, token string) map[string]string {
	return map[string]string{
		"Authorization": token,
		"X-APP-Key":     creds.AppKey,
	}
}

// baseURL prefers an explicit override, then the live or sandbox host
func baseURL(override string, live bool, sandbox, production string) string {
	if override != "" {
		return override
	}
	if live {
		return production
	}
	return sandbox
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
