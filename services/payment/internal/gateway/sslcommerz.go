package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/config"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

const (
	sslSandboxURL = "https://sandbox.sslcommerz.com"
	sslLiveURL    = "https://securepay.sslcommerz.com"
)

// SSLCommerz implements the hosted checkout push flow: init session, IPN, validation API
type SSLCommerz struct {
	settings config.Provider
	client   *http.Client
	logger   *zap.Logger
}

// NewSSLCommerz creates the SSLCommerz gateway
func NewSSLCommerz(settings config.Provider, client *http.Client, logger *zap.Logger) *SSLCommerz {
	return &SSLCommerz{
		settings: settings,
		client:   client,
		logger:   logger,
	}
}

// Method reports sslcommerz
func (s *SSLCommerz) Method() domain.PaymentMethod {
	return domain.PaymentMethodSSLCommerz
}

type sslInitResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

type sslValidationResponse struct {
	APIConnect  string `json:"APIConnect"`
	Status      string `json:"status"`
	TranID      string `json:"tran_id"`
	ValID       string `json:"val_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	BankTranID  string `json:"bank_tran_id"`
	CardType    string `json:"card_type"`
	RiskLevel   string `json:"risk_level"`
	RiskTitle   string `json:"risk_title"`
	ErrorReason string `json:"error"`
}

// ValidStatuses are the validation API statuses that prove payment
var ValidStatuses = map[string]bool{
	"VALID":     true,
	"VALIDATED": true,
}

// Begin opens a hosted checkout session. SSLCommerz authenticates with store credentials on the
// same call, so there is no separate token handshake.
func (s *SSLCommerz) Begin(ctx context.Context, session Session) (*Checkout, error) {
	creds, err := config.LoadSSLCommerz(ctx, s.settings)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("store_id", creds.StoreID)
	form.Set("store_passwd", creds.StorePassword)
	form.Set("total_amount", session.Amount.StringFixed(2))
	form.Set("currency", session.Currency)
	form.Set("tran_id", session.TransactionID)
	form.Set("success_url", creds.SuccessURL)
	form.Set("fail_url", creds.FailURL)
	form.Set("cancel_url", creds.CancelURL)
	form.Set("ipn_url", creds.IPNURL)
	form.Set("cus_name", orDefault(session.Customer.Name, "Customer"))
	form.Set("cus_email", orDefault(session.Customer.Email, "customer@example.com"))
	form.Set("cus_phone", orDefault(session.Customer.Phone, "01700000000"))
	form.Set("cus_add1", "N/A")
	form.Set("cus_city", "Dhaka")
	form.Set("cus_country", "Bangladesh")
	form.Set("shipping_method", "NO")
	form.Set("num_of_item", "1")
	form.Set("product_name", orDefault(session.CourseTitle, "Course"))
	form.Set("product_category", "education")
	form.Set("product_profile", "non-physical-goods")
	form.Set("value_a", session.CourseID)
	form.Set("value_b", session.Customer.ID)

	var resp sslInitResponse
	if _, err := postForm(ctx, s.client, baseURL(creds.BaseURL, creds.IsLive, sslSandboxURL, sslLiveURL)+"/gwprocess/v4/api.php", form, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeGatewaySessionError, "sslcommerz session init failed", err)
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") || resp.GatewayPageURL == "" {
		return nil, errors.New(errors.ErrCodeGatewaySessionError, "sslcommerz did not return a session: "+orDefault(resp.FailedReason, resp.Status))
	}

	s.logger.Debug("sslcommerz session created",
		zap.String("transactionId", session.TransactionID),
		zap.String("sessionKey", resp.SessionKey))

	return &Checkout{
		RedirectURL: resp.GatewayPageURL,
		SessionID:   resp.SessionKey,
	}, nil
}

// Confirm calls the validation API with reference (the IPN val_id)
func (s *SSLCommerz) Confirm(ctx context.Context, reference string) (*Outcome, error) {
	creds, err := config.LoadSSLCommerz(ctx, s.settings)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("val_id", reference)
	query.Set("store_id", creds.StoreID)
	query.Set("store_passwd", creds.StorePassword)
	query.Set("format", "json")

	var resp sslValidationResponse
	if _, err := getJSON(ctx, s.client, baseURL(creds.BaseURL, creds.IsLive, sslSandboxURL, sslLiveURL)+"/validator/api/validationserverAPI.php", query, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeGatewayValidationError, "sslcommerz validation failed", err)
	}

	switch strings.ToUpper(resp.APIConnect) {
	case "", "DONE":
	case "INVALID_REQUEST", "INACTIVE":
		return nil, errors.New(errors.ErrCodeGatewayAuthError, "sslcommerz rejected store credentials: "+resp.APIConnect)
	default:
		return nil, errors.New(errors.ErrCodeGatewayValidationError, "sslcommerz validation api unavailable: "+resp.APIConnect)
	}

	status := strings.ToUpper(resp.Status)
	outcome := &Outcome{
		Success:              ValidStatuses[status],
		TransactionID:        resp.TranID,
		GatewayTransactionID: orDefault(resp.BankTranID, resp.ValID),
		Amount:               parseAmount(resp.Amount),
		Status:               status,
	}
	if !outcome.Success {
		outcome.Reason = "validation status " + orDefault(status, "empty")
		if resp.ErrorReason != "" {
			outcome.Reason += ": " + resp.ErrorReason
		}
	}
	return outcome, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
