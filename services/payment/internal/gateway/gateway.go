package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

// Gateway starts and confirms payment sessions with one provider
type Gateway interface {
	Method() domain.PaymentMethod
	// Begin opens a checkout session and returns where to send the user
	Begin(ctx context.Context, session Session) (*Checkout, error)
	// Confirm asks the provider whether the payment behind reference succeeded
	Confirm(ctx context.Context, reference string) (*Outcome, error)
}

// Customer fields forwarded to the provider's hosted page
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Session describes one checkout attempt
type Session struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	CourseID      string
	CourseTitle   string
	Customer      Customer
}

// Checkout is the provider's answer to Begin
type Checkout struct {
	RedirectURL string
	SessionID   string
}

// Outcome is the provider's verdict on a payment
type Outcome struct {
	Success              bool
	TransactionID        string // merchant invoice / tran_id echoed back by the provider
	GatewayTransactionID string
	Amount               decimal.Decimal
	Status               string
	Reason               string
}

// Registry selects a Gateway by payment method
type Registry struct {
	gateways map[domain.PaymentMethod]Gateway
}

// NewRegistry indexes gateways by their method
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[domain.PaymentMethod]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}
	return r
}

// Get returns the gateway for method
func (r *Registry) Get(method domain.PaymentMethod) (Gateway, error) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}
	return g, nil
}

// NewHTTPClient returns the client shared by gateways. Gateway calls are never retried.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}
