package domain

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentMethod selects the gateway
type PaymentMethod string

const (
	PaymentMethodBkash      PaymentMethod = "bkash"
	PaymentMethodSSLCommerz PaymentMethod = "sslcommerz"
)

// DefaultCurrency is used when the caller does not send one
const DefaultCurrency = "BDT"

// ErrInvalidTransition is returned when a terminal payment is mutated
var ErrInvalidTransition = stderrors.New("payment is already in a terminal state")

// ParsePaymentMethod accepts the method names used on the wire
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentMethodBkash:
		return PaymentMethodBkash, true
	case PaymentMethodSSLCommerz:
		return PaymentMethodSSLCommerz, true
	}
	return "", false
}

// Payment is one checkout attempt for a course
type Payment struct {
	ID                   int64
	UserID               string
	CourseID             string
	Amount               decimal.Decimal
	Currency             string
	Status               PaymentStatus
	PaymentMethod        PaymentMethod
	TransactionID        string
	// GatewayReference is the session id the gateway issued at checkout (bKash paymentID, SSLCommerz sessionkey)
	GatewayReference     string
	GatewayTransactionID string
	FailureReason        string
	PaymentDate          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewPendingPayment builds the row recorded before the user is redirected
func NewPendingPayment(userID, courseID string, amount decimal.Decimal, currency string, method PaymentMethod, transactionID string, now time.Time) *Payment {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Payment{
		UserID:        userID,
		CourseID:      courseID,
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		Status:        PaymentStatusPending,
		PaymentMethod: method,
		TransactionID: transactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal reports whether the payment can no longer change
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// Complete moves a pending payment to completed
func (p *Payment) Complete(gatewayTransactionID string, at time.Time) error {
	if p.IsTerminal() {
		return ErrInvalidTransition
	}
	p.Status = PaymentStatusCompleted
	p.GatewayTransactionID = gatewayTransactionID
	p.PaymentDate = &at
	p.UpdatedAt = at
	return nil
}

// Fail moves a pending payment to failed
func (p *Payment) Fail(reason string, at time.Time) error {
	if p.IsTerminal() {
		return ErrInvalidTransition
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = at
	return nil
}

// NewTransactionID returns an invoice id: a method prefix, a base36 nanosecond timestamp and
// 8 random hex chars. It stays within the 30 char limit SSLCommerz puts on tran_id.
func NewTransactionID(method PaymentMethod, now time.Time) string {
	prefix := "TXN"
	switch method {
	case PaymentMethodBkash:
		prefix = "BKS"
	case PaymentMethodSSLCommerz:
		prefix = "SSL"
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper(fmt.Sprintf("%s%s%s", prefix, strconv.FormatInt(now.UnixNano(), 36), random))
}
