package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/idempotency"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
	"github.com/kyungseok/course-payments/services/payment/internal/gateway"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// PaymentService starts and settles course payments
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiateCommand) (*InitiateResult, error)
	Verify(ctx context.Context, cmd VerifyCommand) (*VerifyResult, error)
	HandleNotification(ctx context.Context, n Notification) (*VerifyResult, error)
	GetPayment(ctx context.Context, userID, transactionID string) (*PaymentView, error)
}

// InitiateCommand is a caller's request to pay for a course
type InitiateCommand struct {
	UserID        string
	CourseID      string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
}

// InitiateResult tells the caller where to send the user
type InitiateResult struct {
	PaymentURL       string
	TransactionID    string
	GatewayReference string
}

// VerifyCommand asks for a gateway reference to be confirmed
type VerifyCommand struct {
	PaymentMethod string
	Reference     string
	// TransactionID is used when the gateway does not echo the invoice id back
	TransactionID string
}

// VerifyResult is a confirmed, completed payment
type VerifyResult struct {
	TransactionID        string
	GatewayTransactionID string
	Status               domain.PaymentStatus
}

// Notification is an asynchronous gateway callback
type Notification struct {
	TransactionID string
	Status        string
	Amount        string
	ValidationID  string
}

// PaymentView is what the owner sees when polling a payment
type PaymentView struct {
	Payment  *domain.Payment
	Enrolled bool
}

type paymentService struct {
	tx          repository.Transactor
	payments    repository.PaymentRepository
	enrollments repository.EnrollmentRepository
	courses     repository.CourseRepository
	profiles    repository.ProfileRepository
	outbox      repository.OutboxRepository
	gateways    *gateway.Registry
	locks       idempotency.Store
	lockTTL     time.Duration
	logger      *zap.Logger

	now           func() time.Time
	transactionID func(method domain.PaymentMethod, now time.Time) string
}

// NewPaymentService creates the payment service
func NewPaymentService(
	tx repository.Transactor,
	payments repository.PaymentRepository,
	enrollments repository.EnrollmentRepository,
	courses repository.CourseRepository,
	profiles repository.ProfileRepository,
	outbox repository.OutboxRepository,
	gateways *gateway.Registry,
	locks idempotency.Store,
	lockTTL time.Duration,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		tx:            tx,
		payments:      payments,
		enrollments:   enrollments,
		courses:       courses,
		profiles:      profiles,
		outbox:        outbox,
		gateways:      gateways,
		locks:         locks,
		lockTTL:       lockTTL,
		logger:        logger,
		now:           time.Now,
		transactionID: domain.NewTransactionID,
	}
}
