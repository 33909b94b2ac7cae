package service

import (
	"context"
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/common/events"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
	"github.com/kyungseok/course-payments/services/payment/internal/gateway"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// Initiate opens a gateway session and records the pending payment
func (s *paymentService) Initiate(ctx context.Context, cmd InitiateCommand) (*InitiateResult, error) {
	log := s.logger.With(
		zap.String("userId", cmd.UserID),
		zap.String("courseId", cmd.CourseID),
		zap.String("paymentMethod", cmd.PaymentMethod))

	if cmd.UserID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "missing caller identity")
	}
	if strings.TrimSpace(cmd.CourseID) == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "course_id is required")
	}
	if !cmd.Amount.IsPositive() {
		return nil, errors.New(errors.ErrCodeBadRequest, "amount must be a positive number")
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return nil, errors.New(errors.ErrCodeBadRequest, "unsupported payment_method")
	}
	gw, err := s.gateways.Get(method)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadRequest, "unsupported payment_method", err)
	}

	profile, err := s.profiles.FindByID(ctx, cmd.UserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.ErrCodeProfileNotFound, "profile not found")
		}
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to load profile", err)
	}

	course, err := s.courses.FindByID(ctx, cmd.CourseID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.ErrCodeCourseNotFound, "course not found")
		}
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to load course", err)
	}

	now := s.now()
	transactionID := s.transactionID(method, now)
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	log = log.With(zap.String("transactionId", transactionID))

	checkout, err := gw.Begin(ctx, gateway.Session{
		TransactionID: transactionID,
		Amount:        cmd.Amount,
		Currency:      currency,
		CourseID:      course.ID,
		CourseTitle:   course.Title,
		Customer: gateway.Customer{
			ID:    profile.ID,
			Name:  profile.FullName,
			Email: profile.Email,
			Phone: profile.Phone,
		},
	})
	if err != nil {
		log.Error("failed to begin gateway session", zap.Error(err))
		return nil, err
	}

	payment := domain.NewPendingPayment(cmd.UserID, course.ID, cmd.Amount, currency, method, transactionID, now)
	payment.GatewayReference = checkout.SessionID
	if err := s.recordPending(ctx, payment); err != nil {
		// the gateway session exists already; the user is still redirected
		log.Error("pending payment not recorded, gateway session is untracked",
			zap.String("gatewayReference", checkout.SessionID),
			zap.Error(err))
	}

	log.Info("payment initiated",
		zap.String("gatewayReference", checkout.SessionID),
		zap.String("amount", cmd.Amount.String()))

	return &InitiateResult{
		PaymentURL:       checkout.RedirectURL,
		TransactionID:    transactionID,
		GatewayReference: checkout.SessionID,
	}, nil
}

func (s *paymentService) recordPending(ctx context.Context, payment *domain.Payment) error {
	evt := events.PaymentInitiatedEvent{
		BaseEvent:     events.NewBaseEvent(events.EventPaymentInitiated, payment.TransactionID, payment.CreatedAt),
		TransactionID: payment.TransactionID,
		UserID:        payment.UserID,
		CourseID:      payment.CourseID,
		Amount:        payment.Amount.StringFixed(2),
		Currency:      payment.Currency,
		PaymentMethod: string(payment.PaymentMethod),
	}
	outboxEvent, err := repository.NewOutboxEvent("payment", payment.TransactionID, events.EventPaymentInitiated, evt, payment.CreatedAt)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerializationError, "failed to build outbox event", err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		if err := s.payments.CreateTx(ctx, tx, payment); err != nil {
			return err
		}
		return s.outbox.InsertTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to record pending payment", err)
	}
	return nil
}
