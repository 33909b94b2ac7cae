package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/common/events"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
	"github.com/kyungseok/course-payments/services/payment/internal/gateway"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// Verify confirms reference with the gateway and settles the matching payment
func (s *paymentService) Verify(ctx context.Context, cmd VerifyCommand) (*VerifyResult, error) {
	log := s.logger.With(
		zap.String("paymentMethod", cmd.PaymentMethod),
		zap.String("reference", cmd.Reference),
		zap.String("transactionId", cmd.TransactionID))

	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "payment_reference is required")
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return nil, errors.New(errors.ErrCodeBadRequest, "unsupported payment_method")
	}
	gw, err := s.gateways.Get(method)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBadRequest, "unsupported payment_method", err)
	}

	release, err := s.lock(ctx, fmt.Sprintf("verify:%s:%s", method, reference), log)
	if err != nil {
		return nil, err
	}
	defer release()

	outcome, err := gw.Confirm(ctx, reference)
	if err != nil {
		log.Error("gateway confirmation failed, payment left pending", zap.Error(err))
		return nil, err
	}

	// a caller hint only selects a row whose stored gateway reference matches; it never attributes an outcome on its own
	transactionID, attributed := outcome.TransactionID, true
	if transactionID == "" {
		transactionID, attributed = strings.TrimSpace(cmd.TransactionID), false
	}
	if transactionID == "" {
		log.Warn("gateway outcome does not identify a payment", zap.String("gatewayStatus", outcome.Status))
		return nil, errors.New(errors.ErrCodePaymentNotFound, "payment not found")
	}
	if cmd.TransactionID != "" && attributed && cmd.TransactionID != outcome.TransactionID {
		log.Warn("gateway confirmed a different transaction than the caller named",
			zap.String("gatewayTransactionRef", outcome.TransactionID))
	}

	var expectReference string
	if !attributed {
		expectReference = reference
	}
	return s.settle(ctx, transactionID, expectReference, outcome)
}

// HandleNotification processes an IPN. Only the validation API decides the outcome; the form itself is unsigned.
func (s *paymentService) HandleNotification(ctx context.Context, n Notification) (*VerifyResult, error) {
	transactionID := strings.TrimSpace(n.TransactionID)
	if transactionID == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "tran_id is required")
	}

	if strings.TrimSpace(n.ValidationID) == "" {
		s.logger.Warn("ipn without val_id ignored, payment left pending",
			zap.String("transactionId", transactionID),
			zap.String("ipnStatus", strings.ToUpper(strings.TrimSpace(n.Status))))
		return nil, errors.New(errors.ErrCodeBadRequest, "val_id is required")
	}

	return s.Verify(ctx, VerifyCommand{
		PaymentMethod: string(domain.PaymentMethodSSLCommerz),
		Reference:     n.ValidationID,
		TransactionID: transactionID,
	})
}

// settle applies a gateway outcome to the payment in one transaction. A non-empty expectReference
// must equal the payment's stored gateway reference, otherwise nothing is written.
func (s *paymentService) settle(ctx context.Context, transactionID, expectReference string, outcome *gateway.Outcome) (*VerifyResult, error) {
	log := s.logger.With(
		zap.String("transactionId", transactionID),
		zap.String("gatewayStatus", outcome.Status))

	var result *VerifyResult
	var rejected error

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		result, rejected = nil, nil

		payment, err := s.payments.FindByTransactionIDForUpdateTx(ctx, tx, transactionID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.New(errors.ErrCodePaymentNotFound, "payment not found")
			}
			return errors.Wrap(errors.ErrCodeDatabaseError, "failed to load payment", err)
		}
		log = log.With(zap.String("userId", payment.UserID), zap.String("courseId", payment.CourseID))

		if expectReference != "" && payment.GatewayReference != expectReference {
			log.Warn("reference does not belong to the named payment", zap.String("reference", expectReference))
			return errors.New(errors.ErrCodePaymentNotFound, "payment not found")
		}

		switch payment.Status {
		case domain.PaymentStatusCompleted:
			log.Info("payment already completed")
			result = &VerifyResult{
				TransactionID:        payment.TransactionID,
				GatewayTransactionID: payment.GatewayTransactionID,
				Status:               payment.Status,
			}
			return nil
		case domain.PaymentStatusFailed:
			rejected = errors.New(errors.ErrCodePaymentVerificationFailed, "payment already failed")
			return nil
		}

		success, reason := outcome.Success, outcome.Reason
		if success && !outcome.Amount.IsZero() && !outcome.Amount.Equal(payment.Amount) {
			success = false
			reason = fmt.Sprintf("confirmed amount %s does not match %s", outcome.Amount.String(), payment.Amount.String())
		}

		now := s.now()
		if success {
			if err := s.complete(ctx, tx, payment, outcome.GatewayTransactionID, now); err != nil {
				return err
			}
			result = &VerifyResult{
				TransactionID:        payment.TransactionID,
				GatewayTransactionID: payment.GatewayTransactionID,
				Status:               payment.Status,
			}
			return nil
		}

		if reason == "" {
			reason = "gateway reported " + outcome.Status
		}
		if err := s.fail(ctx, tx, payment, reason, now); err != nil {
			return err
		}
		rejected = errors.New(errors.ErrCodePaymentVerificationFailed, "payment verification failed: "+reason)
		return nil
	})
	if err != nil {
		if errors.IsBusinessError(err) {
			log.Warn("payment not settled", zap.Error(err))
			return nil, err
		}
		log.Error("failed to settle payment", zap.Error(err))
		if errors.CodeOf(err) == errors.ErrCodeUnknownError {
			err = errors.Wrap(errors.ErrCodeDatabaseError, "failed to settle payment", err)
		}
		return nil, err
	}

	if rejected != nil {
		log.Warn("payment failed", zap.Error(rejected))
		return nil, rejected
	}

	log.Info("payment completed", zap.String("gatewayTransactionId", result.GatewayTransactionID))
	return result, nil
}

func (s *paymentService) complete(ctx context.Context, tx repository.DBTX, payment *domain.Payment, gatewayTransactionID string, now time.Time) error {
	if err := payment.Complete(gatewayTransactionID, now); err != nil {
		return errors.Wrap(errors.ErrCodePaymentVerificationFailed, "payment cannot be completed", err)
	}
	if err := s.payments.MarkCompletedTx(ctx, tx, payment.TransactionID, gatewayTransactionID, now); err != nil {
		return persistenceError("failed to complete payment", err)
	}

	enrollment := domain.NewActiveEnrollment(payment, now)
	if err := s.enrollments.UpsertTx(ctx, tx, enrollment); err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to create enrollment", err)
	}

	completed := events.PaymentCompletedEvent{
		BaseEvent:            events.NewBaseEvent(events.EventPaymentCompleted, payment.TransactionID, now),
		TransactionID:        payment.TransactionID,
		GatewayTransactionID: gatewayTransactionID,
		UserID:               payment.UserID,
		CourseID:             payment.CourseID,
		Amount:               payment.Amount.StringFixed(2),
		Currency:             payment.Currency,
		PaymentMethod:        string(payment.PaymentMethod),
		PaidAt:               now.UTC(),
	}
	enrolled := events.EnrollmentCreatedEvent{
		BaseEvent: events.NewBaseEvent(events.EventEnrollmentCreated, payment.TransactionID, now),
		StudentID: enrollment.StudentID,
		CourseID:  enrollment.CourseID,
		Status:    string(enrollment.Status),
	}

	if err := s.appendOutbox(ctx, tx, payment.TransactionID, events.EventPaymentCompleted, completed); err != nil {
		return err
	}
	return s.appendOutbox(ctx, tx, payment.TransactionID, events.EventEnrollmentCreated, enrolled)
}

func (s *paymentService) fail(ctx context.Context, tx repository.DBTX, payment *domain.Payment, reason string, now time.Time) error {
	if err := payment.Fail(reason, now); err != nil {
		return errors.Wrap(errors.ErrCodePaymentVerificationFailed, "payment cannot be failed", err)
	}
	if err := s.payments.MarkFailedTx(ctx, tx, payment.TransactionID, reason); err != nil {
		return persistenceError("failed to fail payment", err)
	}

	failed := events.PaymentFailedEvent{
		BaseEvent:     events.NewBaseEvent(events.EventPaymentFailed, payment.TransactionID, now),
		TransactionID: payment.TransactionID,
		UserID:        payment.UserID,
		CourseID:      payment.CourseID,
		PaymentMethod: string(payment.PaymentMethod),
		Reason:        reason,
	}
	return s.appendOutbox(ctx, tx, payment.TransactionID, events.EventPaymentFailed, failed)
}

func (s *paymentService) appendOutbox(ctx context.Context, tx repository.DBTX, aggregateID string, eventType events.EventType, evt interface{}) error {
	outboxEvent, err := repository.NewOutboxEvent("payment", aggregateID, eventType, evt, s.now())
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerializationError, "failed to build outbox event", err)
	}
	if err := s.outbox.InsertTx(ctx, tx, outboxEvent); err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseError, "failed to insert outbox event", err)
	}
	return nil
}

// persistenceError maps a vanished pending row to PaymentNotFound
func persistenceError(message string, err error) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.Wrap(errors.ErrCodePaymentNotFound, "payment not found", err)
	}
	return errors.Wrap(errors.ErrCodeDatabaseError, message, err)
}

// lock takes the verification lock. A Redis failure is logged and the call proceeds unlocked.
func (s *paymentService) lock(ctx context.Context, key string, log *zap.Logger) (func(), error) {
	noop := func() {}
	if s.locks == nil {
		return noop, nil
	}

	token, ok, err := s.locks.Reserve(ctx, key, s.lockTTL)
	if err != nil {
		log.Warn("verification lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeDuplicateRequest, "verification already in progress")
	}

	return func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("failed to release verification lock", zap.Error(err))
		}
	}, nil
}
