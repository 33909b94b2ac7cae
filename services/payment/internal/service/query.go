package service

import (
	"context"
	stderrors "errors"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/repository"
)

// GetPayment returns the caller's own payment with its enrollment state
func (s *paymentService) GetPayment(ctx context.Context, userID, transactionID string) (*PaymentView, error) {
	if userID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "missing caller identity")
	}
	if transactionID == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "transaction id is required")
	}

	payment, err := s.payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.New(errors.ErrCodePaymentNotFound, "payment not found")
		}
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to load payment", err)
	}
	// other users' payments are reported as missing
	if payment.UserID != userID {
		return nil, errors.New(errors.ErrCodePaymentNotFound, "payment not found")
	}

	enrolled, err := s.enrollments.Exists(ctx, payment.UserID, payment.CourseID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseError, "failed to check enrollment", err)
	}

	return &PaymentView{Payment: payment, Enrolled: enrolled}, nil
}
