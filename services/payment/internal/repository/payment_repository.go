package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

// PaymentRepository stores payment attempts
type PaymentRepository interface {
	CreateTx(ctx context.Context, tx DBTX, payment *domain.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	FindByTransactionIDForUpdateTx(ctx context.Context, tx DBTX, transactionID string) (*domain.Payment, error)
	MarkCompletedTx(ctx context.Context, tx DBTX, transactionID, gatewayTransactionID string, paidAt time.Time) error
	MarkFailedTx(ctx context.Context, tx DBTX, transactionID, reason string) error
}

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, course_id, amount, currency, status, payment_method, transaction_id,
	gateway_reference, gateway_transaction_id, failure_reason, payment_date, created_at, updated_at`

// CreateTx inserts a pending payment
func (r *paymentRepository) CreateTx(ctx context.Context, tx DBTX, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (user_id, course_id, amount, currency, status, payment_method, transaction_id, gateway_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := tx.QueryRowContext(
		ctx,
		query,
		payment.UserID,
		payment.CourseID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.PaymentMethod,
		payment.TransactionID,
		sql.NullString{String: payment.GatewayReference, Valid: payment.GatewayReference != ""},
		payment.CreatedAt,
		payment.UpdatedAt,
	).Scan(&payment.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction id %s: %w", payment.TransactionID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// FindByTransactionID looks a payment up by its invoice id
func (r *paymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, transactionID), transactionID)
}

// FindByTransactionIDForUpdateTx locks the row until the transaction ends
func (r *paymentRepository) FindByTransactionIDForUpdateTx(ctx context.Context, tx DBTX, transactionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRowContext(ctx, query, transactionID), transactionID)
}

// MarkCompletedTx moves a pending payment to completed
func (r *paymentRepository) MarkCompletedTx(ctx context.Context, tx DBTX, transactionID, gatewayTransactionID string, paidAt time.Time) error {
	query := `
		UPDATE payments
		SET status = $1, gateway_transaction_id = $2, payment_date = $3, updated_at = NOW()
		WHERE transaction_id = $4 AND status = $5
	`

	res, err := tx.ExecContext(ctx, query,
		domain.PaymentStatusCompleted, gatewayTransactionID, paidAt, transactionID, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	return expectOneRow(res, transactionID)
}

// MarkFailedTx moves a pending payment to failed
func (r *paymentRepository) MarkFailedTx(ctx context.Context, tx DBTX, transactionID, reason string) error {
	query := `
		UPDATE payments
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE transaction_id = $3 AND status = $4
	`

	res, err := tx.ExecContext(ctx, query,
		domain.PaymentStatusFailed, reason, transactionID, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to fail payment: %w", err)
	}
	return expectOneRow(res, transactionID)
}

func scanPayment(row *sql.Row, transactionID string) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var gatewayRef, gatewayTxID, reason sql.NullString
	var paymentDate sql.NullTime

	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.CourseID,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.PaymentMethod,
		&payment.TransactionID,
		&gatewayRef,
		&gatewayTxID,
		&reason,
		&paymentDate,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}

	payment.GatewayReference = gatewayRef.String
	payment.GatewayTransactionID = gatewayTxID.String
	payment.FailureReason = reason.String
	if paymentDate.Valid {
		payment.PaymentDate = &paymentDate.Time
	}

	return payment, nil
}

// expectOneRow treats an UPDATE that touched nothing as a missing pending row
func expectOneRow(res sql.Result, transactionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending payment %s: %w", transactionID, ErrNotFound)
	}
	return nil
}
