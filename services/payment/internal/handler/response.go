package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type initiateRequest struct {
	CourseID      string          `json:"course_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,alpha,len=3"`
	PaymentMethod string          `json:"payment_method"`
}

type initiateResponse struct {
	Success       bool   `json:"success"`
	PaymentURL    string `json:"payment_url"`
	TransactionID string `json:"transaction_id"`
}

type verifyRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required"`
	PaymentMethod    string `json:"payment_method"`
	TransactionID    string `json:"transaction_id"`
}

type verifyResponse struct {
	Success              bool   `json:"success"`
	TransactionID        string `json:"transaction_id"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
}

type ipnResponse struct {
	Received bool `json:"received"`
}

type paymentResponse struct {
	TransactionID        string     `json:"transaction_id"`
	CourseID             string     `json:"course_id"`
	Amount               string     `json:"amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	PaymentMethod        string     `json:"payment_method"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	PaymentDate          *time.Time `json:"payment_date,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

type paymentViewResponse struct {
	Success  bool            `json:"success"`
	Payment  paymentResponse `json:"payment"`
	Enrolled bool            `json:"enrolled"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		TransactionID:        p.TransactionID,
		CourseID:             p.CourseID,
		Amount:               p.Amount.StringFixed(2),
		Currency:             p.Currency,
		Status:               string(p.Status),
		PaymentMethod:        string(p.PaymentMethod),
		GatewayTransactionID: p.GatewayTransactionID,
		FailureReason:        p.FailureReason,
		PaymentDate:          p.PaymentDate,
		CreatedAt:            p.CreatedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes err as the JSON error envelope. Business errors log at Warn.
func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, err error, fields ...zap.Field) {
	status := statusFor(err)
	code := errors.CodeOf(err)

	fields = append(fields,
		zap.String("path", r.URL.Path),
		zap.String("code", string(code)),
		zap.Error(err))
	if errors.IsBusinessError(err) {
		h.logger.Warn("request rejected", fields...)
	} else {
		h.logger.Error("request failed", fields...)
	}

	respondJSON(w, status, errorResponse{
		Success: false,
		Error:   errors.Message(err),
		Code:    string(code),
	})
}

// statusFor maps an error code to its HTTP status
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeBadRequest, errors.ErrCodePaymentVerificationFailed:
		return http.StatusBadRequest
	case errors.ErrCodeProfileNotFound, errors.ErrCodeCourseNotFound, errors.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDuplicateRequest:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
