package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
	"github.com/kyungseok/course-payments/services/payment/internal/auth"
	"github.com/kyungseok/course-payments/services/payment/internal/domain"
	"github.com/kyungseok/course-payments/services/payment/internal/service"
)

const maxBodyBytes = 64 << 10

// InitiatePayment starts a checkout for the authenticated user
func (h *HTTPHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req initiateRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err, zap.String("userId", userID))
		return
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		req.PaymentMethod = string(domain.PaymentMethodBkash)
	}

	result, err := h.service.Initiate(r.Context(), service.InitiateCommand{
		UserID:        userID,
		CourseID:      req.CourseID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.respondError(w, r, err,
			zap.String("userId", userID),
			zap.String("courseId", req.CourseID),
			zap.String("paymentMethod", req.PaymentMethod))
		return
	}

	respondJSON(w, http.StatusOK, initiateResponse{
		Success:       true,
		PaymentURL:    result.PaymentURL,
		TransactionID: result.TransactionID,
	})
}

// VerifyPayment confirms a gateway reference. The payment method defaults to bkash.
func (h *HTTPHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		req.PaymentMethod = string(domain.PaymentMethodBkash)
	}

	result, err := h.service.Verify(r.Context(), service.VerifyCommand{
		PaymentMethod: req.PaymentMethod,
		Reference:     req.PaymentReference,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.respondError(w, r, err,
			zap.String("paymentMethod", req.PaymentMethod),
			zap.String("transactionId", req.TransactionID))
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		Success:              true,
		TransactionID:        result.TransactionID,
		GatewayTransactionID: result.GatewayTransactionID,
	})
}

// SSLCommerzIPN receives the server-to-server notification. Business outcomes are acknowledged with 200.
func (h *HTTPHandler) SSLCommerzIPN(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unreadable ipn body", zap.Error(err))
		respondJSON(w, http.StatusOK, ipnResponse{Received: true})
		return
	}

	n := service.Notification{
		TransactionID: r.PostForm.Get("tran_id"),
		Status:        r.PostForm.Get("status"),
		Amount:        r.PostForm.Get("amount"),
		ValidationID:  r.PostForm.Get("val_id"),
	}
	log := h.logger.With(
		zap.String("transactionId", n.TransactionID),
		zap.String("ipnStatus", n.Status),
		zap.String("valId", n.ValidationID))

	if _, err := h.service.HandleNotification(r.Context(), n); err != nil {
		if !errors.IsBusinessError(err) {
			h.respondError(w, r, err, zap.String("transactionId", n.TransactionID))
			return
		}
		log.Warn("ipn acknowledged without completion", zap.String("code", string(errors.CodeOf(err))), zap.Error(err))
	} else {
		log.Info("ipn processed")
	}

	respondJSON(w, http.StatusOK, ipnResponse{Received: true})
}

// BkashCallback verifies a returning bKash checkout and redirects the browser to the storefront
func (h *HTTPHandler) BkashCallback(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("paymentID")
	status := strings.ToLower(r.URL.Query().Get("status"))

	if status != "success" || paymentID == "" {
		// cancelled or failed checkouts stay pending until verified or reconciled
		h.logger.Info("bkash checkout not completed", zap.String("paymentId", paymentID), zap.String("status", status))
		h.redirectFailed(w, r, orUnknown(status))
		return
	}

	result, err := h.service.Verify(r.Context(), service.VerifyCommand{
		PaymentMethod: string(domain.PaymentMethodBkash),
		Reference:     paymentID,
	})
	if err != nil {
		if errors.IsBusinessError(err) {
			h.logger.Warn("bkash callback rejected", zap.String("paymentId", paymentID), zap.Error(err))
		} else {
			h.logger.Error("bkash callback failed", zap.String("paymentId", paymentID), zap.Error(err))
		}
		h.redirectFailed(w, r, strings.ToLower(string(errors.CodeOf(err))))
		return
	}

	target := fmt.Sprintf("%s/payment/success?transaction_id=%s", h.frontendURL, url.QueryEscape(result.TransactionID))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// GetPayment returns the caller's payment and whether the course is unlocked
func (h *HTTPHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	transactionID := chi.URLParam(r, "transactionID")
	view, err := h.service.GetPayment(r.Context(), userID, transactionID)
	if err != nil {
		h.respondError(w, r, err, zap.String("userId", userID), zap.String("transactionId", transactionID))
		return
	}

	respondJSON(w, http.StatusOK, paymentViewResponse{
		Success:  true,
		Payment:  toPaymentResponse(view.Payment),
		Enrolled: view.Enrolled,
	})
}

func (h *HTTPHandler) authenticate(r *http.Request) (string, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}
	return h.auth.Authenticate(r.Context(), token)
}

// decode reads a JSON body into dst and validates it
func (h *HTTPHandler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return errors.Wrap(errors.ErrCodeBadRequest, "invalid JSON body", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return errors.Wrap(errors.ErrCodeBadRequest, validationMessage(err), err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fe.Field() + " is required"
	}
	return fe.Field() + " is invalid"
}

func (h *HTTPHandler) redirectFailed(w http.ResponseWriter, r *http.Request, reason string) {
	target := fmt.Sprintf("%s/payment/failed?reason=%s", h.frontendURL, url.QueryEscape(reason))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
