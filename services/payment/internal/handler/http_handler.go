package handler

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/services/payment/internal/auth"
	"github.com/kyungseok/course-payments/services/payment/internal/service"
)

// HTTPHandler serves the payment API
type HTTPHandler struct {
	service     service.PaymentService
	auth        auth.Authenticator
	validate    *validator.Validate
	logger      *zap.Logger
	frontendURL string
}

// NewHTTPHandler creates the payment API handler. frontendURL is where browser callbacks are redirected.
func NewHTTPHandler(svc service.PaymentService, authenticator auth.Authenticator, frontendURL string, logger *zap.Logger) *HTTPHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPHandler{
		service:     svc,
		auth:        authenticator,
		validate:    v,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Routes builds the router. allowedOrigins defaults to any origin.
func (h *HTTPHandler) Routes(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "apikey", "x-client-info"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(preflight)

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/initiate", h.InitiatePayment)
		r.Post("/verify", h.VerifyPayment)
		r.Post("/sslcommerz/ipn", h.SSLCommerzIPN)
		r.Get("/bkash/callback", h.BkashCallback)
		r.Get("/{transactionID}", h.GetPayment)
	})

	return r
}

// preflight answers every OPTIONS request with an empty 200
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}

// HealthCheck reports liveness
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HTTPHandler) notFound(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotFound, errorResponse{Success: false, Error: "route not found", Code: "NOT_FOUND"})
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Success: false, Error: "method not allowed", Code: "METHOD_NOT_ALLOWED"})
}
