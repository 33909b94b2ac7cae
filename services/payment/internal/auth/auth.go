package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kyungseok/course-payments/common/errors"
)

// Authenticator resolves a bearer token to a user id
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// HTTPAuthenticator asks the hosted identity service who owns a token
type HTTPAuthenticator struct {
	userURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPAuthenticator creates an authenticator against userURL
func NewHTTPAuthenticator(userURL, apiKey string, client *http.Client, logger *zap.Logger) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		userURL: userURL,
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate returns the user id behind token or an Unauthorized error
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userURL, nil)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnauthorized, "invalid identity endpoint", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if a.apiKey != "" {
		req.Header.Set("apikey", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("identity lookup failed", zap.Error(err))
		return "", errors.Wrap(errors.ErrCodeUnauthorized, "identity lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.ErrCodeUnauthorized, "invalid or expired token")
	}

	var identity identityResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&identity); err != nil {
		return "", errors.Wrap(errors.ErrCodeUnauthorized, "unreadable identity response", err)
	}
	if identity.ID == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "token has no user")
	}
	return identity.ID, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
