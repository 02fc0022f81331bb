// Package adapter provides the client for the remote wallet backend.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-sync/internal/circuitbreaker"
	apperrors "github.com/wallet-sync/internal/errors"
	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/types"
)

// PublicStatsTimeout is the abort deadline for the best-effort stats fetch
const PublicStatsTimeout = 5 * time.Second

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 1 << 20

// WalletAPI is the read side of the backend used by sync cycles and watchers
type WalletAPI interface {
	GetBalance(ctx context.Context) (*models.BalanceSnapshot, error)
	GetUser(ctx context.Context) (*models.UserProfile, error)
	ListPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error)
	ListWithdraws(ctx context.Context, limit int) ([]models.WithdrawRecord, error)
}

// PushAPI is the backend push-registration surface
type PushAPI interface {
	GetVAPIDKey(ctx context.Context) (string, error)
	GetPushStatus(ctx context.Context) (*models.PushStatus, error)
	RegisterPushSubscription(ctx context.Context, sub models.PushSubscription, device types.DeviceType) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// TokenSource supplies the bearer token for authenticated calls. Token
// issuance is owned by a collaborator; the client only attaches it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token
type StaticToken string

// Token returns the fixed token
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// WalletClient talks JSON over HTTPS to the wallet backend
type WalletClient struct {
	baseURL      string
	tokens       TokenSource
	httpClient   *http.Client
	limiter      *rate.Limiter
	statsBreaker *circuitbreaker.CircuitBreaker
	logger       *logging.Logger
}

// WalletClientConfig configures a WalletClient
type WalletClientConfig struct {
	BaseURL           string
	Tokens            TokenSource
	RequestsPerSecond int           // 0 disables client-side rate limiting
	Timeout           time.Duration // per-request ceiling on the HTTP client
	HTTPClient        *http.Client
	StatsBreaker      *circuitbreaker.CircuitBreaker
	Logger            *logging.Logger
}

// NewWalletClient creates a new wallet backend client
func NewWalletClient(cfg *WalletClientConfig) (*WalletClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.RequestsPerSecond
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithComponent("wallet-client")

	breaker := cfg.StatsBreaker
	if breaker == nil {
		bc := circuitbreaker.DefaultConfig("public-stats")
		bc.Logger = logger
		breaker = circuitbreaker.NewCircuitBreaker(bc)
	}

	return &WalletClient{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:       tokens,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		statsBreaker: breaker,
		logger:       logger,
	}, nil
}

// GetBalance fetches GET /balance
func (c *WalletClient) GetBalance(ctx context.Context) (*models.BalanceSnapshot, error) {
	var out models.BalanceSnapshot
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUser fetches GET /user
func (c *WalletClient) GetUser(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/user", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPayments fetches the most recent page of payments
func (c *WalletClient) ListPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	var out models.PaymentList
	if err := c.do(ctx, http.MethodGet, "/payments?limit="+strconv.Itoa(limit), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Payments, nil
}

// ListWithdraws fetches the most recent page of withdrawals
func (c *WalletClient) ListWithdraws(ctx context.Context, limit int) ([]models.WithdrawRecord, error) {
	var out models.WithdrawList
	if err := c.do(ctx, http.MethodGet, "/withdraws?limit="+strconv.Itoa(limit), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Withdraws, nil
}

// GetVAPIDKey returns the server's URL-safe base64 application server key.
// An empty string means the backend has no key configured.
func (c *WalletClient) GetVAPIDKey(ctx context.Context) (string, error) {
	var out models.VAPIDKeyResponse
	if err := c.do(ctx, http.MethodGet, "/push/vapid-key", nil, &out, true); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

// GetPushStatus fetches GET /push/status
func (c *WalletClient) GetPushStatus(ctx context.Context) (*models.PushStatus, error) {
	var out models.PushStatus
	if err := c.do(ctx, http.MethodGet, "/push/status", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

type registerRequest struct {
	Subscription models.PushSubscription `json:"subscription"`
	DeviceType   types.DeviceType        `json:"deviceType"`
}

// RegisterPushSubscription posts the subscription to /push/subscribe
func (c *WalletClient) RegisterPushSubscription(ctx context.Context, sub models.PushSubscription, device types.DeviceType) error {
	return c.do(ctx, http.MethodPost, "/push/subscribe", registerRequest{Subscription: sub, DeviceType: device}, nil, true)
}

type unregisterRequest struct {
	Endpoint string `json:"endpoint"`
}

// DeletePushSubscription removes the backend registration for endpoint
func (c *WalletClient) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, "/push/unsubscribe", unregisterRequest{Endpoint: endpoint}, nil, true)
}

// GetPublicStats fetches unauthenticated platform stats. The call is aborted
// after PublicStatsTimeout and skipped entirely while the breaker is open.
func (c *WalletClient) GetPublicStats(ctx context.Context) (*models.PublicStats, error) {
	ctx, cancel := context.WithTimeout(ctx, PublicStatsTimeout)
	defer cancel()

	var out models.PublicStats
	err := c.statsBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/public/stats", nil, &out, false)
	})
	if err != nil {
		if circuitbreaker.IsRejection(err) {
			return nil, apperrors.NewTransientError("public stats", err)
		}
		return nil, err
	}
	return &out, nil
}

// StatsBreaker exposes the breaker guarding GetPublicStats
func (c *WalletClient) StatsBreaker() *circuitbreaker.CircuitBreaker {
	return c.statsBreaker
}

func (c *WalletClient) do(ctx context.Context, method, path string, body, out interface{}, authenticated bool) error {
	op := method + " " + strings.SplitN(path, "?", 2)[0]

	if err := c.limiter.Wait(ctx); err != nil {
		return classifyTransportError(ctx, op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewInternalError("failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewInternalError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			if apperrors.Is(err, apperrors.CategoryUnauthorized) {
				return err
			}
			return apperrors.NewTransientError(op, fmt.Errorf("token source: %w", err))
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"op":         op,
		"status":     resp.StatusCode,
		"durationMs": time.Since(start).Milliseconds(),
	}).Debug("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewUpstreamError(op, resp.StatusCode, truncate(string(data), 256))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewDecodeError(op, err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.NewTimeoutError(op, err)
	}
	return apperrors.NewTransientError(op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
