// Package cryptopay is a client for the Crypto Pay HTTP API.
package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

const (
	tokenHeader = "Crypto-Pay-API-Token"
	apiName     = "cryptopay"
)

// Invoice statuses reported by the provider.
const (
	StatusActive  = "active"
	StatusPaid    = "paid"
	StatusExpired = "expired"
)

var (
	// ErrNoResult means the provider answered without a result, typically with an error object.
	ErrNoResult = errors.New("cryptopay: response has no result")
	// ErrInvoiceNotFound means the provider does not know the requested invoice.
	ErrInvoiceNotFound = errors.New("cryptopay: invoice not found")
)

// Invoice is the subset of the provider invoice object the bot uses.
type Invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Payload       string `json:"payload"`
	PayURL        string `json:"pay_url"`
	BotInvoiceURL string `json:"bot_invoice_url"`
}

// URL returns the link the user should open to pay.
func (i Invoice) URL() string {
	if i.PayURL != "" {
		return i.PayURL
	}
	return i.BotInvoiceURL
}

// App describes the application that owns the API token.
type App struct {
	AppID                        int64  `json:"app_id"`
	Name                         string `json:"name"`
	PaymentProcessingBotUsername string `json:"payment_processing_bot_username"`
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

// Client talks to the Crypto Pay API. Safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	asset       string
	description string

	http    *http.Client
	limiter *rate.Limiter
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client from configuration.
func New(cfg config.CryptoPayConfig, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/") + "/",
		token:       cfg.Token,
		asset:       cfg.Asset,
		description: cfg.Description,
		http:        &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(limit, burst),
		breaker:     apperrors.NewCircuitBreaker(apiName),
		log:         log.With(slog.String("component", apiName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Asset is the currency invoices are issued in.
func (c *Client) Asset() string {
	return c.asset
}

// CreateInvoice issues an invoice for amount with the given payload. It is never retried,
// because the provider has no idempotency key and a retry could bill the user twice.
func (c *Client) CreateInvoice(ctx context.Context, amount decimal.Decimal, payload string) (*Invoice, error) {
	body := map[string]string{
		"asset":       c.asset,
		"amount":      amount.String(),
		"payload":     payload,
		"description": c.description,
	}

	var inv Invoice
	if err := c.call(ctx, http.MethodPost, "createInvoice", nil, body, &inv); err != nil {
		return nil, err
	}
	if inv.InvoiceID == 0 {
		return nil, fmt.Errorf("%w: invoice_id missing", ErrNoResult)
	}

	c.log.InfoContext(ctx, "invoice created",
		slog.Int64("external_id", inv.InvoiceID),
		slog.String("amount", amount.String()),
		slog.String("payload", payload),
	)
	return &inv, nil
}

// GetInvoiceStatus returns the provider status of one invoice. Transient failures are retried.
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	query := url.Values{"invoice_ids": {strconv.FormatInt(invoiceID, 10)}}

	var raw json.RawMessage
	err := apperrors.WithRetry(ctx, func() error {
		return c.call(ctx, http.MethodGet, "getInvoices", query, nil, &raw)
	})
	if err != nil {
		return "", err
	}

	items, err := decodeInvoiceList(raw)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if item.InvoiceID == invoiceID {
			return item.Status, nil
		}
	}
	return "", ErrInvoiceNotFound
}

// GetMe returns information about the application; used to verify the token.
func (c *Client) GetMe(ctx context.Context) (*App, error) {
	var app App
	if err := c.call(ctx, http.MethodGet, "getMe", nil, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// Check implements health.Checker.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.GetMe(ctx)
	return err
}

// decodeInvoiceList accepts both a bare array and the {"items": [...]} form.
func decodeInvoiceList(raw json.RawMessage) ([]Invoice, error) {
	var items []Invoice
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []Invoice `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	return wrapped.Items, nil
}

func isProviderFailure(err error) bool {
	return !errors.Is(err, ErrNoResult) && !errors.Is(err, ErrInvoiceNotFound)
}

func (c *Client) call(ctx context.Context, method, apiMethod string, query url.Values, body any, out any) error {
	start := time.Now()
	err := c.breaker.Call(func() error {
		return c.do(ctx, method, apiMethod, query, body, out)
	}, isProviderFailure)

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrCircuitOpen):
		result = "circuit_open"
		err = apperrors.NewExternalAPIError(apiName, err)
	case errors.Is(err, ErrNoResult):
		result = "no_result"
	default:
		result = "error"
	}
	metrics.RecordGatewayCall(apiMethod, result, time.Since(start))

	if err != nil {
		c.log.WarnContext(ctx, "cryptopay call failed",
			slog.String("method", apiMethod),
			slog.Any("error", err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, apiMethod string, query url.Values, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	endpoint := c.baseURL + apiMethod
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", apiMethod, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", apiMethod, err)
	}
	req.Header.Set(tokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewExternalAPIError(apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperrors.NewExternalAPIError(apiName, fmt.Errorf("%s: status %d", apiMethod, resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrNoResult, apiMethod, err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		if env.Error != nil {
			return fmt.Errorf("%w: %s (%d)", ErrNoResult, env.Error.Name, env.Error.Code)
		}
		return fmt.Errorf("%w: %s status %d", ErrNoResult, apiMethod, resp.StatusCode)
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", apiMethod, err)
	}
	return nil
}
