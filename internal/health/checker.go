// Package health aggregates readiness checks of the bot's dependencies.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	telebot "gopkg.in/telebot.v3"
)

const defaultTimeout = 3 * time.Second

// Checkable represents a component that can report its health status.
type Checkable interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Checker aggregates health checks for multiple components.
type Checker struct {
	mu      sync.RWMutex
	log     *slog.Logger
	checks  map[string]Checkable
	timeout time.Duration
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}

	return &Checker{
		log:     log,
		checks:  make(map[string]Checkable),
		timeout: defaultTimeout,
	}
}

// AddCheck registers a checkable component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs all registered checks concurrently and returns "OK" or the error text per component.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	checks := make(map[string]Checkable, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
	)
	results := make(map[string]string, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status := "OK"
			if err := check.Check(ctx); err != nil {
				status = err.Error()
				c.log.WarnContext(ctx, "health check failed", slog.String("component", name), slog.Any("error", err))
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = status
			if status != "OK" {
				healthy = false
			}
		}()
	}
	wg.Wait()

	return results, healthy
}

type readyResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Failing    []string          `json:"failing,omitempty"`
}

// ReadyHandler serves the readiness probe: 200 when every check passes, 503 otherwise.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, healthy := c.Check(r.Context())

		resp := readyResponse{Status: "ok", Components: results}
		code := http.StatusOK
		if !healthy {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			for name, status := range results {
				if status != "OK" {
					resp.Failing = append(resp.Failing, name)
				}
			}
			sort.Strings(resp.Failing)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// LiveHandler serves the liveness probe.
func LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// RawCaller is the part of *telebot.Bot used to reach the Bot API.
type RawCaller interface {
	Raw(method string, payload interface{}) ([]byte, error)
}

var _ RawCaller = (*telebot.Bot)(nil)

// TelegramChecker verifies that the Telegram bot API is reachable.
type TelegramChecker struct {
	api RawCaller
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(api RawCaller) *TelegramChecker {
	return &TelegramChecker{api: api}
}

// Check calls getMe and gives up when ctx ends.
func (c *TelegramChecker) Check(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("telegram bot is not initialized")
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.api.Raw("getMe", nil)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
