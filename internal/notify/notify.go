// Package notify delivers messages over ordered chains of transport providers.
// A provider without credentials is skipped; the first provider that accepts the message wins.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each provider HTTP call.
const DefaultTimeout = 15 * time.Second

var (
	// ErrNoProvider means no provider in the chain is configured.
	ErrNoProvider = errors.New("no provider available")
	// ErrDeliveryFailed means every configured provider rejected or failed the send.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrNotConfigured is returned by a provider asked to send without credentials.
	ErrNotConfigured = errors.New("provider not configured")
)

// Provider is one transport for short text messages (SMS, WhatsApp).
type Provider interface {
	Name() string
	// Configured reports whether the provider has the credentials it needs.
	Configured() bool
	// Send delivers body to the E.164 address to.
	Send(ctx context.Context, to, body string) error
}

// Attempt records one provider failure inside a ChainError.
type Attempt struct {
	Provider string
	Err      error
}

// ChainError lists the failure of every configured provider. It matches ErrDeliveryFailed.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Provider+": "+a.Err.Error())
	}
	return "delivery failed: " + strings.Join(parts, "; ")
}

func (e *ChainError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// Chain tries providers in a fixed priority order.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain returns a chain over providers in priority order. logger may be nil.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}
}

// Configured reports whether at least one provider can send.
func (c *Chain) Configured() bool {
	for _, p := range c.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}

// Send delivers body to the first provider that succeeds and returns its name.
func (c *Chain) Send(ctx context.Context, to, body string) (string, error) {
	var attempts []Attempt
	for _, p := range c.providers {
		if !p.Configured() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := p.Send(ctx, to, body)
		if err == nil {
			return p.Name(), nil
		}
		c.logger.Warn("notify: provider failed, trying next", zap.String("provider", p.Name()), zap.Error(err))
		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
	}
	if len(attempts) == 0 {
		return "", ErrNoProvider
	}
	return "", &ChainError{Attempts: attempts}
}

// Do sends req with client and turns any non-2xx answer into an error carrying the status and body.
func Do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
