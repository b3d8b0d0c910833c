/*
 * Copyright (C) 2026  Henrique Almeida
 * This file is part of OrderScout.
 *
 * OrderScout is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published
 * by the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * OrderScout is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with OrderScout.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package payment creates subscription charges through Robokassa, Tinkoff
// or YooKassa and settles them from polling or webhooks.
package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/h3nc4/OrderScout/internal/config"
)

var (
	// ErrSignature is returned when a webhook fails verification
	ErrSignature = errors.New("invalid payment signature")
	// ErrUnsupported is returned when a gateway cannot answer a status query
	ErrUnsupported = errors.New("operation not supported by gateway")
	// ErrDisabled is returned when no payment provider is configured
	ErrDisabled = errors.New("payments are disabled")
)

// Status of a charge as reported by a gateway
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Meta describes the charge being created
type Meta struct {
	PaymentID    int64
	SubscriberID int64
	TelegramID   int64
	Description  string
	ReturnURL    string
}

// Invoice is a created charge
type Invoice struct {
	ExternalID string
	URL        string
}

// Notification is a verified webhook callback
type Notification struct {
	ExternalID string
	Status     Status
	// Ack is written back to the gateway on success
	Ack string
}

// Gateway is one payment provider.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, amount decimal.Decimal, meta Meta) (Invoice, error)
	CheckPayment(ctx context.Context, externalID string) (Status, error)
	VerifyWebhook(r *http.Request) (Notification, error)
}

const defaultTimeout = 15 * time.Second

type options struct {
	client  *http.Client
	baseURL string
}

// Option tunes a gateway
type Option func(*options)

// WithHTTPClient replaces the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBaseURL points the gateway at another endpoint
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func buildOptions(baseURL string, opts []Option) options {
	o := options{client: &http.Client{Timeout: defaultTimeout}, baseURL: baseURL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewGateway builds the gateway selected by the settings
func NewGateway(cfg config.PaymentSettings, opts ...Option) (Gateway, error) {
	switch cfg.Provider {
	case "robokassa":
		return NewRobokassa(cfg.Robokassa, opts...), nil
	case "tinkoff":
		return NewTinkoff(cfg.Tinkoff, opts...), nil
	case "yookassa":
		return NewYooKassa(cfg.YooKassa, opts...), nil
	case "":
		return nil, ErrDisabled
	default:
		return nil, errors.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

// Decode a JSON API response, failing on non-2xx codes
func decodeResponse(resp *http.Response, dst any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
