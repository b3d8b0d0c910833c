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

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/h3nc4/OrderScout/internal/config"
)

const yookassaURL = "https://api.yookassa.ru/v3"

// YooKassa talks to the YooKassa v3 API with basic auth
type YooKassa struct {
	cfg     config.YooKassaSettings
	client  *http.Client
	baseURL string
}

func NewYooKassa(cfg config.YooKassaSettings, opts ...Option) *YooKassa {
	o := buildOptions(yookassaURL, opts)
	return &YooKassa{cfg: cfg, client: o.client, baseURL: strings.TrimRight(o.baseURL, "/")}
}

func (y *YooKassa) Name() string { return "yookassa" }

type yookassaAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yookassaConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yookassaPayment struct {
	ID           string               `json:"id,omitempty"`
	Status       string               `json:"status,omitempty"`
	Paid         bool                 `json:"paid,omitempty"`
	Amount       yookassaAmount       `json:"amount"`
	Confirmation yookassaConfirmation `json:"confirmation"`
	Capture      bool                 `json:"capture,omitempty"`
	Description  string               `json:"description,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
}

func (y *YooKassa) CreatePayment(ctx context.Context, amount decimal.Decimal, meta Meta) (Invoice, error) {
	body := yookassaPayment{
		Amount:       yookassaAmount{Value: amount.StringFixed(2), Currency: "RUB"},
		Confirmation: yookassaConfirmation{Type: "redirect", ReturnURL: meta.ReturnURL},
		Capture:      true,
		Description:  meta.Description,
		Metadata: map[string]string{
			"payment_id": strconv.FormatInt(meta.PaymentID, 10),
			"user_id":    strconv.FormatInt(meta.TelegramID, 10),
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "encode payment")
	}

	var out yookassaPayment
	if err := y.do(ctx, http.MethodPost, "/payments", bytes.NewReader(raw), &out); err != nil {
		return Invoice{}, errors.Wrap(err, "create payment")
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return Invoice{}, errors.New("yookassa returned no confirmation url")
	}
	return Invoice{ExternalID: out.ID, URL: out.Confirmation.ConfirmationURL}, nil
}

func (y *YooKassa) CheckPayment(ctx context.Context, externalID string) (Status, error) {
	var out yookassaPayment
	if err := y.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(externalID), nil, &out); err != nil {
		return StatusPending, errors.Wrap(err, "get payment")
	}
	return yookassaStatus(out.Status), nil
}

// VerifyWebhook trusts only the payment ID of a notification and reads the
// status back from the API, since YooKassa does not sign callbacks.
func (y *YooKassa) VerifyWebhook(r *http.Request) (Notification, error) {
	var body struct {
		Event  string `json:"event"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return Notification{}, errors.Wrap(err, "decode notification")
	}
	if body.Object.ID == "" {
		return Notification{}, errors.Wrap(ErrSignature, "notification without payment id")
	}

	status, err := y.CheckPayment(r.Context(), body.Object.ID)
	if err != nil {
		return Notification{}, err
	}
	return Notification{ExternalID: body.Object.ID, Status: status}, nil
}

func (y *YooKassa) do(ctx context.Context, method, path string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.SetBasicAuth(y.cfg.ShopID, y.cfg.SecretKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	return decodeResponse(resp, dst)
}

func yookassaStatus(s string) Status {
	switch s {
	case "succeeded":
		return StatusConfirmed
	case "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}
