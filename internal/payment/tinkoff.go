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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/h3nc4/OrderScout/internal/config"
)

const tinkoffURL = "https://securepay.tinkoff.ru/v2"

// Tinkoff talks to the Tinkoff Kassa v2 API
type Tinkoff struct {
	cfg     config.TinkoffSettings
	client  *http.Client
	baseURL string
}

func NewTinkoff(cfg config.TinkoffSettings, opts ...Option) *Tinkoff {
	o := buildOptions(tinkoffURL, opts)
	return &Tinkoff{cfg: cfg, client: o.client, baseURL: strings.TrimRight(o.baseURL, "/")}
}

func (t *Tinkoff) Name() string { return "tinkoff" }

// flexString accepts both JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.TrimSpace(b))
	return nil
}

type tinkoffResponse struct {
	Success    bool       `json:"Success"`
	ErrorCode  string     `json:"ErrorCode"`
	Message    string     `json:"Message"`
	Details    string     `json:"Details"`
	PaymentID  flexString `json:"PaymentId"`
	PaymentURL string     `json:"PaymentURL"`
	Status     string     `json:"Status"`
}

func (r tinkoffResponse) err() error {
	if r.Success {
		return nil
	}
	return errors.Errorf("tinkoff error %s: %s %s", r.ErrorCode, r.Message, r.Details)
}

func (t *Tinkoff) CreatePayment(ctx context.Context, amount decimal.Decimal, meta Meta) (Invoice, error) {
	req := map[string]any{
		"TerminalKey": t.cfg.TerminalKey,
		"Amount":      amount.Shift(2).Round(0).IntPart(),
		"OrderId":     uuid.NewString(),
		"Description": meta.Description,
		"DATA":        map[string]string{"user_id": strconv.FormatInt(meta.TelegramID, 10)},
	}
	if meta.ReturnURL != "" {
		req["SuccessURL"] = meta.ReturnURL
	}

	var resp tinkoffResponse
	if err := t.call(ctx, "/Init", req, &resp); err != nil {
		return Invoice{}, errors.Wrap(err, "init")
	}
	if err := resp.err(); err != nil {
		return Invoice{}, err
	}
	if resp.PaymentID == "" || resp.PaymentURL == "" {
		return Invoice{}, errors.New("tinkoff init returned no payment")
	}
	return Invoice{ExternalID: string(resp.PaymentID), URL: resp.PaymentURL}, nil
}

func (t *Tinkoff) CheckPayment(ctx context.Context, externalID string) (Status, error) {
	req := map[string]any{
		"TerminalKey": t.cfg.TerminalKey,
		"PaymentId":   externalID,
	}
	var resp tinkoffResponse
	if err := t.call(ctx, "/GetState", req, &resp); err != nil {
		return StatusPending, errors.Wrap(err, "get state")
	}
	if err := resp.err(); err != nil {
		return StatusPending, err
	}
	return tinkoffStatus(resp.Status), nil
}

// VerifyWebhook checks the Token of a JSON notification
func (t *Tinkoff) VerifyWebhook(r *http.Request) (Notification, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return Notification{}, errors.Wrap(err, "decode notification")
	}
	got, _ := body["Token"].(string)
	if got == "" || !strings.EqualFold(got, t.token(body)) {
		return Notification{}, ErrSignature
	}

	id := scalarString(body["PaymentId"])
	if id == "" {
		return Notification{}, errors.New("notification without PaymentId")
	}
	status, _ := body["Status"].(string)
	return Notification{ExternalID: id, Status: tinkoffStatus(status), Ack: "OK"}, nil
}

func (t *Tinkoff) call(ctx context.Context, path string, body map[string]any, dst any) error {
	body["Token"] = t.token(body)
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	return decodeResponse(resp, dst)
}

// Concatenate root scalar values plus the password in key order and hash them
func (t *Tinkoff) token(params map[string]any) string {
	values := map[string]string{"Password": t.cfg.SecretKey}
	for k, v := range params {
		if k == "Token" {
			continue
		}
		if s, ok := scalar(v); ok {
			values[k] = s
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func scalarString(v any) string {
	s, _ := scalar(v)
	return s
}

func tinkoffStatus(s string) Status {
	switch s {
	case "CONFIRMED", "AUTHORIZED":
		return StatusConfirmed
	case "REJECTED", "CANCELED", "DEADLINE_EXPIRED", "AUTH_FAIL", "REFUNDED", "REVERSED":
		return StatusFailed
	default:
		return StatusPending
	}
}
