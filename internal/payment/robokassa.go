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
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/h3nc4/OrderScout/internal/config"
)

const robokassaURL = "https://auth.robokassa.ru/Merchant/Index.aspx"

// Robokassa signs payment links with MD5 and confirms charges only through
// its Result URL callback.
type Robokassa struct {
	cfg     config.RobokassaSettings
	baseURL string
}

func NewRobokassa(cfg config.RobokassaSettings, opts ...Option) *Robokassa {
	o := buildOptions(robokassaURL, opts)
	return &Robokassa{cfg: cfg, baseURL: o.baseURL}
}

func (r *Robokassa) Name() string { return "robokassa" }

// CreatePayment builds a signed link; the invoice number is the local payment ID
func (r *Robokassa) CreatePayment(_ context.Context, amount decimal.Decimal, meta Meta) (Invoice, error) {
	if meta.PaymentID <= 0 {
		return Invoice{}, errors.New("robokassa needs a positive invoice id")
	}
	invID := strconv.FormatInt(meta.PaymentID, 10)
	outSum := amount.StringFixed(2)
	shp := map[string]string{"Shp_user_id": strconv.FormatInt(meta.TelegramID, 10)}

	params := url.Values{
		"MerchantLogin":  {r.cfg.Login},
		"OutSum":         {outSum},
		"InvId":          {invID},
		"Description":    {meta.Description},
		"SignatureValue": {signMD5(shp, r.cfg.Login, outSum, invID, r.cfg.Password1)},
	}
	for k, v := range shp {
		params.Set(k, v)
	}
	if r.cfg.TestMode {
		params.Set("IsTest", "1")
	}

	return Invoice{ExternalID: invID, URL: r.baseURL + "?" + params.Encode()}, nil
}

// CheckPayment has no API counterpart; charges settle through VerifyWebhook
func (r *Robokassa) CheckPayment(context.Context, string) (Status, error) {
	return StatusPending, ErrUnsupported
}

// VerifyWebhook checks a Result URL callback signed with Password2
func (r *Robokassa) VerifyWebhook(req *http.Request) (Notification, error) {
	if err := req.ParseForm(); err != nil {
		return Notification{}, errors.Wrap(err, "parse form")
	}
	outSum := req.Form.Get("OutSum")
	invID := req.Form.Get("InvId")
	got := req.Form.Get("SignatureValue")
	if outSum == "" || invID == "" || got == "" {
		return Notification{}, errors.Wrap(ErrSignature, "missing fields")
	}

	shp := make(map[string]string)
	for k := range req.Form {
		if strings.HasPrefix(k, "Shp_") {
			shp[k] = req.Form.Get(k)
		}
	}
	want := signMD5(shp, outSum, invID, r.cfg.Password2)
	if !strings.EqualFold(got, want) {
		return Notification{}, ErrSignature
	}

	return Notification{ExternalID: invID, Status: StatusConfirmed, Ack: "OK" + invID}, nil
}

// Join parts with ':' and append Shp_ parameters in key order
func signMD5(shp map[string]string, parts ...string) string {
	keys := make([]string, 0, len(shp))
	for k := range shp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+shp[k])
	}
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
