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

package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// Run an action against a session without watching any chat
type ScoutClient interface {
	Run(ctx context.Context, action func(ctx context.Context, api *tg.Client) error) error
}

// Wrap an MTProto client opened from a stored session for one-shot work
type Client struct {
	client *telegram.Client
	log    *zap.Logger
}

// Create a one-shot client from a session credential
func NewClient(appID int, appHash, credential string, log *zap.Logger) *Client {
	opts := telegram.Options{
		Logger:         log.Named("mtproto"),
		SessionStorage: newMemorySession(credential),
	}
	return &Client{
		client: telegram.NewClient(appID, appHash, opts),
		log:    log,
	}
}

// Connect, verify the session and execute the provided logic
func (c *Client) Run(ctx context.Context, action func(ctx context.Context, api *tg.Client) error) error {
	err := c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		return action(ctx, c.client.API())
	})
	return classify(err)
}
