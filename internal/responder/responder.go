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

// Package responder sends a subscriber's response text into the chat of a
// matched order, at most once per order.
package responder

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/metrics"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/pool"
	"github.com/h3nc4/OrderScout/internal/storage"
	"github.com/h3nc4/OrderScout/internal/telegram"
)

var (
	// ErrAlreadyResponded is returned when the order was answered before
	ErrAlreadyResponded = errors.New("order already responded")
	// ErrNotOwner is returned when someone else's order is answered
	ErrNotOwner = errors.New("order belongs to another subscriber")
	// ErrNoSender is returned when no account can post into the order's chat
	ErrNoSender = errors.New("no connection available to send the response")
)

// Store is the persistence the responder needs
type Store interface {
	Order(ctx context.Context, id int64) (*model.Order, error)
	Subscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	ClaimOrder(ctx context.Context, id int64, now time.Time) (bool, error)
	ReleaseOrder(ctx context.Context, id int64) error
	Assignment(ctx context.Context, chatID int64) (*model.GroupAssignment, error)
}

// Conns looks up a live connection by owner
type Conns interface {
	Get(ownerID int64) (pool.Conn, bool)
}

// ClientFactory opens an on-demand client from a session credential
type ClientFactory func(credential string) telegram.ScoutClient

type Responder struct {
	mode     config.Mode
	fallback string
	store    Store
	users    Conns
	workers  Conns
	clients  ClientFactory
	log      *zap.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// New creates a responder. users resolves subscriber connections and workers
// resolves worker connections; either may be nil in the mode that lacks it.
func New(cfg *config.Config, store Store, users, workers Conns, clients ClientFactory, log *zap.Logger, rec metrics.Recorder) *Responder {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Responder{
		mode:     cfg.Mode,
		fallback: cfg.ResponseText,
		store:    store,
		users:    users,
		workers:  workers,
		clients:  clients,
		log:      log.Named("responder"),
		metrics:  rec,
		now:      time.Now,
	}
}

// Respond posts the response for orderID on behalf of the subscriber with telegramID
func (r *Responder) Respond(ctx context.Context, orderID, telegramID int64) error {
	order, err := r.store.Order(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load order")
	}
	sub, err := r.store.Subscriber(ctx, order.SubscriberID)
	if err != nil {
		return errors.Wrap(err, "load subscriber")
	}
	if sub.TelegramID != telegramID {
		return ErrNotOwner
	}
	if order.Responded {
		r.metrics.RecordResponse("duplicate")
		return ErrAlreadyResponded
	}

	claimed, err := r.store.ClaimOrder(ctx, order.ID, r.now())
	if err != nil {
		return errors.Wrap(err, "claim order")
	}
	if !claimed {
		r.metrics.RecordResponse("duplicate")
		return ErrAlreadyResponded
	}

	text := sub.ResponseText
	if text == "" {
		text = r.fallback
	}

	log := r.log.With(
		zap.Int64("order_id", order.ID),
		zap.Int64("subscriber_id", sub.ID),
		zap.Int64("chat_id", order.ChatID),
	)
	if err := r.send(ctx, sub, order, text); err != nil {
		// Let the user try again
		if rerr := r.store.ReleaseOrder(context.WithoutCancel(ctx), order.ID); rerr != nil {
			log.Error("Failed to release order", zap.Error(rerr))
		}
		r.metrics.RecordResponse("failed")
		log.Warn("Failed to send response", zap.Error(err))
		return err
	}

	r.metrics.RecordResponse("sent")
	log.Info("Response sent")
	return nil
}

// Pick the account that replies: the owner's live connection, the worker
// assigned to the chat, then an on-demand client from the owner's session.
func (r *Responder) send(ctx context.Context, sub *model.Subscriber, order *model.Order, text string) error {
	if r.mode == config.ModeUser {
		if c, ok := running(r.users, sub.ID); ok {
			return c.Reply(ctx, order.ChatID, order.MessageID, text)
		}
	} else {
		a, err := r.store.Assignment(ctx, order.ChatID)
		switch {
		case err == nil:
			if c, ok := running(r.workers, a.WorkerID); ok {
				err := c.Reply(ctx, order.ChatID, order.MessageID, text)
				if err == nil {
					return nil
				}
				r.log.Debug("Worker reply failed, trying subscriber session",
					zap.Int64("worker_id", a.WorkerID), zap.Error(err))
			}
		case !errors.Is(err, storage.ErrNotFound):
			return errors.Wrap(err, "load assignment")
		}
	}

	if sub.Session == "" || r.clients == nil {
		return ErrNoSender
	}
	return r.clients(sub.Session).Run(ctx, func(ctx context.Context, api *tg.Client) error {
		return telegram.SendReply(ctx, api, order.ChatID, order.MessageID, text)
	})
}

func running(conns Conns, ownerID int64) (pool.Conn, bool) {
	if conns == nil {
		return nil, false
	}
	c, ok := conns.Get(ownerID)
	if !ok || c.State() != telegram.StateRunning {
		return nil, false
	}
	return c, true
}
