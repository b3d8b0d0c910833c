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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	boltstor "github.com/gotd/contrib/bbolt"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/model"
)

// Describe the lifecycle of a Connection
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Load the authoritative watch-list of a connection's owner
type TargetLoader func(ctx context.Context) ([]int64, error)

// Configure one Connection
type Options struct {
	AppID      int
	AppHash    string
	Kind       model.SourceKind
	OwnerID    int64
	Credential string
	Targets    TargetLoader
	Out        chan<- model.Message
	// Optional bbolt file persisting update state across restarts
	StateDB *bbolt.DB
	Log     *zap.Logger
}

type watchSet map[int64]struct{}

// Connection is one persistent authenticated link watching a mutable set of group chats
type Connection struct {
	opts Options
	log  *zap.Logger

	state  atomic.Int32
	watch  atomic.Pointer[watchSet]
	selfID atomic.Int64
	api    atomic.Pointer[tg.Client]
	peers  sync.Map // marked chat ID -> tg.InputPeerClass

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Create a stopped Connection
func New(opts Options) *Connection {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Targets == nil {
		opts.Targets = func(context.Context) ([]int64, error) { return nil, nil }
	}
	c := &Connection{
		opts: opts,
		log:  opts.Log.With(zap.String("kind", string(opts.Kind)), zap.Int64("owner_id", opts.OwnerID)),
	}
	c.watch.Store(&watchSet{})
	return c
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Connect, authenticate and begin delivering watched messages. Failures leave the Connection stopped.
func (c *Connection) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		if c.State() == StateRunning {
			return nil
		}
		return errors.Errorf("connection is %s", c.State())
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.handle(ctx, e, u.Message)
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.handle(ctx, e, u.Message)
	})

	cfg := updates.Config{
		Handler: dispatcher,
		Logger:  c.log.Named("updates"),
	}
	if c.opts.StateDB != nil {
		cfg.Storage = boltstor.NewStateStorage(c.opts.StateDB)
	}
	gaps := updates.New(cfg)

	client := telegram.NewClient(c.opts.AppID, c.opts.AppHash, telegram.Options{
		Logger:         c.log.Named("mtproto"),
		SessionStorage: newMemorySession(c.opts.Credential),
		UpdateHandler:  gaps,
		Middlewares: []telegram.Middleware{
			updhook.UpdateHook(gaps.Handle),
		},
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return errors.Wrap(err, "auth status")
			}
			if !status.Authorized || status.User == nil {
				return ErrUnauthorized
			}
			c.selfID.Store(status.User.ID)

			api := client.API()
			if err := c.loadTargets(ctx); err != nil {
				return err
			}
			c.api.Store(api)
			defer c.api.Store(nil)

			return gaps.Run(ctx, api, status.User.ID, updates.AuthOptions{
				OnStart: func(ctx context.Context) {
					select {
					case ready <- nil:
					default:
					}
				},
			})
		})
		err = classify(err)
		select {
		case ready <- err:
		default:
		}
		if runCtx.Err() == nil && c.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
			c.log.Warn("Connection lost", zap.Error(err))
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			c.state.Store(int32(StateStopped))
			return err
		}
	case <-ctx.Done():
		cancel()
		<-done
		c.state.Store(int32(StateStopped))
		return ctx.Err()
	}

	if !c.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		cancel()
		return errors.Wrap(ErrTransport, "connection closed while starting")
	}
	c.log.Info("Connection running", zap.Int("watched", c.WatchCount()))
	return nil
}

// Tear down the transport link. Stopping a stopped Connection is a no-op.
func (c *Connection) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	c.state.Store(int32(StateStopping))
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.state.Store(int32(StateStopped))
	c.log.Info("Connection stopped")
	return nil
}

// Re-read the owner's watch-list and swap it in without pausing delivery
func (c *Connection) RefreshWatchTargets(ctx context.Context) error {
	return c.loadTargets(ctx)
}

func (c *Connection) loadTargets(ctx context.Context) error {
	ids, err := c.opts.Targets(ctx)
	if err != nil {
		return errors.Wrap(err, "load watch targets")
	}
	c.setWatch(ids)
	return nil
}

func (c *Connection) setWatch(ids []int64) {
	set := make(watchSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.watch.Store(&set)
}

// Report whether chatID is in the current watch-list
func (c *Connection) Watches(chatID int64) bool {
	_, ok := (*c.watch.Load())[chatID]
	return ok
}

func (c *Connection) WatchCount() int {
	return len(*c.watch.Load())
}

// Reply posts text into a chat as a reply to messageID
func (c *Connection) Reply(ctx context.Context, chatID int64, messageID int, text string) error {
	api := c.api.Load()
	if api == nil {
		return ErrNotRunning
	}

	if p, ok := c.peers.Load(chatID); ok {
		return sendReply(ctx, api, p.(tg.InputPeerClass), messageID, text)
	}
	p, err := findPeerByID(ctx, api, chatID)
	if err != nil {
		return err
	}
	c.peers.Store(chatID, p)
	return sendReply(ctx, api, p, messageID, text)
}

// ListGroups returns the group memberships of the connected account
func (c *Connection) ListGroups(ctx context.Context) ([]model.Chat, error) {
	api := c.api.Load()
	if api == nil {
		return nil, ErrNotRunning
	}
	return ListGroups(ctx, api)
}

// Filter one inbound message and hand it to the dispatcher queue
func (c *Connection) handle(ctx context.Context, e tg.Entities, m tg.MessageClass) error {
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil
	}

	chatID, title, peer, ok := groupOf(e, msg.PeerID)
	if !ok {
		c.log.Debug("Dropping non-group message", zap.Int("message_id", msg.ID))
		return nil
	}
	if !c.Watches(chatID) {
		c.log.Debug("Dropping unwatched message", zap.Int64("chat_id", chatID))
		return nil
	}
	if strings.TrimSpace(msg.Message) == "" {
		c.log.Debug("Dropping empty message", zap.Int64("chat_id", chatID))
		return nil
	}

	var senderID int64
	if from, ok := msg.GetFromID(); ok {
		if u, ok := from.(*tg.PeerUser); ok {
			senderID = u.UserID
		}
	}
	if c.opts.Kind == model.SourceSubscriber && (msg.Out || senderID != 0 && senderID == c.selfID.Load()) {
		c.log.Debug("Dropping own message", zap.Int64("chat_id", chatID))
		return nil
	}

	c.peers.Store(chatID, peer)
	return c.emit(ctx, model.Message{
		SourceKind: c.opts.Kind,
		SourceID:   c.opts.OwnerID,
		ChatID:     chatID,
		ChatTitle:  title,
		ID:         msg.ID,
		SenderID:   senderID,
		Text:       msg.Message,
		Date:       time.Unix(int64(msg.Date), 0),
	})
}

func (c *Connection) emit(ctx context.Context, m model.Message) error {
	if c.opts.Out == nil {
		return nil
	}
	select {
	case c.opts.Out <- m:
		return nil
	default:
	}

	c.log.Warn("Message queue full, waiting for dispatcher", zap.Int64("chat_id", m.ChatID))
	select {
	case c.opts.Out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
