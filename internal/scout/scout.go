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

package scout

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/h3nc4/OrderScout/internal/config"
	"github.com/h3nc4/OrderScout/internal/matcher"
	"github.com/h3nc4/OrderScout/internal/metrics"
	"github.com/h3nc4/OrderScout/internal/model"
	"github.com/h3nc4/OrderScout/internal/notifier"
	"github.com/h3nc4/OrderScout/internal/storage"
)

// Store is the persistence the dispatcher needs
type Store interface {
	IsBlacklisted(ctx context.Context, chatID int64) (bool, error)
	SaveObservedMessage(ctx context.Context, m *model.ObservedMessage) (*model.ObservedMessage, error)
	InterestedSubscribers(ctx context.Context, chatID int64, now time.Time) ([]model.Subscriber, error)
	EligibleSubscriber(ctx context.Context, id, chatID int64, now time.Time) (*model.Subscriber, error)
	CreateDelivery(ctx context.Context, d *model.Delivery) (bool, error)
	CreateOrder(ctx context.Context, o *model.Order) (bool, error)
}

// Match inbound messages against each interested subscriber and send alerts
type Scout struct {
	mode     config.Mode
	store    Store
	notifier notifier.Notifier
	log      *zap.Logger
	metrics  metrics.Recorder
	shards   int
	now      func() time.Time

	// Semaphore to limit concurrent notification requests
	notifySem chan struct{}
	inflight  sync.WaitGroup
}

// Create a new Scout instance
func New(cfg *config.Config, store Store, n notifier.Notifier, log *zap.Logger, rec metrics.Recorder) *Scout {
	if rec == nil {
		rec = metrics.Nop{}
	}
	shards := cfg.Monitoring.DispatchShards
	if shards <= 0 {
		shards = 1
	}
	concurrency := cfg.Monitoring.NotifyConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Scout{
		mode:      cfg.Mode,
		store:     store,
		notifier:  n,
		log:       log.Named("scout"),
		metrics:   rec,
		shards:    shards,
		now:       time.Now,
		notifySem: make(chan struct{}, concurrency),
	}
}

// Listen to the message channel and process messages. Messages of one chat
// are processed in arrival order; different chats run in parallel shards.
func (s *Scout) Start(ctx context.Context, input <-chan model.Message) {
	queues := make([]chan model.Message, s.shards)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan model.Message, 16)
		q := queues[i]
		workers.Go(func() {
			for msg := range q {
				s.process(ctx, msg)
			}
		})
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		workers.Wait()
		s.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-input:
			if !ok {
				return
			}
			select {
			case queues[shardOf(msg.ChatID, s.shards)] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func shardOf(chatID int64, n int) int {
	u := uint64(chatID)
	if chatID < 0 {
		u = uint64(-chatID)
	}
	return int(u % uint64(n))
}

func (s *Scout) process(ctx context.Context, msg model.Message) {
	start := s.now()
	defer func() { s.metrics.RecordDispatchLatency(s.now().Sub(start)) }()
	s.metrics.RecordObserved()

	log := s.log.With(zap.Int64("chat_id", msg.ChatID), zap.Int("message_id", msg.ID))

	blocked, err := s.store.IsBlacklisted(ctx, msg.ChatID)
	if err != nil {
		log.Error("Failed to check blacklist", zap.Error(err))
		return
	}
	if blocked {
		log.Debug("Skipping blacklisted chat")
		return
	}

	observed, err := s.store.SaveObservedMessage(ctx, &model.ObservedMessage{
		SourceKind: msg.SourceKind,
		SourceID:   msg.SourceID,
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		ChatName:   msg.ChatTitle,
		SenderID:   msg.SenderID,
		Text:       msg.Text,
	})
	if err != nil {
		log.Error("Failed to store message", zap.Error(err))
		return
	}

	subs, err := s.recipients(ctx, msg)
	if err != nil {
		log.Error("Failed to load subscribers", zap.Error(err))
		return
	}
	for i := range subs {
		s.evaluate(ctx, log, msg, observed, &subs[i])
	}
}

// Per-user connections only evaluate their owner; shared workers evaluate everyone interested
func (s *Scout) recipients(ctx context.Context, msg model.Message) ([]model.Subscriber, error) {
	now := s.now()
	if s.mode == config.ModeUser && msg.SourceKind == model.SourceSubscriber {
		sub, err := s.store.EligibleSubscriber(ctx, msg.SourceID, msg.ChatID, now)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []model.Subscriber{*sub}, nil
	}
	return s.store.InterestedSubscribers(ctx, msg.ChatID, now)
}

// Match one subscriber. Failures are contained so other subscribers still get evaluated.
func (s *Scout) evaluate(ctx context.Context, log *zap.Logger, msg model.Message, observed *model.ObservedMessage, sub *model.Subscriber) {
	log = log.With(zap.Int64("subscriber_id", sub.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while evaluating subscriber", zap.Any("panic", r))
		}
	}()

	if len(sub.Keywords) == 0 {
		return
	}
	cities := make([]matcher.City, 0, len(sub.Cities))
	for _, c := range sub.Cities {
		cities = append(cities, matcher.City{Name: c.Name, Variations: c.Variations})
	}

	res := matcher.New(sub.KeywordList(), cities).Check(msg.Text)
	if !res.Match {
		return
	}
	s.metrics.RecordMatch()

	created, err := s.store.CreateDelivery(ctx, &model.Delivery{
		ObservedMessageID: observed.ID,
		SubscriberID:      sub.ID,
		MatchedKeyword:    res.Keyword,
		MatchedCity:       res.City,
	})
	if err != nil {
		log.Error("Failed to record delivery", zap.Error(err))
		return
	}
	if !created {
		s.metrics.RecordDuplicate()
		log.Debug("Already delivered")
		return
	}
	s.metrics.RecordDelivery()

	log.Info("Keyword matched",
		zap.String("keyword", res.Keyword),
		zap.String("city", res.City),
		zap.String("chat", msg.ChatTitle),
	)

	title := msg.ChatTitle
	if title == "" {
		title = strconv.FormatInt(msg.ChatID, 10)
	}
	link := model.MessageLink(msg.ChatID, msg.ID)
	alert := notifier.Alert{
		RecipientID: sub.TelegramID,
		Text:        matcher.FormatNotification(title, res, msg.Text, link),
		Link:        link,
	}

	if sub.ResponseText != "" {
		order := &model.Order{
			SubscriberID: sub.ID,
			ChatID:       msg.ChatID,
			MessageID:    msg.ID,
			ChatName:     msg.ChatTitle,
			Text:         msg.Text,
		}
		if _, err := s.store.CreateOrder(ctx, order); err != nil {
			log.Error("Failed to create order", zap.Error(err))
		} else {
			alert.OrderID = order.ID
		}
	}

	s.notify(ctx, log, alert)
}

// Dispatch notification asynchronously to not block the shard
func (s *Scout) notify(ctx context.Context, log *zap.Logger, alert notifier.Alert) {
	send := func() {
		defer s.inflight.Done()
		defer func() { <-s.notifySem }()
		if err := s.notifier.SendAlert(ctx, alert); err != nil {
			log.Error("Failed to send notification", zap.Error(err))
		}
	}

	select {
	case s.notifySem <- struct{}{}:
	case <-ctx.Done():
		return
	default:
		log.Warn("Notification queue full, blocking momentarily to dispatch alert")
		select {
		case s.notifySem <- struct{}{}:
		case <-ctx.Done():
			return
		}
	}
	s.inflight.Add(1)
	go send()
}
