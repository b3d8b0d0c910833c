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

package model

import (
	"strconv"
	"strings"
	"time"
)

// Identify which kind of account observed a message
type SourceKind string

const (
	SourceSubscriber SourceKind = "subscriber"
	SourceWorker     SourceKind = "worker"
)

// Message is one inbound chat message admitted by a Connection
type Message struct {
	SourceKind SourceKind
	SourceID   int64
	ChatID     int64
	ChatTitle  string
	ID         int
	SenderID   int64
	Text       string
	Date       time.Time
}

// Chat is a group membership reported by the transport
type Chat struct {
	ID   int64
	Name string
}

// Subscriber is an end user of the bot
type Subscriber struct {
	ID                int64      `gorm:"primaryKey"`
	TelegramID        int64      `gorm:"uniqueIndex;not null"`
	Username          string     `gorm:"size:255"`
	Session           string     `gorm:"type:text"`
	ResponseText      string     `gorm:"type:text"`
	SubscriptionEnd   *time.Time `gorm:"index"`
	ReminderSentAt    *time.Time
	IsActive          bool
	IsBanned          bool
	IsAdmin           bool
	MonitoringEnabled bool `gorm:"index"`
	LastError         string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	WatchTargets []WatchTarget `gorm:"constraint:OnDelete:CASCADE"`
	Keywords     []Keyword     `gorm:"constraint:OnDelete:CASCADE"`
	Cities       []City        `gorm:"constraint:OnDelete:CASCADE"`
}

// Report whether the subscription is paid up at now
func (s *Subscriber) HasActiveSubscription(now time.Time) bool {
	return s.SubscriptionEnd != nil && s.SubscriptionEnd.After(now)
}

// Report whether the subscriber may receive deliveries at now
func (s *Subscriber) Eligible(now time.Time) bool {
	return s.MonitoringEnabled && !s.IsBanned && s.HasActiveSubscription(now)
}

// KeywordList returns the stored keyword texts in stored order
func (s *Subscriber) KeywordList() []string {
	out := make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		out = append(out, k.Word)
	}
	return out
}

// WatchTarget is one chat a subscriber can monitor
type WatchTarget struct {
	ID           int64  `gorm:"primaryKey"`
	SubscriberID int64  `gorm:"uniqueIndex:idx_watch_target_chat;not null"`
	ChatID       int64  `gorm:"uniqueIndex:idx_watch_target_chat;index;not null"`
	Name         string `gorm:"size:255"`
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Keyword struct {
	ID           int64  `gorm:"primaryKey"`
	SubscriberID int64  `gorm:"uniqueIndex:idx_keyword_word;not null"`
	Word         string `gorm:"uniqueIndex:idx_keyword_word;size:255;not null"`
	CreatedAt    time.Time
}

type City struct {
	ID           int64    `gorm:"primaryKey"`
	SubscriberID int64    `gorm:"uniqueIndex:idx_city_name;not null"`
	Name         string   `gorm:"uniqueIndex:idx_city_name;size:255;not null"`
	Variations   []string `gorm:"serializer:json;type:text"`
	CreatedAt    time.Time
}

// Worker is an operator-owned account used in shared mode
type Worker struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;size:255;not null"`
	Phone        string `gorm:"size:64"`
	Session      string `gorm:"type:text"`
	MaxGroups    int
	IsActive     bool
	LastError    string `gorm:"type:text"`
	LastActiveAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Assignments []GroupAssignment `gorm:"constraint:OnDelete:CASCADE"`
}

// WorkerUpdate lists the worker fields an operator may change. Nil fields are left untouched.
type WorkerUpdate struct {
	Name      *string
	MaxGroups *int
	Session   *string
	IsActive  *bool
}

// Empty reports whether the update changes nothing
func (u WorkerUpdate) Empty() bool {
	return u.Name == nil && u.MaxGroups == nil && u.Session == nil && u.IsActive == nil
}

// GroupAssignment maps one monitored chat to one worker
type GroupAssignment struct {
	ID        int64  `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex;not null"`
	WorkerID  int64  `gorm:"index;not null"`
	Name      string `gorm:"size:255"`
	CreatedAt time.Time
}

// ObservedMessage is a persisted inbound message kept for the retention window.
// Basic group message IDs are numbered per account, so those rows are also
// keyed by the observing connection through Scope.
type ObservedMessage struct {
	ID         int64      `gorm:"primaryKey"`
	SourceKind SourceKind `gorm:"size:16"`
	SourceID   int64
	ChatID     int64  `gorm:"uniqueIndex:idx_observed_chat_msg;not null"`
	MessageID  int    `gorm:"uniqueIndex:idx_observed_chat_msg;not null"`
	Scope      string `gorm:"uniqueIndex:idx_observed_chat_msg;size:48;not null;default:''"`
	ChatName   string `gorm:"size:255"`
	SenderID   int64
	Text       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`

	Deliveries []Delivery `gorm:"constraint:OnDelete:CASCADE"`
}

// Delivery records that one observed message matched one subscriber
type Delivery struct {
	ID                int64 `gorm:"primaryKey"`
	ObservedMessageID int64 `gorm:"uniqueIndex:idx_delivery_pair;not null"`
	SubscriberID      int64 `gorm:"uniqueIndex:idx_delivery_pair;index;not null"`
	MatchedKeyword    string
	MatchedCity       string
	CreatedAt         time.Time `gorm:"index"`
}

// Order is the actionable record behind a "respond" button
type Order struct {
	ID           int64 `gorm:"primaryKey"`
	SubscriberID int64 `gorm:"uniqueIndex:idx_order_message;not null"`
	ChatID       int64 `gorm:"uniqueIndex:idx_order_message;not null"`
	MessageID    int   `gorm:"uniqueIndex:idx_order_message;not null"`
	ChatName     string
	Text         string `gorm:"type:text"`
	Responded    bool
	RespondedAt  *time.Time
	CreatedAt    time.Time
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one subscription charge created through a gateway
type Payment struct {
	ID           int64         `gorm:"primaryKey"`
	SubscriberID int64         `gorm:"index;not null"`
	Provider     string        `gorm:"uniqueIndex:idx_payment_external;size:32"`
	ExternalID   string        `gorm:"uniqueIndex:idx_payment_external;size:128"`
	Amount       string        `gorm:"size:32"`
	Days         int
	Status       PaymentStatus `gorm:"index;size:16"`
	URL          string        `gorm:"type:text"`
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
}

// BlacklistedChat is never dispatched nor distributed
type BlacklistedChat struct {
	ID        int64  `gorm:"primaryKey"`
	ChatID    int64  `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"size:255"`
	Reason    string
	CreatedAt time.Time
}

// All returns every persisted model for migration
func All() []any {
	return []any{
		&Subscriber{}, &WatchTarget{}, &Keyword{}, &City{},
		&Worker{}, &GroupAssignment{},
		&ObservedMessage{}, &Delivery{}, &Order{},
		&Payment{}, &BlacklistedChat{},
	}
}

// IsSupergroupID reports whether id has the marked "-100" supergroup shape
func IsSupergroupID(id int64) bool {
	return strings.HasPrefix(strconv.FormatInt(id, 10), "-100")
}

// ObservedScope is "" for supergroups and channels, whose message IDs are
// global, and "<kind>:<id>" of the observing connection otherwise.
func ObservedScope(kind SourceKind, sourceID, chatID int64) string {
	if IsSupergroupID(chatID) {
		return ""
	}
	return string(kind) + ":" + strconv.FormatInt(sourceID, 10)
}

// MessageLink builds a t.me link to a message in a supergroup, or "" for basic groups
func MessageLink(chatID int64, messageID int) string {
	s := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(s, "-100") {
		return ""
	}
	return "https://t.me/c/" + s[4:] + "/" + strconv.Itoa(messageID)
}
