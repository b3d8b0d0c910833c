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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/h3nc4/OrderScout/internal/model"
)

func newTestConnection(kind model.SourceKind, out chan model.Message, watched ...int64) *Connection {
	c := New(Options{Kind: kind, OwnerID: 7, Out: out})
	c.setWatch(watched)
	c.selfID.Store(500)
	return c
}

func testEntities() tg.Entities {
	return tg.Entities{
		Chats: map[int64]*tg.Chat{
			42: {ID: 42, Title: "Basic Group"},
		},
		Channels: map[int64]*tg.Channel{
			999: {ID: 999, Title: "Super Group", Megagroup: true, AccessHash: 1},
			888: {ID: 888, Title: "Broadcast", Broadcast: true, AccessHash: 2},
		},
	}
}

// Test message filtering locally without full MTProto connection
func TestHandle(t *testing.T) {
	supergroup := markChannel(999)
	broadcast := markChannel(888)
	basic := markChat(42)

	tests := []struct {
		name string
		kind model.SourceKind
		msg  *tg.Message
		want []model.Message
	}{
		{
			name: "Supergroup Message Admitted",
			kind: model.SourceSubscriber,
			msg: &tg.Message{
				ID: 100, Message: "нужно такси", Date: 1700000000,
				PeerID: &tg.PeerChannel{ChannelID: 999},
				FromID: &tg.PeerUser{UserID: 77},
			},
			want: []model.Message{{
				SourceKind: model.SourceSubscriber, SourceID: 7,
				ChatID: supergroup, ChatTitle: "Super Group",
				ID: 100, SenderID: 77, Text: "нужно такси",
				Date: time.Unix(1700000000, 0),
			}},
		},
		{
			name: "Basic Group Message Admitted",
			kind: model.SourceWorker,
			msg: &tg.Message{
				ID: 5, Message: "трансфер", Date: 1700000000,
				PeerID: &tg.PeerChat{ChatID: 42},
			},
			want: []model.Message{{
				SourceKind: model.SourceWorker, SourceID: 7,
				ChatID: basic, ChatTitle: "Basic Group",
				ID: 5, Text: "трансфер",
				Date: time.Unix(1700000000, 0),
			}},
		},
		{
			name: "Broadcast Channel Dropped",
			kind: model.SourceWorker,
			msg:  &tg.Message{ID: 1, Message: "пост", PeerID: &tg.PeerChannel{ChannelID: 888}},
		},
		{
			name: "Direct Message Dropped",
			kind: model.SourceWorker,
			msg:  &tg.Message{ID: 1, Message: "привет", PeerID: &tg.PeerUser{UserID: 77}},
		},
		{
			name: "Unwatched Chat Dropped",
			kind: model.SourceWorker,
			msg:  &tg.Message{ID: 1, Message: "такси", PeerID: &tg.PeerChannel{ChannelID: 12345}},
		},
		{
			name: "Empty Text Dropped",
			kind: model.SourceWorker,
			msg:  &tg.Message{ID: 1, Message: "   ", PeerID: &tg.PeerChat{ChatID: 42}},
		},
		{
			name: "Own Outgoing Message Dropped",
			kind: model.SourceSubscriber,
			msg:  &tg.Message{ID: 1, Out: true, Message: "такси", PeerID: &tg.PeerChat{ChatID: 42}},
		},
		{
			name: "Own Account Message Dropped",
			kind: model.SourceSubscriber,
			msg: &tg.Message{
				ID: 1, Message: "такси",
				PeerID: &tg.PeerChat{ChatID: 42},
				FromID: &tg.PeerUser{UserID: 500},
			},
		},
		{
			name: "Worker Keeps Own Account Message",
			kind: model.SourceWorker,
			msg: &tg.Message{
				ID: 2, Message: "такси", Date: 1700000000,
				PeerID: &tg.PeerChat{ChatID: 42},
				FromID: &tg.PeerUser{UserID: 500},
			},
			want: []model.Message{{
				SourceKind: model.SourceWorker, SourceID: 7,
				ChatID: basic, ChatTitle: "Basic Group",
				ID: 2, SenderID: 500, Text: "такси",
				Date: time.Unix(1700000000, 0),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fill optional FromID flag the way the decoder would
			if tt.msg.FromID != nil {
				tt.msg.SetFromID(tt.msg.FromID)
			}
			out := make(chan model.Message, 4)
			c := newTestConnection(tt.kind, out, supergroup, basic, broadcast)

			if err := c.handle(context.Background(), testEntities(), tt.msg); err != nil {
				t.Fatalf("handle failed: %v", err)
			}
			close(out)

			var got []model.Message
			for m := range out {
				got = append(got, m)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("emitted messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandle_CachesPeer(t *testing.T) {
	out := make(chan model.Message, 1)
	c := newTestConnection(model.SourceWorker, out, markChannel(999))

	msg := &tg.Message{ID: 1, Message: "такси", PeerID: &tg.PeerChannel{ChannelID: 999}}
	if err := c.handle(context.Background(), testEntities(), msg); err != nil {
		t.Fatal(err)
	}

	p, ok := c.peers.Load(markChannel(999))
	if !ok {
		t.Fatal("expected peer cached")
	}
	if diff := cmp.Diff(&tg.InputPeerChannel{ChannelID: 999, AccessHash: 1}, p); diff != "" {
		t.Errorf("cached peer mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_FullQueueHonorsContext(t *testing.T) {
	out := make(chan model.Message) // unbuffered and never read
	c := newTestConnection(model.SourceWorker, out, markChat(42))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	msg := &tg.Message{ID: 1, Message: "такси", PeerID: &tg.PeerChat{ChatID: 42}}
	if err := c.handle(ctx, testEntities(), msg); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRefreshWatchTargets(t *testing.T) {
	targets := []int64{-1}
	c := New(Options{Targets: func(context.Context) ([]int64, error) { return targets, nil }})

	if err := c.RefreshWatchTargets(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Watches(-1) || c.Watches(-2) {
		t.Error("unexpected watch-list after first refresh")
	}

	targets = []int64{-2, -3}
	if err := c.RefreshWatchTargets(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Watches(-1) || !c.Watches(-2) || c.WatchCount() != 2 {
		t.Error("expected watch-list swapped")
	}

	t.Run("Loader Error Keeps Previous List", func(t *testing.T) {
		failing := New(Options{Targets: func(context.Context) ([]int64, error) { return nil, errors.New("db down") }})
		failing.setWatch([]int64{-9})
		if err := failing.RefreshWatchTargets(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if !failing.Watches(-9) {
			t.Error("previous watch-list must survive a failed refresh")
		}
	})
}

func TestStopIdempotent(t *testing.T) {
	c := New(Options{})
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("stop on stopped connection: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if c.State() != StateStopped {
		t.Errorf("expected stopped, got %s", c.State())
	}
}

func TestNotRunning(t *testing.T) {
	c := New(Options{})
	if err := c.Reply(context.Background(), -1, 1, "Я"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	if _, err := c.ListGroups(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestMarkedIDs(t *testing.T) {
	if got := markChannel(1234567890); got != -1001234567890 {
		t.Errorf("unexpected marked channel %d", got)
	}
	if !model.IsSupergroupID(markChannel(5)) {
		t.Error("marked channel must have supergroup shape")
	}
	for _, tt := range []struct {
		id      int64
		raw     int64
		channel bool
	}{
		{-1001234567890, 1234567890, true},
		{-4242, 4242, false},
		{77, 77, false},
	} {
		raw, channel := unmark(tt.id)
		if raw != tt.raw || channel != tt.channel {
			t.Errorf("unmark(%d) = %d, %v", tt.id, raw, channel)
		}
	}
}

func TestDialogGroup(t *testing.T) {
	ents := peer.NewEntities(
		nil,
		map[int64]*tg.Chat{
			1: {ID: 1, Title: "Live"},
			2: {ID: 2, Title: "Dead", Deactivated: true},
		},
		map[int64]*tg.Channel{
			3: {ID: 3, Title: "Mega", Megagroup: true},
			4: {ID: 4, Title: "News", Broadcast: true},
		},
	)

	var got []model.Chat
	for _, p := range []tg.InputPeerClass{
		&tg.InputPeerChat{ChatID: 1},
		&tg.InputPeerChat{ChatID: 2},
		&tg.InputPeerChannel{ChannelID: 3},
		&tg.InputPeerChannel{ChannelID: 4},
		&tg.InputPeerUser{UserID: 5},
	} {
		if c, ok := dialogGroup(ents, p); ok {
			got = append(got, c)
		}
	}

	want := []model.Chat{{ID: -1, Name: "Live"}, {ID: -1000000000003, Name: "Mega"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		auth bool
	}{
		{"Unregistered Key", tgerr.New(401, "AUTH_KEY_UNREGISTERED"), true},
		{"Revoked Session", tgerr.New(401, "SESSION_REVOKED"), true},
		{"Flood Wait", tgerr.New(420, "FLOOD_WAIT_30"), false},
		{"Network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			if IsAuthError(err) != tt.auth {
				t.Errorf("IsAuthError = %v, want %v (%v)", IsAuthError(err), tt.auth, err)
			}
			if !tt.auth && !errors.Is(err, ErrTransport) {
				t.Errorf("expected transport class, got %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error must wrap the cause")
			}
		})
	}

	if classify(nil) != nil {
		t.Error("nil must stay nil")
	}
	if !errors.Is(classify(context.Canceled), context.Canceled) || IsAuthError(classify(context.Canceled)) {
		t.Error("cancellation must pass through")
	}
}
