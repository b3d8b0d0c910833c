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
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"

	"github.com/h3nc4/OrderScout/internal/model"
)

// Offset between a raw channel ID and its marked "-100" form
const channelOffset int64 = 1_000_000_000_000

// Convert a basic group ID to its marked form
func markChat(id int64) int64 { return -id }

// Convert a channel ID to its marked "-100" form
func markChannel(id int64) int64 { return -channelOffset - id }

// Recover the raw ID and kind from a marked chat ID
func unmark(id int64) (raw int64, channel bool) {
	if id < -channelOffset {
		return -id - channelOffset, true
	}
	if id < 0 {
		return -id, false
	}
	return id, false
}

// Report whether a channel entity behaves like a group
func isGroupChannel(ch *tg.Channel) bool {
	return ch != nil && (ch.Megagroup || ch.Gigagroup)
}

// Resolve the marked ID, title and input peer of a group message
func groupOf(e tg.Entities, p tg.PeerClass) (int64, string, tg.InputPeerClass, bool) {
	switch p := p.(type) {
	case *tg.PeerChat:
		title := ""
		if chat, ok := e.Chats[p.ChatID]; ok {
			title = chat.Title
		}
		return markChat(p.ChatID), title, &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		ch, ok := e.Channels[p.ChannelID]
		if !ok || !isGroupChannel(ch) {
			return 0, "", nil, false
		}
		return markChannel(ch.ID), ch.Title, &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
	default:
		return 0, "", nil, false
	}
}

// Inspect a dialog peer and report it when it is a live group
func dialogGroup(ents peer.Entities, p tg.InputPeerClass) (model.Chat, bool) {
	switch p := p.(type) {
	case *tg.InputPeerChat:
		chat, ok := ents.Chat(p.ChatID)
		if !ok || chat.Deactivated {
			return model.Chat{}, false
		}
		return model.Chat{ID: markChat(p.ChatID), Name: chat.Title}, true
	case *tg.InputPeerChannel:
		ch, ok := ents.Channel(p.ChannelID)
		if !ok || !isGroupChannel(ch) {
			return model.Chat{}, false
		}
		return model.Chat{ID: markChannel(p.ChannelID), Name: ch.Title}, true
	default:
		return model.Chat{}, false
	}
}

// ListGroups returns every basic group and supergroup the account belongs to
func ListGroups(ctx context.Context, api *tg.Client) ([]model.Chat, error) {
	var chats []model.Chat
	iter := query.GetDialogs(api).Iter()
	for iter.Next(ctx) {
		d := iter.Value()
		if c, ok := dialogGroup(d.Entities, d.Peer); ok {
			chats = append(chats, c)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterate dialogs")
	}
	return chats, nil
}

// SendReply posts text into chatID as a reply to messageID
func SendReply(ctx context.Context, api *tg.Client, chatID int64, messageID int, text string) error {
	p, err := findPeerByID(ctx, api, chatID)
	if err != nil {
		return err
	}
	return sendReply(ctx, api, p, messageID, text)
}

func sendReply(ctx context.Context, api *tg.Client, p tg.InputPeerClass, messageID int, text string) error {
	if _, err := message.NewSender(api).To(p).Reply(messageID).Text(ctx, text); err != nil {
		return errors.Wrap(classify(err), "send reply")
	}
	return nil
}

// Iterate over dialogs to find the group with a matching marked ID
func findPeerByID(ctx context.Context, api *tg.Client, targetID int64) (tg.InputPeerClass, error) {
	searchID, channel := unmark(targetID)

	iter := query.GetDialogs(api).Iter()
	for iter.Next(ctx) {
		d := iter.Value()
		switch p := d.Peer.(type) {
		case *tg.InputPeerChat:
			if !channel && p.ChatID == searchID {
				return d.Peer, nil
			}
		case *tg.InputPeerChannel:
			if channel && p.ChannelID == searchID {
				return d.Peer, nil
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterate dialogs")
	}
	return nil, errors.Errorf("chat %d not found in dialogs (ensure the account has joined it)", targetID)
}
