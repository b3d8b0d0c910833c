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
	"fmt"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"
)

var (
	// ErrUnauthorized marks an invalid, revoked or expired session credential
	ErrUnauthorized = errors.New("telegram session is not authorized")
	// ErrTransport marks a transient connectivity failure
	ErrTransport = errors.New("telegram transport failure")
	// ErrNotRunning is returned by operations that need a live connection
	ErrNotRunning = errors.New("connection is not running")
)

// Sort an MTProto error into the auth or transport class
func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrNotRunning),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case auth.IsUnauthorized(err),
		tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "AUTH_KEY_DUPLICATED", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// IsAuthError reports whether err means the owner must authenticate again
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
