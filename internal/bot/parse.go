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

package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChatID parses a marked chat ID argument
func ParseChatID(args string) (int64, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return 0, fmt.Errorf("missing chat ID")
	}
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID %q", args)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid chat ID %q", args)
	}
	return id, nil
}
