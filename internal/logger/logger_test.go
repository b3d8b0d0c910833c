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

package logger

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	l, err := New("info")
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if l == nil {
		t.Fatal("expected logger instance, got nil")
	}

	// Verify logging to both streams without panic
	l.Info("test info message")
	l.Error("test error message", zap.String("key", "value"))

	// Ignore sync error on stdout/stderr
	_ = l.Sync()
}

func TestStreamSplit(t *testing.T) {
	var out, errOut bytes.Buffer
	l, err := newLogger("debug", &out, &errOut)
	if err != nil {
		t.Fatal(err)
	}

	l.Named("pool").Debug("debug line")
	l.Warn("warn line")
	l.Error("error line")

	if !strings.Contains(out.String(), "[DEBUG] <pool> debug line") {
		t.Errorf("expected debug line on stdout, got %q", out.String())
	}
	if !strings.Contains(out.String(), "[WARN] warn line") {
		t.Errorf("expected warn line on stdout, got %q", out.String())
	}
	if strings.Contains(out.String(), "error line") {
		t.Error("error line leaked to stdout")
	}
	if !strings.Contains(errOut.String(), "[ERROR] error line") {
		t.Errorf("expected error line on stderr, got %q", errOut.String())
	}
}

func TestLevelFilter(t *testing.T) {
	var out, errOut bytes.Buffer
	l, err := newLogger("warn", &out, &errOut)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	if out.Len() != 0 {
		t.Errorf("expected info suppressed at warn level, got %q", out.String())
	}

	if _, err := newLogger("loud", &out, &errOut); err == nil {
		t.Error("expected error for unknown level")
	}
}
