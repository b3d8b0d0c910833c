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
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Create new zap logger configured for console output at the given level.
// Direct levels below Error to stdout, and Error level and above to stderr.
func New(level string) (*zap.Logger, error) {
	return newLogger(level, os.Stdout, os.Stderr)
}

func newLogger(level string, stdout, stderr io.Writer) (*zap.Logger, error) {
	minLevel := zapcore.InfoLevel
	if level != "" {
		if err := minLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	// Configure encoder
	encoderConfig := zap.NewProductionEncoderConfig()

	// Format time
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format(time.RFC3339Nano) + "]")
	}

	// Format level: [INFO]
	encoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + l.CapitalString() + "]")
	}

	// Keep component names produced by log.Named
	encoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("<" + name + ">")
	}

	encoderConfig.EncodeCaller = nil
	encoderConfig.ConsoleSeparator = " "

	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= minLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minLevel && lvl < zapcore.ErrorLevel
	})

	// Lock streams to prevent race conditions on writes
	consoleOut := zapcore.Lock(zapcore.AddSync(stdout))
	consoleErr := zapcore.Lock(zapcore.AddSync(stderr))

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, consoleErr, highPriority),
		zapcore.NewCore(encoder, consoleOut, lowPriority),
	)

	return zap.New(core), nil
}
