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

package config

import (
	"maps"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	// Setup Environment
	setEnv := func(vars map[string]string) {
		os.Clearenv()
		for k, v := range vars {
			if err := os.Setenv(k, v); err != nil {
				t.Fatalf("failed to set env var %s: %v", k, err)
			}
		}
	}
	defer os.Clearenv()

	// Define base valid configuration
	baseEnv := map[string]string{
		"TELEGRAM_API_ID":    "12345",
		"TELEGRAM_API_HASH":  "abcdef",
		"TELEGRAM_BOT_TOKEN": "bot_token",
	}

	// Create temporary config file
	configFileContent := `
monitoring:
  queue_size: 250
  retention: 12h
schedule:
  payment_poll_interval: 30s
notify:
  burst: 10
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		// Ignore error on remove in cleanup
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write([]byte(configFileContent)); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}

	t.Run("Defaults", func(t *testing.T) {
		setEnv(baseEnv)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.AppID != 12345 {
			t.Errorf("expected AppID 12345, got %d", cfg.AppID)
		}
		if cfg.Mode != ModeUser {
			t.Errorf("expected user mode by default, got %q", cfg.Mode)
		}
		if diff := cmp.Diff(Default().Monitoring, cfg.Monitoring); diff != "" {
			t.Errorf("monitoring defaults mismatch (-want +got):\n%s", diff)
		}
		if cfg.ResponseText != "Я" {
			t.Errorf("unexpected default response text %q", cfg.ResponseText)
		}
	})

	t.Run("Valid Full Config", func(t *testing.T) {
		env := make(map[string]string)
		maps.Copy(env, baseEnv)
		env["ORDERSCOUT_CONFIG_FILE"] = tmpFile.Name()
		env["ORDERSCOUT_MODE"] = "Shared"
		env["ADMIN_IDS"] = "1, 2,3"
		env["SUBSCRIPTION_PRICE"] = "990.50"
		env["PAYMENT_PROVIDER"] = "robokassa"
		env["ROBOKASSA_TEST_MODE"] = "true"
		setEnv(env)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Mode != ModeShared {
			t.Errorf("expected shared mode, got %q", cfg.Mode)
		}
		if diff := cmp.Diff([]int64{1, 2, 3}, cfg.AdminIDs); diff != "" {
			t.Errorf("admin ids mismatch (-want +got):\n%s", diff)
		}
		if !cfg.IsAdmin(2) || cfg.IsAdmin(4) {
			t.Error("IsAdmin disagrees with ADMIN_IDS")
		}
		if cfg.Subscription.Price.String() != "990.5" {
			t.Errorf("unexpected price %s", cfg.Subscription.Price)
		}
		if !cfg.Payments.Robokassa.TestMode {
			t.Error("expected robokassa test mode")
		}
		if cfg.Monitoring.QueueSize != 250 || cfg.Monitoring.Retention != 12*time.Hour {
			t.Errorf("file values not applied: %+v", cfg.Monitoring)
		}
		if cfg.Monitoring.DispatchShards != 4 {
			t.Errorf("defaults not kept for unset keys: %+v", cfg.Monitoring)
		}
		if cfg.Schedule.PaymentPollInterval != 30*time.Second || cfg.Schedule.SweepInterval != time.Hour {
			t.Errorf("unexpected schedule %+v", cfg.Schedule)
		}
		if cfg.Notify.Burst != 10 {
			t.Errorf("unexpected notify rules %+v", cfg.Notify)
		}
	})

	t.Run("Missing Env Var", func(t *testing.T) {
		env := make(map[string]string)
		for k, v := range baseEnv {
			if k != "TELEGRAM_API_ID" {
				env[k] = v
			}
		}
		setEnv(env)

		_, err := Load()
		if err == nil {
			t.Error("expected error due to missing API ID, got nil")
		}
	})

	t.Run("Missing Config File", func(t *testing.T) {
		env := make(map[string]string)
		maps.Copy(env, baseEnv)
		env["ORDERSCOUT_CONFIG_FILE"] = "non_existent.yaml"
		setEnv(env)

		_, err := Load()
		if err == nil {
			t.Error("expected error due to missing config file, got nil")
		}
	})

	t.Run("Invalid Mode", func(t *testing.T) {
		env := make(map[string]string)
		maps.Copy(env, baseEnv)
		env["ORDERSCOUT_MODE"] = "cluster"
		setEnv(env)

		if _, err := Load(); err == nil {
			t.Error("expected error for unknown mode")
		}
	})

	t.Run("Unknown Payment Provider", func(t *testing.T) {
		env := make(map[string]string)
		maps.Copy(env, baseEnv)
		env["PAYMENT_PROVIDER"] = "paypal"
		setEnv(env)

		if _, err := Load(); err == nil {
			t.Error("expected error for unknown payment provider")
		}
	})
}
