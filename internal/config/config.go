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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Select how chats are watched
type Mode string

const (
	// Each subscriber's own account watches their chats
	ModeUser Mode = "user"
	// Operator worker accounts watch chats on behalf of subscribers
	ModeShared Mode = "shared"
)

// Hold application configuration
type Config struct {
	AppID          int
	AppHash        string
	BotToken       string // Telegram Bot API Token
	AdminIDs       []int64
	AdminToken     string // Bearer token for the operator HTTP API
	DatabaseDSN    string
	StateFile      string // bbolt file with update states
	Mode           Mode
	HTTPAddr       string
	LogLevel       string
	ResponseText   string // Default reply sent by the respond button
	ConfigFilePath string

	Subscription SubscriptionRules
	Payments     PaymentSettings

	Monitoring MonitoringRules `yaml:"monitoring"`
	Schedule   ScheduleRules   `yaml:"schedule"`
	Notify     NotifyRules     `yaml:"notify"`
}

// Tune the message pipeline
type MonitoringRules struct {
	QueueSize         int           `yaml:"queue_size"`
	DispatchShards    int           `yaml:"dispatch_shards"`
	NotifyConcurrency int           `yaml:"notify_concurrency"`
	Retention         time.Duration `yaml:"retention"`
	FuzzyThreshold    float64       `yaml:"fuzzy_threshold"`
}

// Tune periodic sweeps
type ScheduleRules struct {
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	PaymentPollInterval time.Duration `yaml:"payment_poll_interval"`
	ReminderDays        int           `yaml:"reminder_days"`
}

// Tune outbound bot messages
type NotifyRules struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type SubscriptionRules struct {
	Price decimal.Decimal
	Days  int
}

type PaymentSettings struct {
	Provider  string
	ReturnURL string
	Robokassa RobokassaSettings
	Tinkoff   TinkoffSettings
	YooKassa  YooKassaSettings
}

type RobokassaSettings struct {
	Login     string
	Password1 string
	Password2 string
	TestMode  bool
}

type TinkoffSettings struct {
	TerminalKey string
	SecretKey   string
}

type YooKassaSettings struct {
	ShopID    string
	SecretKey string
}

// Build a Config with every optional value at its default
func Default() *Config {
	return &Config{
		DatabaseDSN:  "orderscout.db",
		StateFile:    "updates.bolt",
		Mode:         ModeUser,
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		ResponseText: "Я",
		Subscription: SubscriptionRules{
			Price: decimal.NewFromInt(1000),
			Days:  30,
		},
		Monitoring: MonitoringRules{
			QueueSize:         100,
			DispatchShards:    4,
			NotifyConcurrency: 5,
			Retention:         24 * time.Hour,
			FuzzyThreshold:    0.4,
		},
		Schedule: ScheduleRules{
			SweepInterval:       time.Hour,
			PaymentPollInterval: 15 * time.Second,
			ReminderDays:        3,
		},
		Notify: NotifyRules{
			RatePerSecond: 25,
			Burst:         5,
		},
	}
}

// Load configuration from environment and the optional YAML file
func Load() (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath != "" {
		if err := cfg.loadFile(cfg.ConfigFilePath); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Populate Config struct from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	appIDStr := os.Getenv("TELEGRAM_API_ID")
	if appIDStr == "" {
		return nil, fmt.Errorf("TELEGRAM_API_ID is required")
	}
	appID, err := strconv.Atoi(appIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}
	cfg.AppID = appID

	cfg.AppHash = os.Getenv("TELEGRAM_API_HASH")
	if cfg.AppHash == "" {
		return nil, fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required for notifications")
	}

	if cfg.AdminIDs, err = parseIDs(os.Getenv("ADMIN_IDS")); err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	setString(&cfg.AdminToken, "ADMIN_TOKEN")
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.StateFile, "STATE_FILE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.ResponseText, "RESPONSE_TEXT")
	setString(&cfg.ConfigFilePath, "ORDERSCOUT_CONFIG_FILE")
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("ORDERSCOUT_MODE"); v != "" {
		cfg.Mode = Mode(strings.ToLower(v))
	}

	if v := os.Getenv("SUBSCRIPTION_PRICE"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SUBSCRIPTION_PRICE: %w", err)
		}
		cfg.Subscription.Price = price
	}
	if v := os.Getenv("SUBSCRIPTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SUBSCRIPTION_DAYS: %w", err)
		}
		cfg.Subscription.Days = days
	}

	// Payment gateways
	p := &cfg.Payments
	p.Provider = strings.ToLower(os.Getenv("PAYMENT_PROVIDER"))
	p.ReturnURL = os.Getenv("PAYMENT_RETURN_URL")
	p.Robokassa = RobokassaSettings{
		Login:     os.Getenv("ROBOKASSA_LOGIN"),
		Password1: os.Getenv("ROBOKASSA_PASSWORD1"),
		Password2: os.Getenv("ROBOKASSA_PASSWORD2"),
		TestMode:  parseBool(os.Getenv("ROBOKASSA_TEST_MODE")),
	}
	p.Tinkoff = TinkoffSettings{
		TerminalKey: os.Getenv("TINKOFF_TERMINAL_KEY"),
		SecretKey:   os.Getenv("TINKOFF_SECRET_KEY"),
	}
	p.YooKassa = YooKassaSettings{
		ShopID:    os.Getenv("YOOKASSA_SHOP_ID"),
		SecretKey: os.Getenv("YOOKASSA_SECRET_KEY"),
	}

	return cfg, nil
}

// IsAdmin reports whether the Telegram account is an operator
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// Merge tuning values from a YAML file over the defaults
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file struct {
		Monitoring *MonitoringRules `yaml:"monitoring"`
		Schedule   *ScheduleRules   `yaml:"schedule"`
		Notify     *NotifyRules     `yaml:"notify"`
	}
	file.Monitoring = &c.Monitoring
	file.Schedule = &c.Schedule
	file.Notify = &c.Notify

	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeUser, ModeShared:
	default:
		return fmt.Errorf("invalid ORDERSCOUT_MODE %q (must be %q or %q)", c.Mode, ModeUser, ModeShared)
	}

	switch c.Payments.Provider {
	case "", "robokassa", "tinkoff", "yookassa":
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.Payments.Provider)
	}

	if c.Monitoring.QueueSize <= 0 {
		return fmt.Errorf("monitoring.queue_size must be positive")
	}
	if c.Monitoring.DispatchShards <= 0 {
		return fmt.Errorf("monitoring.dispatch_shards must be positive")
	}
	if c.Monitoring.NotifyConcurrency <= 0 {
		return fmt.Errorf("monitoring.notify_concurrency must be positive")
	}
	if c.Monitoring.Retention <= 0 {
		return fmt.Errorf("monitoring.retention must be positive")
	}
	if c.Schedule.SweepInterval <= 0 || c.Schedule.PaymentPollInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	if c.Subscription.Days <= 0 {
		return fmt.Errorf("SUBSCRIPTION_DAYS must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func parseIDs(v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
