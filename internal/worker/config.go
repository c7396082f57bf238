// Package worker provides background job processing for PrepQuest.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds worker configuration, loaded from the environment.
type Config struct {
	// Port for the health endpoint (Cloud Run requires one).
	Port string `env:"APP_PORT, default=8080"`

	// PubSubProjectID and PubSubSubscription enable the Pub/Sub trigger.
	// When either is empty the worker falls back to local tickers.
	PubSubProjectID    string `env:"PUBSUB_PROJECT_ID"`
	PubSubSubscription string `env:"PUBSUB_SUBSCRIPTION"`

	// SweepInterval is the campaign sweep cadence for the local ticker.
	SweepInterval time.Duration `env:"CAMPAIGN_SWEEP_INTERVAL, default=5m"`

	// NotificationSlots are the local-time HH:MM slots at which the
	// contextual notification job runs.
	NotificationSlots []string `env:"NOTIFICATION_SLOTS, default=09:30,14:00,20:00"`

	// InactiveHours is the last-active threshold for contextual
	// notification candidates.
	InactiveHours int `env:"NOTIFY_INACTIVE_HOURS, default=24"`

	// RateGCInterval is how often expired limiter rows are purged.
	RateGCInterval time.Duration `env:"RATE_GC_INTERVAL, default=1h"`
}

// LoadConfig reads worker configuration from the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("loading worker config: %w", err)
	}
	if _, err := cfg.Slots(); err != nil {
		return nil, err
	}
	if cfg.InactiveHours <= 0 {
		return nil, fmt.Errorf("NOTIFY_INACTIVE_HOURS must be positive, got %d", cfg.InactiveHours)
	}
	return &cfg, nil
}

// PubSubEnabled reports whether the Pub/Sub trigger is configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

// Slots parses NotificationSlots into clock slots.
func (c *Config) Slots() ([]Slot, error) {
	slots := make([]Slot, 0, len(c.NotificationSlots))
	for _, raw := range c.NotificationSlots {
		s, err := ParseSlot(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, nil
}

// Slot is a daily wall-clock trigger time.
type Slot struct {
	Hour   int
	Minute int
}

// ParseSlot parses an "HH:MM" slot.
func ParseSlot(s string) (Slot, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Slot{}, fmt.Errorf("invalid slot hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Slot{}, fmt.Errorf("invalid slot minute in %q", s)
	}
	return Slot{Hour: hour, Minute: minute}, nil
}

// Next returns the next occurrence of the slot strictly after now, in
// now's location.
func (s Slot) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// String formats the slot as HH:MM.
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}
