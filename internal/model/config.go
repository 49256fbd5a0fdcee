// Package model defines configuration, wire payloads and status semantics
// shared by the shopfloor client.
package model

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Poller    PollerConfig    `yaml:"poller"`
	Render    RenderConfig    `yaml:"render"`
	Notify    NotifyConfig    `yaml:"notify"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Operator  OperatorConfig  `yaml:"operator"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type PollerConfig struct {
	IntervalSec     int    `yaml:"interval_sec"`
	RetryDelaySec   int    `yaml:"retry_delay_sec"`
	TouchCooldownMs int    `yaml:"touch_cooldown_ms"`
	FilterList      string `yaml:"filter_list,omitempty"`   // lista
	FilterStatus    string `yaml:"filter_status,omitempty"` // status
}

type RenderConfig struct {
	LockSec     int `yaml:"lock_sec"`
	GhostSyncMs int `yaml:"ghost_sync_ms"`
	TimerTickMs int `yaml:"timer_tick_ms"`
}

type NotifyConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval_sec"`
}

type DashboardConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Machines []string `yaml:"machines,omitempty"` // known machine order
}

// OperatorConfig identifies the operator using this session. Cards owned by a
// different operator get their restricted actions disabled.
type OperatorConfig struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration written by setup.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero-valued fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:5000"
	}
	if c.Server.TimeoutSec <= 0 {
		c.Server.TimeoutSec = 10
	}
	if c.Poller.IntervalSec <= 0 {
		c.Poller.IntervalSec = 10
	}
	if c.Poller.RetryDelaySec <= 0 {
		c.Poller.RetryDelaySec = 3
	}
	if c.Poller.TouchCooldownMs <= 0 {
		c.Poller.TouchCooldownMs = 1200
	}
	if c.Render.LockSec <= 0 {
		c.Render.LockSec = 20
	}
	if c.Render.GhostSyncMs <= 0 {
		c.Render.GhostSyncMs = 500
	}
	if c.Render.TimerTickMs <= 0 {
		c.Render.TimerTickMs = 1000
	}
	if c.Notify.IntervalSec <= 0 {
		c.Notify.IntervalSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}

func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

func (c PollerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

func (c PollerConfig) TouchCooldown() time.Duration {
	return time.Duration(c.TouchCooldownMs) * time.Millisecond
}

func (c RenderConfig) LockWindow() time.Duration {
	return time.Duration(c.LockSec) * time.Second
}

func (c RenderConfig) GhostSyncInterval() time.Duration {
	return time.Duration(c.GhostSyncMs) * time.Millisecond
}

func (c RenderConfig) TimerTick() time.Duration {
	return time.Duration(c.TimerTickMs) * time.Millisecond
}

func (c NotifyConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}
