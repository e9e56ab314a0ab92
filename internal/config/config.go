// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads fleetctl's persistent settings: broker connection
// details, concurrency defaults, and the coordination-ring property name.
// It follows the same JSON-file-under-home-directory pattern fleetctl's
// predecessor tools use for their own preferences, with FLEETCTL_* env vars
// layered on top for per-invocation overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// Config is fleetctl's full set of persistent settings.
type Config struct {
	BrokerHost     string `json:"brokerHost"`
	BrokerPort     int    `json:"brokerPort"`
	BrokerLogin    string `json:"brokerLogin"`
	BrokerPassword string `json:"brokerPassword"`

	InventoryConcurrency int `json:"inventoryConcurrency"`
	FleetConcurrency     int `json:"fleetConcurrency"`
	AlarmConcurrency     int `json:"alarmConcurrency"`

	CoordinationProperty string `json:"coordinationProperty"`
}

const (
	DefaultInventoryConcurrency = 50
	DefaultFleetConcurrency     = 30
	DefaultAlarmConcurrency     = 20
	DefaultCoordinationProperty = "ZK_SERVERS"
	DefaultBrokerPort           = 5672
)

// Default returns the built-in configuration before any file or env
// overrides are applied.
func Default() Config {
	return Config{
		BrokerPort:            DefaultBrokerPort,
		InventoryConcurrency:  DefaultInventoryConcurrency,
		FleetConcurrency:      DefaultFleetConcurrency,
		AlarmConcurrency:      DefaultAlarmConcurrency,
		CoordinationProperty:  DefaultCoordinationProperty,
	}
}

func path() string {
	home, err := homedir.Dir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".fleetctl", "config.json")
}

// Load reads the on-disk config, if any, applies FLEETCTL_* environment
// overrides, and returns the result. A missing config file is not an
// error; Load returns Default with env overrides applied.
func Load() (Config, error) {
	cfg := Default()
	body, err := os.ReadFile(path())
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path(), err)
		}
	} else if err := json.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path(), err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Save writes cfg to the on-disk config file, creating its directory if
// needed.
func Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path()), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path(), body, 0o600)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLEETCTL_BROKER_HOST"); v != "" {
		cfg.BrokerHost = v
	}
	if v := os.Getenv("FLEETCTL_BROKER_LOGIN"); v != "" {
		cfg.BrokerLogin = v
	}
	if v := os.Getenv("FLEETCTL_BROKER_PASSWORD"); v != "" {
		cfg.BrokerPassword = v
	}
	if v := os.Getenv("FLEETCTL_COORDINATION_PROPERTY"); v != "" {
		cfg.CoordinationProperty = v
	}
}
