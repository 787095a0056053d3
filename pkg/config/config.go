/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the tunables read by the rebalance controller at
// startup. Values come from, in increasing order of precedence: built-in
// defaults, an optional TOML settings file, and environment variables.
// None of these tunables is read from a command-line flag.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/awslabs/operatorpkg/env"
	"github.com/pelletier/go-toml/v2"
)

// Config is the full set of tunables for a running controller process.
type Config struct {
	// PollingInterval is how often an active KafkaRebalance with an in-flight
	// optimization-service task is polled for status.
	PollingInterval time.Duration
	// MaxAPIRetries bounds the number of consecutive optimization-service
	// call failures tolerated before a resource is moved to NotReady.
	MaxAPIRetries int
	// LockTimeout bounds how long a reconciliation waits to acquire the
	// per-resource lock before the triggering event is dropped.
	LockTimeout time.Duration
	// CruiseControlBaseURL is the base URL of the optimization service.
	CruiseControlBaseURL string
	// CruiseControlRequestTimeout bounds a single HTTP call to the
	// optimization service.
	CruiseControlRequestTimeout time.Duration
	// ClusterSelectorLabel is the label key used to bind a KafkaRebalance to
	// the Kafka cluster it targets.
	ClusterSelectorLabel string
}

// fileSettings is the shape of the optional on-disk TOML settings file. Every
// field is a pointer so an absent key in the file does not override an
// environment variable or default that was already set.
type fileSettings struct {
	PollingIntervalMs           *int64  `toml:"pollingIntervalMs"`
	MaxAPIRetries               *int    `toml:"maxApiRetries"`
	LockTimeoutMs               *int64  `toml:"lockTimeoutMs"`
	CruiseControlBaseURL        *string `toml:"cruiseControlBaseUrl"`
	CruiseControlRequestTimeout *int64  `toml:"cruiseControlRequestTimeoutMs"`
	ClusterSelectorLabel        *string `toml:"clusterSelectorLabel"`
}

// Defaults returns the built-in tunables before any file, env, or flag
// override is applied.
func Defaults() Config {
	return Config{
		PollingInterval:             5 * time.Second,
		MaxAPIRetries:               5,
		LockTimeout:                 5 * time.Second,
		CruiseControlBaseURL:        "",
		CruiseControlRequestTimeout: 10 * time.Second,
		ClusterSelectorLabel:        "strimzi.io/cluster",
	}
}

// Load builds a Config from defaults, an optional TOML file at path (skipped
// entirely if path is empty or the file does not exist), and environment
// variables, in that order of increasing precedence. Load does not read
// command-line flags.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.PollingInterval = time.Duration(env.WithDefaultInt64("REBALANCE_POLLING_TIMER_MS", cfg.PollingInterval.Milliseconds())) * time.Millisecond
	cfg.MaxAPIRetries = env.WithDefaultInt("MAX_API_RETRIES", cfg.MaxAPIRetries)
	cfg.LockTimeout = time.Duration(env.WithDefaultInt64("LOCK_TIMEOUT_MS", cfg.LockTimeout.Milliseconds())) * time.Millisecond
	cfg.CruiseControlBaseURL = env.WithDefaultString("CRUISE_CONTROL_BASE_URL", cfg.CruiseControlBaseURL)
	cfg.CruiseControlRequestTimeout = time.Duration(env.WithDefaultInt64("CRUISE_CONTROL_REQUEST_TIMEOUT_MS", cfg.CruiseControlRequestTimeout.Milliseconds())) * time.Millisecond
	cfg.ClusterSelectorLabel = env.WithDefaultString("CLUSTER_SELECTOR_LABEL", cfg.ClusterSelectorLabel)

	return cfg, cfg.Validate()
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading settings file %s: %w", path, err)
	}
	var fs fileSettings
	if err := toml.Unmarshal(raw, &fs); err != nil {
		return fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	if fs.PollingIntervalMs != nil {
		cfg.PollingInterval = time.Duration(*fs.PollingIntervalMs) * time.Millisecond
	}
	if fs.MaxAPIRetries != nil {
		cfg.MaxAPIRetries = *fs.MaxAPIRetries
	}
	if fs.LockTimeoutMs != nil {
		cfg.LockTimeout = time.Duration(*fs.LockTimeoutMs) * time.Millisecond
	}
	if fs.CruiseControlBaseURL != nil {
		cfg.CruiseControlBaseURL = *fs.CruiseControlBaseURL
	}
	if fs.CruiseControlRequestTimeout != nil {
		cfg.CruiseControlRequestTimeout = time.Duration(*fs.CruiseControlRequestTimeout) * time.Millisecond
	}
	if fs.ClusterSelectorLabel != nil {
		cfg.ClusterSelectorLabel = *fs.ClusterSelectorLabel
	}
	return nil
}

// Validate rejects a Config that cannot be operated on safely.
func (c Config) Validate() error {
	if c.CruiseControlBaseURL == "" {
		return fmt.Errorf("CRUISE_CONTROL_BASE_URL must be set")
	}
	if c.MaxAPIRetries < 1 {
		return fmt.Errorf("MAX_API_RETRIES must be at least 1, got %d", c.MaxAPIRetries)
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("REBALANCE_POLLING_TIMER_MS must be positive, got %s", c.PollingInterval)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT_MS must be positive, got %s", c.LockTimeout)
	}
	if c.ClusterSelectorLabel == "" {
		return fmt.Errorf("CLUSTER_SELECTOR_LABEL must be set")
	}
	return nil
}
