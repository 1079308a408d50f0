// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"sentinel.yaml",
	"sentinel.yml",
	"/etc/sentinel/config.yaml",
	"/etc/sentinel/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SENTINEL_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping
// them onto config paths.
const envPrefix = "SENTINEL_"

// sections are the top-level config keys used to split environment
// variable names: SENTINEL_SERVER_PORT -> server.port.
var sections = []string{
	"server",
	"logging",
	"limiters",
	"monitor",
	"sink",
	"events",
	"geoip",
	"incidents",
	"authz",
	"nats",
	"websocket",
	"alerts",
}

// sliceConfigPaths are parsed from comma-separated strings when they
// arrive via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// Load reads configuration with layered sources: struct defaults,
// then an optional YAML file, then SENTINEL_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps SENTINEL_* variables onto config paths.
// SENTINEL_SERVER_PORT -> server.port,
// SENTINEL_LIMITERS_AUTH_MAX_ATTEMPTS -> limiters.auth.max_attempts.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	for _, section := range sections {
		if !strings.HasPrefix(key, section+"_") {
			continue
		}
		rest := strings.TrimPrefix(key, section+"_")

		// The limiters section nests one level deeper per limiter.
		if section == "limiters" {
			for _, limiter := range []string{"auth", "api", "admin"} {
				if strings.HasPrefix(rest, limiter+"_") {
					return section + "." + limiter + "." + strings.TrimPrefix(rest, limiter+"_")
				}
			}
		}
		return section + "." + rest
	}
	return key
}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
