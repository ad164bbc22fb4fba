// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles environment-variable configuration loading for the
// session engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the server, sourced from the
// environment variables listed in the external interface (PORT, KV_BACKEND,
// KV_REGION, LM_API_KEY, LM_MODEL_NAME, CORS_ORIGIN, TEMP_DIR,
// IDLE_TIMEOUT_SEC, SUMMARY_INTERVAL_SEC, DISCONNECT_GRACE_SEC).
type Config struct {
	Port    int
	CORSOrigin string
	TempDir    string

	KVBackend string
	KVRegion  string

	LMAPIKey    string
	LMModelName string

	IdleTimeout      time.Duration
	SummaryInterval  time.Duration
	DisconnectGrace  time.Duration
}

// Default values per the external interface spec.
const (
	DefaultPort            = 8080
	DefaultIdleTimeoutSec  = 1800
	DefaultSummaryInterval = 30
	DefaultDisconnectGrace = 300
)

// Loader reads configuration from the process environment.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads Config from the environment, applying defaults for anything unset.
func (l *Loader) Load() *Config {
	cfg := &Config{
		Port:            envInt("PORT", DefaultPort),
		CORSOrigin:      os.Getenv("CORS_ORIGIN"),
		TempDir:         envDefault("TEMP_DIR", os.TempDir()),
		KVBackend:       os.Getenv("KV_BACKEND"),
		KVRegion:        os.Getenv("KV_REGION"),
		LMAPIKey:        os.Getenv("LM_API_KEY"),
		LMModelName:     os.Getenv("LM_MODEL_NAME"),
		IdleTimeout:     envSeconds("IDLE_TIMEOUT_SEC", DefaultIdleTimeoutSec),
		SummaryInterval: envSeconds("SUMMARY_INTERVAL_SEC", DefaultSummaryInterval),
		DisconnectGrace: envSeconds("DISCONNECT_GRACE_SEC", DefaultDisconnectGrace),
	}
	return cfg
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(key string, defSec int) time.Duration {
	return time.Duration(envInt(key, defSec)) * time.Second
}

// ParseDuration parses s as a Go duration, returning defaultVal on empty
// input or a parse error.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
