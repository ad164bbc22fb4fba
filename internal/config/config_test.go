// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CORS_ORIGIN", "TEMP_DIR", "KV_BACKEND", "KV_REGION",
		"LM_API_KEY", "LM_MODEL_NAME", "IDLE_TIMEOUT_SEC", "SUMMARY_INTERVAL_SEC",
		"DISCONNECT_GRACE_SEC",
	} {
		t.Setenv(key, "")
	}

	cfg := NewLoader().Load()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, time.Duration(DefaultIdleTimeoutSec)*time.Second, cfg.IdleTimeout)
	assert.Equal(t, time.Duration(DefaultSummaryInterval)*time.Second, cfg.SummaryInterval)
	assert.Equal(t, time.Duration(DefaultDisconnectGrace)*time.Second, cfg.DisconnectGrace)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IDLE_TIMEOUT_SEC", "60")
	t.Setenv("SUMMARY_INTERVAL_SEC", "15")
	t.Setenv("DISCONNECT_GRACE_SEC", "120")
	t.Setenv("CORS_ORIGIN", "https://example.test")
	t.Setenv("LM_API_KEY", "sk-test")

	cfg := NewLoader().Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 15*time.Second, cfg.SummaryInterval)
	assert.Equal(t, 120*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, "https://example.test", cfg.CORSOrigin)
	assert.Equal(t, "sk-test", cfg.LMAPIKey)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg := NewLoader().Load()
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("garbage", time.Minute))
}
