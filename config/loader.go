package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the GPIBLAN_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only set and
// well-formed variables override the existing value.  Call it before
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GPIBLAN_HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("GPIBLAN_PORT"); ok && v > 0 {
		cfg.Port = v
	}
	if v, ok := envInt("GPIBLAN_ADDR"); ok {
		cfg.Address = v
	}
	if v, ok := envInt("GPIBLAN_TIMEOUT_MS"); ok && v > 0 {
		cfg.Timeout = millis(v)
		cfg.TimeoutSet = true
	}
	if v, ok := envInt("GPIBLAN_CONNECT_TIMEOUT_MS"); ok && v > 0 {
		cfg.ConnectTimeout = millis(v)
	}
	if v, ok := envInt("GPIBLAN_BUFFER"); ok && v > 0 {
		cfg.BufferSize = v
		cfg.BufferSizeSet = true
	}
	if v, ok := envInt("GPIBLAN_RETRIES"); ok && v >= 0 {
		cfg.Retries = v
	}
	if envBool("GPIBLAN_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := os.Getenv("GPIBLAN_BENCH"); v != "" {
		cfg.BenchPath = v
	}

	// SSH gateway
	if v := os.Getenv("GPIBLAN_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("GPIBLAN_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("GPIBLAN_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("GPIBLAN_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("GPIBLAN_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("GPIBLAN_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v, ok := envInt("GPIBLAN_VERBOSE"); ok && v >= 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
