package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"realtime":   {"openai"},
	"speech":     {"elevenlabs"},
	"classifier": {"openai", "anthropic", "mistral", "groq", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("realtime", cfg.Providers.Realtime.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)
	validateProviderName("classifier", cfg.Providers.Classifier.Name)

	// Availability warnings
	if cfg.Providers.Realtime.Name == "" {
		slog.Warn("providers.realtime is not configured; voice sessions cannot be established")
	}
	if cfg.Carrier.APIKey == "" {
		slog.Warn("carrier.api_key is empty; call control and SMS sends will fail")
	}
	if cfg.Server.PublicURL == "" {
		slog.Warn("server.public_url is empty; the carrier cannot reach the media WebSocket")
	}
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; transcripts, prompt stats, and campaigns will not persist")
	}
	if cfg.Redis.Addr == "" {
		slog.Warn("redis.addr is empty; opt-out checks and number warm-up caps are disabled")
	}

	// IVR
	if cfg.IVR.LoopThreshold < 0 || cfg.IVR.LoopThreshold > 1 {
		errs = append(errs, fmt.Errorf("ivr.loop_threshold %.2f is out of range [0, 1]", cfg.IVR.LoopThreshold))
	}
	if cfg.IVR.ConsecutiveClassifications < 0 {
		errs = append(errs, fmt.Errorf("ivr.consecutive_classifications %d must not be negative", cfg.IVR.ConsecutiveClassifications))
	}

	// Session
	if cfg.Session.ToolTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.tool_timeout_seconds %d must not be negative", cfg.Session.ToolTimeoutSeconds))
	}
	if cfg.Session.DTMFCooldownMs < 0 {
		errs = append(errs, fmt.Errorf("session.dtmf_cooldown_ms %d must not be negative", cfg.Session.DTMFCooldownMs))
	}

	// Campaign
	if cfg.Campaign.PollIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("campaign.poll_interval_seconds %d must not be negative", cfg.Campaign.PollIntervalSeconds))
	}
	for i, dailyCap := range cfg.Campaign.WarmupDailyCaps {
		if dailyCap <= 0 {
			errs = append(errs, fmt.Errorf("campaign.warmup_daily_caps[%d] must be positive, got %d", i, dailyCap))
		}
	}

	// Bandit
	if p := cfg.Bandit.WinnerProbability; p <= 0 || p > 1 {
		errs = append(errs, fmt.Errorf("bandit.winner_probability %.2f is out of range (0, 1]", p))
	}
	if p := cfg.Bandit.EliminationProbability; p <= 0 || p > 1 {
		errs = append(errs, fmt.Errorf("bandit.elimination_probability %.2f is out of range (0, 1]", p))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
