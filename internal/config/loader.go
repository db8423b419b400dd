package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known speech provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"deepgram", "whisper", "mock"}

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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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

	// Provider
	if cfg.Provider.Name != "" && !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	switch cfg.Provider.Name {
	case "deepgram":
		if cfg.Provider.APIKey == "" {
			errs = append(errs, errors.New("provider.api_key is required when provider.name is deepgram"))
		}
	case "whisper":
		if cfg.Provider.ModelPath == "" {
			errs = append(errs, errors.New("provider.model_path is required when provider.name is whisper"))
		}
	}
	if cfg.Provider.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("provider.sample_rate %d must not be negative", cfg.Provider.SampleRate))
	}
	if cfg.Provider.Channels < 0 {
		errs = append(errs, fmt.Errorf("provider.channels %d must not be negative", cfg.Provider.Channels))
	}

	// Aligner window geometry
	a := cfg.Aligner
	if a.NearWindow > 0 && a.FarWindow > 0 && a.FarWindow <= a.NearWindow {
		errs = append(errs, fmt.Errorf("aligner.far_window %d must be greater than aligner.near_window %d", a.FarWindow, a.NearWindow))
	}
	if a.MinTail > 0 && a.StrongMinTail > 0 && a.StrongMinTail < a.MinTail {
		errs = append(errs, fmt.Errorf("aligner.strong_min_tail %d must not be below aligner.min_tail %d", a.StrongMinTail, a.MinTail))
	}
	if a.RecentWords > 0 && a.MinTail > a.RecentWords {
		errs = append(errs, fmt.Errorf("aligner.min_tail %d exceeds aligner.recent_words %d; windowed searches could never match", a.MinTail, a.RecentWords))
	}

	// Tracker
	t := cfg.Tracker
	if t.SpeakingThreshold < 0 || t.SpeakingThreshold > 1 {
		errs = append(errs, fmt.Errorf("tracker.speaking_threshold %.3f is out of range [0, 1]", t.SpeakingThreshold))
	}
	for name, v := range map[string]int{
		"tracker.window_capacity":        t.WindowCapacity,
		"tracker.level_history":          t.LevelHistory,
		"tracker.retry_base_delay_ms":    t.RetryBaseDelayMs,
		"tracker.retry_max_delay_ms":     t.RetryMaxDelayMs,
		"tracker.format_retry_delay_ms":  t.FormatRetryDelayMs,
		"tracker.device_settle_delay_ms": t.DeviceSettleDelayMs,
		"tracker.max_retries":            t.MaxRetries,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", name, v))
		}
	}

	// Normalizer fold overrides must be single letters on the source side
	// and at most one letter on the replacement side.
	for src, dst := range cfg.Normalizer.Folds {
		if utf8.RuneCountInString(src) != 1 {
			errs = append(errs, fmt.Errorf("normalizer.folds key %q must be a single letter", src))
		}
		if utf8.RuneCountInString(dst) > 1 {
			errs = append(errs, fmt.Errorf("normalizer.folds[%q] value %q must be empty or a single letter", src, dst))
		}
	}

	return errors.Join(errs...)
}
