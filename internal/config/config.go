// Package config provides the configuration schema and loader for the
// recite follower service.
package config

import (
	"log/slog"

	"github.com/mushafapp/recite/internal/align"
)

// LogLevel controls log verbosity for the recite server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog.Level. Unknown or empty levels map
// to slog.LevelInfo.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for recite.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderEntry    `yaml:"provider"`
	Aligner    AlignerConfig    `yaml:"aligner"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics endpoint listens on
	// (e.g., ":9090"). Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry selects and configures the speech recognition provider.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "deepgram", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for cloud providers.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// ModelPath is the local model file path for the whisper provider.
	ModelPath string `yaml:"model_path"`

	// Locale is the BCP-47 recognition language (e.g., "ar").
	Locale string `yaml:"locale"`

	// SampleRate is the PCM sample rate in Hz delivered to the provider.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the PCM channel count. Zero means mono.
	Channels int `yaml:"channels"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AlignerConfig exposes the aligner's tuning parameters. Zero values select
// the built-in defaults; see [align.DefaultConfig].
type AlignerConfig struct {
	RecentWords         int `yaml:"recent_words"`
	JumpWindow          int `yaml:"jump_window"`
	JumpMinTail         int `yaml:"jump_min_tail"`
	JumpAttempts        int `yaml:"jump_attempts"`
	SeqCandidates       int `yaml:"seq_candidates"`
	SeqLookaheadCap     int `yaml:"seq_lookahead_cap"`
	NearWindow          int `yaml:"near_window"`
	FarWindow           int `yaml:"far_window"`
	BackWindow          int `yaml:"back_window"`
	MinTail             int `yaml:"min_tail"`
	StrongMinTail       int `yaml:"strong_min_tail"`
	StallThreshold      int `yaml:"stall_threshold"`
	ShortTailMinWordLen int `yaml:"short_tail_min_word_len"`
	ShortTailMinTotal   int `yaml:"short_tail_min_total"`
}

// ToAlign converts the YAML block to an [align.Config].
func (c AlignerConfig) ToAlign() align.Config {
	return align.Config{
		RecentWords:         c.RecentWords,
		JumpWindow:          c.JumpWindow,
		JumpMinTail:         c.JumpMinTail,
		JumpAttempts:        c.JumpAttempts,
		SeqCandidates:       c.SeqCandidates,
		SeqLookaheadCap:     c.SeqLookaheadCap,
		NearWindow:          c.NearWindow,
		FarWindow:           c.FarWindow,
		BackWindow:          c.BackWindow,
		MinTail:             c.MinTail,
		StrongMinTail:       c.StrongMinTail,
		StallThreshold:      c.StallThreshold,
		ShortTailMinWordLen: c.ShortTailMinWordLen,
		ShortTailMinTotal:   c.ShortTailMinTotal,
	}
}

// TrackerConfig holds session supervision settings. Zero values select the
// tracker's built-in defaults.
type TrackerConfig struct {
	// WindowCapacity bounds the transcript word window.
	WindowCapacity int `yaml:"window_capacity"`

	// SpeakingThreshold is the normalised audio level [0, 1] above which
	// the reader is considered to be speaking.
	SpeakingThreshold float64 `yaml:"speaking_threshold"`

	// LevelHistory is how many recent level samples are averaged for
	// speech detection.
	LevelHistory int `yaml:"level_history"`

	// RetryBaseDelayMs is the per-attempt backoff increment after a
	// provider error, in milliseconds.
	RetryBaseDelayMs int `yaml:"retry_base_delay_ms"`

	// RetryMaxDelayMs caps the backoff delay, in milliseconds.
	RetryMaxDelayMs int `yaml:"retry_max_delay_ms"`

	// FormatRetryDelayMs is the fixed short delay after an audio format
	// error, in milliseconds.
	FormatRetryDelayMs int `yaml:"format_retry_delay_ms"`

	// DeviceSettleDelayMs is the longer delay after an input device
	// change, in milliseconds.
	DeviceSettleDelayMs int `yaml:"device_settle_delay_ms"`

	// MaxRetries is how many consecutive restart attempts are made before
	// the tracker gives up.
	MaxRetries int `yaml:"max_retries"`
}

// NormalizerConfig overrides the built-in Arabic letter fold table.
type NormalizerConfig struct {
	// Folds maps a single source letter to its folded replacement. An
	// empty replacement drops the letter entirely. Entries are merged over
	// the built-in table.
	Folds map[string]string `yaml:"folds"`
}
