// Package cliconfig loads and validates the veilcap CLI configuration
// from defaults, a TOML file, environment variables, and flags, in
// ascending precedence.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/veilcap/veilcap/internal/domain"
)

// Config holds CLI configuration for veilcap.
type Config struct {
	OutputDir string
	BaseName  string

	FrameRate int
	Duration  time.Duration

	VideoBitrateKbps int
	KeyframeInterval int

	Audio            bool
	AudioMode        string
	AudioBitrateKbps int
	SampleRate       int

	MaskApps []string
	MaskFile string

	MaxRestarts  int
	RestartPause time.Duration
	DrainTimeout time.Duration

	FFmpegPath  string
	NativeAudio bool

	// RecoverableCodes maps a stream-error domain to the numeric codes
	// classified as transient. Backend specific, so it ships as
	// configuration rather than hardcoded branches.
	RecoverableCodes map[string][]int

	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaseName:         "capture",
		FrameRate:        30,
		VideoBitrateKbps: 4000,
		// One keyframe per ~20 minutes at 30 fps: long low-rate
		// captures trade seek granularity for file size.
		KeyframeInterval: 36000,
		Audio:            true,
		AudioMode:        "dual",
		AudioBitrateKbps: 64,
		SampleRate:       48000,
		MaxRestarts:      3,
		RestartPause:     500 * time.Millisecond,
		DrainTimeout:     5 * time.Second,
		FFmpegPath:       "ffmpeg",
		RecoverableCodes: DefaultRecoverableCodes(),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output-dir is required", domain.ErrInvalidConfig)
	}
	if c.BaseName == "" {
		c.BaseName = "capture"
	}
	if c.FrameRate < 1 || c.FrameRate > 240 {
		return fmt.Errorf("%w: frame-rate must be between 1 and 240", domain.ErrInvalidConfig)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidConfig)
	}
	if c.VideoBitrateKbps <= 0 {
		return fmt.Errorf("%w: video-bitrate must be positive", domain.ErrInvalidConfig)
	}
	if c.AudioMode != "dual" && c.AudioMode != "merged" {
		return fmt.Errorf("%w: audio-mode must be dual or merged", domain.ErrInvalidConfig)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("%w: max-restarts must not be negative", domain.ErrInvalidConfig)
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.RecoverableCodes == nil {
		c.RecoverableCodes = DefaultRecoverableCodes()
	}
	return nil
}

// ParsedAudioMode converts the configured mode string.
func (c *Config) ParsedAudioMode() domain.AudioMode {
	if c.AudioMode == "merged" {
		return domain.AudioModeMerged
	}
	return domain.AudioModeDual
}

// Classifier builds the recoverable-error predicate from the code table.
func (c *Config) Classifier() func(domain.StreamError) bool {
	codes := c.RecoverableCodes
	return func(e domain.StreamError) bool {
		for _, code := range codes[e.Domain] {
			if code == e.Code {
				return true
			}
		}
		return false
	}
}

// DefaultRecoverableCodes lists the capture backend's known transient
// stop codes: a restart is worth attempting for these, anything else
// aborts the session.
func DefaultRecoverableCodes() map[string][]int {
	return map[string][]int{
		// Backend stopped the stream for a transient reason: disk
		// pressure, pipeline stall.
		"capture": {2, 11},
	}
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.veilcap/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".veilcap", "config.toml")
	}
	return ""
}

// FileExists reports whether the given path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Logger builds the CLI's console logger.
func Logger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setBool sets a bool value if provided and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration if provided and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setStrings sets a string-slice value if non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}
