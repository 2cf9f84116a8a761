// Package config holds the glasscast configuration and its defaults.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/glasscast/glasscast/internal/audio"
	"github.com/glasscast/glasscast/internal/cache"
	"github.com/glasscast/glasscast/internal/speech"
)

// Engines lists the supported synthesis engines.
var Engines = []string{"piper", "gtts", "fake"}

// Config contains all glasscast configuration options.
type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Speech    SpeechConfig    `mapstructure:"speech" yaml:"speech"`
	Piper     PiperConfig     `mapstructure:"piper" yaml:"piper"`
	GTTS      GTTSConfig      `mapstructure:"gtts" yaml:"gtts"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Status    StatusConfig    `mapstructure:"status" yaml:"status"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// AudioConfig selects the device backends.
type AudioConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Mock    bool   `mapstructure:"mock" yaml:"mock" env:"GLASSCAST_MOCK_AUDIO"`
}

// CaptureConfig contains microphone settings.
type CaptureConfig struct {
	SampleRate      int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Stereo          bool          `mapstructure:"stereo" yaml:"stereo"`
	EchoCanceler    bool          `mapstructure:"echo_canceler" yaml:"echo_canceler"`
	NoiseSuppressor bool          `mapstructure:"noise_suppressor" yaml:"noise_suppressor"`
	Muted           bool          `mapstructure:"muted" yaml:"muted"`
	MeterInterval   time.Duration `mapstructure:"meter_interval" yaml:"meter_interval"`
}

// SpeechConfig contains speech pipeline settings.
type SpeechConfig struct {
	Engine          string        `mapstructure:"engine" yaml:"engine" env:"GLASSCAST_ENGINE"`
	Voice           string        `mapstructure:"voice" yaml:"voice"`
	Speed           float64       `mapstructure:"speed" yaml:"speed"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	Ordering        string        `mapstructure:"ordering" yaml:"ordering"`
	ChunkDuration   time.Duration `mapstructure:"chunk_duration" yaml:"chunk_duration"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" yaml:"generate_timeout"`
}

// PiperConfig contains Piper engine settings.
type PiperConfig struct {
	Binary  string        `mapstructure:"binary" yaml:"binary"`
	Model   string        `mapstructure:"model" yaml:"model" env:"GLASSCAST_PIPER_MODEL"`
	Config  string        `mapstructure:"config" yaml:"config"`
	Speaker string        `mapstructure:"speaker" yaml:"speaker"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GTTSConfig contains gTTS engine settings.
type GTTSConfig struct {
	Binary            string        `mapstructure:"binary" yaml:"binary"`
	Language          string        `mapstructure:"language" yaml:"language"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CacheConfig contains synthesis cache settings. Sizes are human readable
// ("64MiB", "1GB").
type CacheConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir              string        `mapstructure:"dir" yaml:"dir"`
	MemorySize       string        `mapstructure:"memory_size" yaml:"memory_size"`
	DiskSize         string        `mapstructure:"disk_size" yaml:"disk_size"`
	CompressionLevel int           `mapstructure:"compression_level" yaml:"compression_level"`
	TTL              time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// StatusConfig contains status announcement settings.
type StatusConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	BatteryRoot string        `mapstructure:"battery_root" yaml:"battery_root"`
}

// LogConfig contains log file settings.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" env:"GLASSCAST_LOG_LEVEL"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// TelemetryConfig contains metrics export settings.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr" env:"GLASSCAST_METRICS_ADDR"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	c := cache.DefaultConfig()
	return Config{
		Audio: AudioConfig{
			Backend: "auto",
		},
		Capture: CaptureConfig{
			SampleRate:    16000,
			MeterInterval: 250 * time.Millisecond,
		},
		Speech: SpeechConfig{
			Engine:          "piper",
			Speed:           1.0,
			Workers:         2,
			Ordering:        speech.OrderSubmission.String(),
			ChunkDuration:   20 * time.Millisecond,
			GenerateTimeout: 45 * time.Second,
		},
		Piper: PiperConfig{
			Timeout: 30 * time.Second,
		},
		GTTS: GTTSConfig{
			Binary:            "gtts-cli",
			Language:          "en",
			RequestsPerMinute: 50,
			Timeout:           30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemorySize:       "64MiB",
			DiskSize:         "512MiB",
			CompressionLevel: c.CompressionLevel,
			TTL:              c.TTL,
			CleanupInterval:  c.CleanupInterval,
		},
		Status: StatusConfig{
			Interval: 15 * time.Minute,
			Timeout:  2 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Environment: "local",
		},
	}
}

// Validate checks if the configuration is valid. Engine names are
// normalized to lower case.
func (c *Config) Validate() error {
	if _, err := audio.ParseBackendType(c.Audio.Backend); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	switch c.Speech.Engine {
	case "piper":
		if c.Piper.Timeout < time.Second {
			return fmt.Errorf("piper config: timeout must be at least 1 second, got %v", c.Piper.Timeout)
		}
	case "gtts":
		if err := c.GTTS.Validate(); err != nil {
			return fmt.Errorf("gtts config: %w", err)
		}
	}

	if c.Cache.Enabled {
		if _, err := c.Cache.ManagerConfig(); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}
	if c.Status.Interval < 0 {
		return fmt.Errorf("status config: interval must not be negative, got %v", c.Status.Interval)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

// Validate checks if the capture configuration is valid.
func (c *CaptureConfig) Validate() error {
	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	if !slices.Contains(validSampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRates)
	}
	if c.MeterInterval <= 0 {
		return fmt.Errorf("meter_interval must be positive, got %v", c.MeterInterval)
	}
	return nil
}

// Validate checks if the speech configuration is valid.
func (c *SpeechConfig) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if !slices.Contains(Engines, c.Engine) {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, Engines)
	}
	if c.Speed != 0 && (c.Speed < 0.5 || c.Speed > 2.0) {
		return fmt.Errorf("speed must be between 0.5 and 2.0, got %.2f", c.Speed)
	}
	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("workers must be between 1 and 16, got %d", c.Workers)
	}
	if _, ok := speech.ParseOrdering(c.Ordering); !ok {
		return fmt.Errorf("invalid ordering '%s': must be submission or completion", c.Ordering)
	}
	if c.GenerateTimeout < 0 {
		return fmt.Errorf("generate_timeout must not be negative, got %v", c.GenerateTimeout)
	}
	return nil
}

// PipelineConfig converts the section to a speech pipeline config.
func (c SpeechConfig) PipelineConfig() speech.Config {
	ordering, _ := speech.ParseOrdering(c.Ordering)
	return speech.Config{
		VoiceID:         c.Voice,
		Speed:           c.Speed,
		Workers:         c.Workers,
		ChunkDuration:   c.ChunkDuration,
		Ordering:        ordering,
		GenerateTimeout: c.GenerateTimeout,
	}
}

// Validate checks if the gTTS configuration is valid.
func (c *GTTSConfig) Validate() error {
	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// ManagerConfig converts the section to a cache manager config. Dir is used
// as the disk path as is; an empty Dir keeps the cache in memory only.
func (c CacheConfig) ManagerConfig() (cache.Config, error) {
	mem, err := humanize.ParseBytes(c.MemorySize)
	if err != nil {
		return cache.Config{}, fmt.Errorf("invalid memory_size %q: %w", c.MemorySize, err)
	}
	disk, err := humanize.ParseBytes(c.DiskSize)
	if err != nil {
		return cache.Config{}, fmt.Errorf("invalid disk_size %q: %w", c.DiskSize, err)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return cache.Config{}, fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	return cache.Config{
		MemoryCapacity:   int64(mem),
		DiskCapacity:     int64(disk),
		DiskPath:         c.Dir,
		CompressionLevel: c.CompressionLevel,
		TTL:              c.TTL,
		CleanupInterval:  c.CleanupInterval,
	}, nil
}
