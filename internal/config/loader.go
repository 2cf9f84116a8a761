package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config file, the env prefix and the per-user
// directories.
const AppName = "glasscast"

// Dirs returns the directories searched for the config file, highest
// priority first.
func Dirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}

	if c := os.Getenv("GLASSCAST_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// CacheDir returns the per-user cache directory.
func CacheDir() (string, error) {
	return gap.NewScope(gap.User, AppName).CacheDir()
}

// SetDefaults sets default values in Viper for every option.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.mock", d.Audio.Mock)

	v.SetDefault("capture.sample_rate", d.Capture.SampleRate)
	v.SetDefault("capture.stereo", d.Capture.Stereo)
	v.SetDefault("capture.echo_canceler", d.Capture.EchoCanceler)
	v.SetDefault("capture.noise_suppressor", d.Capture.NoiseSuppressor)
	v.SetDefault("capture.muted", d.Capture.Muted)
	v.SetDefault("capture.meter_interval", d.Capture.MeterInterval.String())

	v.SetDefault("speech.engine", d.Speech.Engine)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.speed", d.Speech.Speed)
	v.SetDefault("speech.workers", d.Speech.Workers)
	v.SetDefault("speech.ordering", d.Speech.Ordering)
	v.SetDefault("speech.chunk_duration", d.Speech.ChunkDuration.String())
	v.SetDefault("speech.generate_timeout", d.Speech.GenerateTimeout.String())

	v.SetDefault("piper.binary", d.Piper.Binary)
	v.SetDefault("piper.model", d.Piper.Model)
	v.SetDefault("piper.config", d.Piper.Config)
	v.SetDefault("piper.speaker", d.Piper.Speaker)
	v.SetDefault("piper.timeout", d.Piper.Timeout.String())

	v.SetDefault("gtts.binary", d.GTTS.Binary)
	v.SetDefault("gtts.language", d.GTTS.Language)
	v.SetDefault("gtts.requests_per_minute", d.GTTS.RequestsPerMinute)
	v.SetDefault("gtts.timeout", d.GTTS.Timeout.String())

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_size", d.Cache.MemorySize)
	v.SetDefault("cache.disk_size", d.Cache.DiskSize)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval.String())

	v.SetDefault("status.interval", d.Status.Interval.String())
	v.SetDefault("status.timeout", d.Status.Timeout.String())
	v.SetDefault("status.battery_root", d.Status.BatteryRoot)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("telemetry.metrics_addr", d.Telemetry.MetricsAddr)
	v.SetDefault("telemetry.environment", d.Telemetry.Environment)
}

// Load decodes the settings held by v, applies the GLASSCAST_* environment
// overlay, expands home-relative paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse environment: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files. Missing files are
// skipped and variables that are already set are left alone.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("unable to load %s: %w", f, err)
		}
	}
	return nil
}

// ExpandPaths replaces a leading ~ in every path option.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{
		&c.Piper.Binary,
		&c.Piper.Model,
		&c.Piper.Config,
		&c.GTTS.Binary,
		&c.Cache.Dir,
		&c.Status.BatteryRoot,
		&c.Log.File,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// ResolveDirs places the disk cache and the log file under cacheDir unless
// they were configured.
func (c *Config) ResolveDirs(cacheDir string) {
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(cacheDir, "speech")
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(cacheDir, AppName+".log")
	}
}

// Watch reloads the configuration whenever the file used by v changes and
// hands each valid result to fn. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *log.Logger, fn func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "path", e.Name)
		fn(cfg)
	})
	v.WatchConfig()
}

var sectionComments = map[string]string{
	"audio":     "Audio devices. backend: auto, production or mock",
	"capture":   "Microphone capture",
	"speech":    "Speech pipeline. engine: piper, gtts or fake; ordering: submission or completion",
	"piper":     "Piper engine. Binary and model are searched for when empty",
	"gtts":      "gTTS engine (gtts-cli)",
	"cache":     "Synthesis cache. dir defaults to the user cache directory",
	"status":    "Status announcements. An interval of 0 disables periodic announcements",
	"log":       "Log file. file defaults to the user cache directory",
	"telemetry": "Prometheus metrics. Set metrics_addr (e.g. \":9464\") to serve /metrics",
}

// DefaultYAML renders Default as a commented YAML document.
func DefaultYAML() ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(Default()); err != nil {
		return nil, fmt.Errorf("unable to encode default configuration: %w", err)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		doc.Content[i].HeadComment = sectionComments[doc.Content[i].Value]
	}
	return yaml.Marshal(&doc)
}
