package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/glasscast/glasscast/internal/config"
)

func getLogFilePath() (string, error) {
	if f := viper.GetString("log.file"); f != "" {
		return f, nil
	}
	dir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog points the default logger at a rotating log file. Log output
// never goes to the terminal so it cannot interleave with command output or
// the monitor.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}

	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		MaxAge:     viper.GetInt("log.max_age_days"),
	}
	log.SetOutput(w)
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	return w.Close, nil
}

// applyLogLevel sets the level from the configuration; --debug wins.
func applyLogLevel(level string) {
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
}
