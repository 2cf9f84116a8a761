// Package main provides the entry point for the glasscast CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glasscast/glasscast/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	forceMock  bool
	engineName string

	// cfg is loaded before any subcommand runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "glasscast",
		Short: "Capture audio and speak, in order",
		Long: paragraph(
			fmt.Sprintf("\nCapture from the microphone and %s, in a well-defined order.", keyword("speak text")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	// Read the config file named with --config, if one was given after init
	// already searched the default places.
	if configFile != "" && configFile != viper.ConfigFileUsed() && cmd.Name() != configCmd.Name() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if engineName != "" {
		loaded.Speech.Engine = strings.ToLower(engineName)
		if err := loaded.Speech.Validate(); err != nil {
			return err
		}
	}
	if forceMock {
		loaded.Audio.Mock = true
	}

	cacheDir, err := config.CacheDir()
	if err != nil {
		return fmt.Errorf("unable to find cache directory: %w", err)
	}
	loaded.ResolveDirs(cacheDir)

	applyLogLevel(loaded.Log.Level)
	log.Debug("Configuration loaded",
		"file", viper.ConfigFileUsed(),
		"engine", loaded.Speech.Engine,
		"backend", loaded.Audio.Backend,
		"mock", loaded.Audio.Mock)

	cfg = loaded
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Println(err)
	}
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().BoolVar(&forceMock, "mock", false, "use mock audio devices")
	rootCmd.PersistentFlags().StringVarP(&engineName, "engine", "e", "", fmt.Sprintf("synthesis engine (%s)", strings.Join(config.Engines, ", ")))

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(speakCmd, statusCmd, captureCmd, runCmd, monitorCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	config.SetDefaults(viper.GetViper())

	dirs, err := config.Dirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not read default configuration", "err", err)
	}
}
