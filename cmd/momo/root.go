package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sptcnl/momo/internal/config"
	"github.com/sptcnl/momo/internal/log"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "momo",
		Short: "Companion robot dog",
		Long: `momo is a small companion robot: it watches for faces, wags its tail,
follows the person in front of it and holds short spoken conversations.

Configuration is read from momo.yaml (see --config) with MOMO_* environment
overrides. A .env file in the working directory is loaded first.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.DefaultPath, "Config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before the config")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config")

	root.AddCommand(
		newRunCmd(g),
		newServeAICmd(g),
		newTailCmd(g),
		newDriveCmd(g),
		newRangeCmd(g),
		newDetectCmd(g),
		newSayCmd(g),
		newListenCmd(g),
		newAskCmd(g),
	)
	return root
}

// load reads the env file and the config, then initializes logging.
func (g *globals) load() (config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", g.envFile, err)
		}
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}

	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log.Init(level)
	return cfg, nil
}
