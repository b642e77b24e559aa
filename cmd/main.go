// inputlink - encrypted input event stream client and reference receiver
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inputlink/internal/config"
	"inputlink/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// globals shared by the subcommands
type globals struct {
	configPath string
	logLevel   string
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "inputlink",
		Short: "Stream encrypted keyboard, mouse and gamepad input to a host",
		Long: `inputlink sends input events to a streaming host over an encrypted,
length-framed TCP or WebSocket stream.

The send command replays a YAML event script through a session. The listen
command is a reference receiver that decrypts and logs what it gets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: per-user config.toml)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level from the config")

	rootCmd.AddCommand(
		sendCmd(g),
		listenCmd(g),
		configCmd(g),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// load reads the config file and builds the logger.
func (g *globals) load() (*config.Config, *zap.Logger, error) {
	mgr, err := config.NewManager(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.Load(); err != nil {
		return nil, nil, err
	}
	cfg := mgr.Get()

	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("config loaded", zap.String("path", mgr.Path()))
	return cfg, logger, nil
}
