package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nagyistoce/jupyter-client/internal/config"
	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/transport"
)

const version = "0.1.0"

var (
	configPath string
	kernelURL  string
	codecName  string
	authToken  string
	logLevel   string
	logFile    string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "kernelconsole",
	Short: "Console and tools for talking to a kernel over its three channels",
	Long: "kernelconsole connects to a kernel's broadcast, request/reply and side-input\n" +
		"channels and delivers their traffic to a single consumer loop.",
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "kernelconsole.yaml", "Path to config file")
	pf.StringVar(&kernelURL, "url", "", "Kernel base URL (overrides config)")
	pf.StringVar(&codecName, "codec", "", "Wire codec: json or cbor (overrides config)")
	pf.StringVar(&authToken, "token", "", "Auth token (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	pf.StringVar(&logFile, "log-file", "", "Log file, or stderr/stdout/discard (overrides config)")

	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(simCmd)
}

// loadConfig reads the config file, applies flag overrides and validates the
// result. A missing file means defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Kernel.URL = kernelURL
	}
	if flags.Changed("codec") {
		cfg.Kernel.Codec = codecName
	}
	if flags.Changed("token") {
		cfg.Kernel.Token = authToken
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newSession wires a websocket connector from cfg into a session.
func newSession(cfg *config.Config, logger *slog.Logger, sink kernel.Sink, process func()) (*kernel.Session, error) {
	topts, err := transport.OptionsFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	connector := transport.NewConnector(cfg.Kernel.URL, cfg.Endpoints(), topts)
	return kernel.NewSession(kernel.Options{
		Connector:    connector,
		Sink:         sink,
		Process:      process,
		ReadlineTag:  cfg.Channels.ReadlineTag,
		ExtraReplies: cfg.Channels.ExtraReplies,
		Logger:       logger,
	})
}
