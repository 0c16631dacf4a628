package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nagyistoce/jupyter-client/internal/kernelsim"
	"github.com/nagyistoce/jupyter-client/internal/logging"
)

var (
	simHost string
	simPort int
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the kernel simulator",
	RunE:  runSim,
}

func init() {
	simCmd.Flags().StringVar(&simHost, "host", "", "Listen host (overrides config)")
	simCmd.Flags().IntVarP(&simPort, "port", "p", 0, "Listen port (overrides config)")
}

func runSim(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Sim.Host = simHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Sim.Port = simPort
	}

	logger, closer := logging.Setup(cfg.Log)
	defer closer.Close()

	opts, err := kernelsim.OptionsFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "kernel simulator on ws://%s (%s)\n", cfg.SimAddr(), cfg.Kernel.Codec)
	return kernelsim.New(opts).ListenAndServe(ctx, cfg.SimAddr())
}
