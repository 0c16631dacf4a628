package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nagyistoce/jupyter-client/internal/app"
	"github.com/nagyistoce/jupyter-client/internal/kernel"
	"github.com/nagyistoce/jupyter-client/internal/logging"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for a running kernel",
	RunE:  runConsole,
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The terminal belongs to the UI.
	switch strings.ToLower(cfg.Log.File) {
	case "", "stderr", "stdout":
		cfg.Log.File = filepath.Join(os.TempDir(), "kernelconsole.log")
	}
	logger, closer := logging.Setup(cfg.Log)
	defer closer.Close()

	q := kernel.NewQueue()
	var pump *app.Pump
	sess, err := newSession(cfg, logger, q, func() { pump.Sync() })
	if err != nil {
		return err
	}

	p := tea.NewProgram(app.New(sess, cfg.Kernel.URL), tea.WithAltScreen())
	pump = app.NewPump(q, p.Send)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	_, runErr := p.Run()
	cancel()
	if sess.State() == kernel.Running {
		if err := sess.StopChannels(); err != nil {
			logger.Warn("stop channels", "err", err)
		}
	}
	return runErr
}
