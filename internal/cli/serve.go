package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firstdate-app/firstdate/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
	serveCmd.Flags().String("listen", "", "host:port to bind (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine daemon",
	Long: `Start the HTTP API, the background sweeper, and (when configured)
the broker publisher and the payment webhook. Configuration is read from
~/.firstdate/config.toml with FIRSTDATE_* environment overrides; the flags
below override both.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load()
	if err != nil {
		return err
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("--listen %q: %w", listen, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("--listen %q: %w", listen, err)
		}
		cfg.API.Host, cfg.API.Port = host, port
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}
