package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/litterbox/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the preview server",
	Long: `Start the preview server and open the sandbox in a browser.

The sandbox is seeded with starter documents. With --mirror, a host directory
is imported into the sandbox and followed for changes.

Examples:
  litterbox serve                      # Serve a seeded sandbox on :8080
  litterbox serve -p 3000 --no-open    # Different port, no browser
  litterbox serve --mirror ./site      # Preview ./site/index.html and friends`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-open", false, "Don't open browser automatically")
	serveCmd.Flags().String("mirror", "", "Host directory to import and follow")
	serveCmd.Flags().Duration("quiet-period", 300*time.Millisecond, "Quiet period before a document change is applied")

	AddFlagValidation(serveCmd, "port", ValidatePort)
	AddFlagValidation(serveCmd, "mirror", ValidateDirExists)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.no-open", serveCmd.Flags().Lookup("no-open"))
	_ = viper.BindPFlag("sandbox.mirror_dir", serveCmd.Flags().Lookup("mirror"))
	_ = viper.BindPFlag("preview.quiet_period", serveCmd.Flags().Lookup("quiet-period"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting litterbox at http://%s\n", cfg.Address())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
