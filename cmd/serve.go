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

	"github.com/conneroisu/stitch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Preview the site with includes applied and live reload",
	Long: `Serve the site root with every HTML page rendered through the include
engine. Pages reload in the browser when watched files change, and a page
whose includes fail shows an error overlay.

Append ?raw=1 to a page URL to get the page as stored.

Examples:
  stitch serve                     # Serve the current directory
  stitch serve --root site -p 3000 # Serve ./site on port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().String("root", ".", "Site root directory")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("site.root", serveCmd.Flags().Lookup("root"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if info, err := os.Stat(cfg.Site.Root); err != nil || !info.IsDir() {
		return fmt.Errorf("site root %s is not a directory", cfg.Site.Root)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info(context.Background(), "Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, err, "Error during server shutdown")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s:%d\n", cfg.Site.Root, cfg.Server.Host, cfg.Server.Port)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	return nil
}
