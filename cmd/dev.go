package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/podev-dev/podev/internal/bundler"
	"github.com/podev-dev/podev/internal/config"
	"github.com/podev-dev/podev/internal/devserver"
	"github.com/podev-dev/podev/internal/importer"
	"github.com/podev-dev/podev/internal/logging"
	"github.com/podev-dev/podev/internal/registry"
	"github.com/podev-dev/podev/internal/render"
	"github.com/podev-dev/podev/internal/watch"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Start the development orchestrator",
	Long: `Start the dev server with an incremental client build context, dual
filesystem watchers and browser reload signaling.

Client-affecting changes (entry files, client/, lib/, src/) trigger an
incremental rebuild; an unrecoverable rebuild disposes and recreates the
build context. Server-affecting changes (server entries, server/, config,
schemas, locale) reload the local app module and restart the server on the
same port.`,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)

	devCmd.Flags().IntP("port", "p", 4000, "Port to serve on")
	devCmd.Flags().String("host", "localhost", "Host to bind to")
	devCmd.Flags().Var(newAppModeValue("development"), "mode", "App mode (development, production)")
	devCmd.Flags().Var(newRenderModeValue("hydrate"), "render-mode", "Render mode (ssr-only, csr-only, hydrate)")

	viper.BindPFlag("app.port", devCmd.Flags().Lookup("port"))
	viper.BindPFlag("app.host", devCmd.Flags().Lookup("host"))
	viper.BindPFlag("app.mode", devCmd.Flags().Lookup("mode"))
	viper.BindPFlag("dev.renderMode", devCmd.Flags().Lookup("render-mode"))
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(viper.GetString("log-level")),
		Format: "text",
		Output: os.Stderr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.NewElementRegistry(cfg.Development())

	imp := importer.New(
		cfg.App.Name,
		cfg.Development(),
		cfg.ServerDir(),
		reg,
		bundler.NewSSRBundler(cfg.Build.External, cfg.Build.Minify),
		importer.NewNodeLoader(),
		log,
	)

	mode, err := render.ParseMode(cfg.Dev.RenderMode)
	if err != nil {
		return err
	}
	hydrateSrc := fmt.Sprintf("http://localhost:%d/content.js", cfg.Dev.AssetPort)
	pipeline := render.NewPipeline(mode, render.NewNodeRenderer(), hydrateSrc, log)

	controller := devserver.NewController(cfg, reg, imp, pipeline, defaultStateFuncs(), log)

	manager := bundler.NewManager(
		cfg.App.Root,
		cfg.ClientDir(),
		bundler.NewEsbuildSession,
		func() bundler.ReloadServer {
			return bundler.NewReloadHub(cfg.Dev.AssetPort, cfg.ClientDir(), log)
		},
		log,
	)

	coordinator := watch.NewCoordinator(
		cfg.App.Root,
		manager,
		controller,
		devserver.NewLocalApp(cfg.App.Root),
		log,
	)

	// Production skips rebuild and watch entirely; the server alone runs.
	if cfg.Development() {
		if err := manager.Create(ctx); err != nil {
			return fmt.Errorf("creating build context: %w", err)
		}
		if err := coordinator.Start(ctx); err != nil {
			manager.Dispose()
			return fmt.Errorf("starting watchers: %w", err)
		}
		defer coordinator.Close()
	}
	defer manager.Dispose()

	// A failed initial bind will not self-heal: tear everything down and
	// exit non-zero.
	if err := controller.Start(ctx); err != nil {
		if cfg.Development() {
			coordinator.Close()
		}
		manager.Dispose()
		return fmt.Errorf("starting server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, "server shutdown")
	}
	return nil
}

// defaultStateFuncs supplies the per-route initial-state producers. An outer
// composition replaces these with app-specific ones.
func defaultStateFuncs() devserver.StateFuncs {
	content := func(r *http.Request, app render.AppContext) (any, error) {
		return map[string]string{"locale": app.Locale, "base": app.Base}, nil
	}
	fallback := func(r *http.Request, app render.AppContext) (any, error) {
		return map[string]string{"locale": app.Locale}, nil
	}
	return devserver.StateFuncs{Content: content, Fallback: fallback}
}
