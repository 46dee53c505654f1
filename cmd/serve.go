package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adalundhe/sway/core/config"
	"github.com/adalundhe/sway/core/gateway"
	"github.com/adalundhe/sway/core/orchestrator"
	"github.com/adalundhe/sway/core/providers"
	"github.com/adalundhe/sway/core/ratelimit"
	"github.com/adalundhe/sway/core/server"
	"github.com/adalundhe/sway/core/store"
	"github.com/adalundhe/sway/core/study"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "sway.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(store.DefaultConfig(cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var provider providers.Provider
	if !cfg.Generation.TestMode {
		provider, err = providers.New(
			providers.ProviderType(cfg.Generation.Provider),
			cfg.Generation.Anthropic,
			cfg.Generation.OpenAI,
		)
		if err != nil {
			return fmt.Errorf("build provider: %w", err)
		}
		defer provider.Close()
	}

	gw, err := gateway.New(gateway.Config{
		Provider:  provider,
		Timeout:   cfg.Generation.Timeout.Std(),
		MaxTokens: cfg.Generation.MaxTokens,
		TestMode:  cfg.Generation.TestMode,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	pacer, err := ratelimit.New(ratelimit.Config{Window: cfg.Pacing.Window.Std()})
	if err != nil {
		return err
	}
	defer pacer.Close()

	st2, err := study.New(study.Config{Store: st, Logger: logger})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:   st,
		Gateway: gw,
		Pacer:   pacer,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Study:        st2,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("shutting down")
		srv.Shutdown()
	}()

	return srv.Listen(cfg.Server.Addr)
}
