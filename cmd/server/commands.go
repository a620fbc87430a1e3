package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mindfulspace.app/backend/internal/api"
	"mindfulspace.app/backend/internal/auth"
	"mindfulspace.app/backend/internal/config"
	"mindfulspace.app/backend/internal/core"
	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

var (
	logLevel string
	log      *logging.Logger
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:   "mindfulspace",
		Short: "MindfulSpace backend: entities, auth, conversations and the AI companion",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(); err != nil {
				return err
			}
			level := config.AppConfig.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			log = logging.New(nil, level)
			return nil
		},
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newSeedCmd())
	return cmd
}

func openDatabase() (*store.Database, kv.Store, error) {
	kvStore, err := kv.Open(config.AppConfig.StorageBackend, config.AppConfig.DatabaseURL, config.AppConfig.StorageTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	policies, err := store.DefaultPolicies()
	if err != nil {
		kvStore.Close()
		return nil, nil, err
	}
	db := store.NewDatabase(kvStore, log, store.WithPolicies(policies))
	return db, kvStore, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default content of every seeded collection and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, kvStore, err := openDatabase()
			if err != nil {
				return err
			}
			defer kvStore.Close()

			for _, name := range db.Collections() {
				if err := db.Collection(name).Seed(cmd.Context()); err != nil {
					return fmt.Errorf("seed %s: %w", name, err)
				}
			}
			log.Info().Strs("collections", db.Collections()).Msg("seeding complete")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	if err := config.RequireJWTSecret(); err != nil {
		return err
	}
	db, kvStore, err := openDatabase()
	if err != nil {
		return err
	}
	defer kvStore.Close()

	// The AI provider is optional; chat routes answer 503 without it.
	var (
		completer core.Completer
		guide     *core.GuideService
	)
	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey, config.AppConfig.ChatModel, log.Sub("llm"))
	switch {
	case errors.Is(err, core.ErrNotConfigured):
		log.Warn().Msg("GEMINI_API_KEY not set, AI routes are disabled")
	case err != nil:
		return err
	default:
		defer llmService.Close()
		completer = llmService
		exercises := store.NewTyped[store.Exercise](db.Collection(store.CollectionExercise))
		guide = core.NewGuideService(llmService, exercises, log.Sub("guide"))
	}

	var verifier auth.GoogleVerifier
	if config.AppConfig.GoogleClientID != "" {
		verifier = auth.NewIDTokenVerifier(config.AppConfig.GoogleClientID)
	} else {
		log.Warn().Msg("GOOGLE_CLIENT_ID not set, Google sign-in trusts client-supplied emails")
	}

	userService := core.NewUserService(db.Collection(store.CollectionUser), verifier, log.Sub("users"))
	chatService := core.NewChatService(completer, guide, db.Conversations(), log.Sub("chat"))

	apiHandler := api.NewAPIHandler(db, userService, chatService, guide, log.Sub("api"))
	router := api.NewRouter(apiHandler, log.Sub("http"), config.AppConfig.CORSOrigins)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Str("storage", config.AppConfig.StorageBackend).Msg("starting server, press Ctrl+C to quit")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exiting gracefully")
	return nil
}
