package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gwi.com/leadership-simulator/internal/api"
	"gwi.com/leadership-simulator/internal/auth"
	"gwi.com/leadership-simulator/internal/config"
	"gwi.com/leadership-simulator/internal/core"
	"gwi.com/leadership-simulator/internal/logging"
	"gwi.com/leadership-simulator/internal/store"
)

func main() {
	cleanupFlag := flag.Bool("cleanup", false, "Run retention cleanup once and exit")
	exportFlag := flag.String("export-credentials", "", "Write the credentials view as YAML to `file` and exit")
	flag.Parse()

	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	ctx := context.Background()
	userService := core.NewUserService(dbStore, auth.NewTokenIssuer(cfg.JWTSecret), cfg.SessionTTL, cfg.IsAdmin)
	if err := userService.PromoteAdmins(ctx, cfg.AdminUsers); err != nil {
		log.Fatalf("Failed to promote admin users: %v", err)
	}

	retention, err := core.NewRetentionJob(dbStore, cfg.RetentionHorizon(), cfg.RetentionSchedule)
	if err != nil {
		log.Fatalf("Invalid retention settings: %v", err)
	}

	if *cleanupFlag {
		res, err := retention.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		log.Infof("Cleanup complete: removed %d messages and %d actions. Exiting.", res.MessagesRemoved, res.ActionsRemoved)
		return
	}

	if *exportFlag != "" {
		if err := exportCredentials(ctx, userService, *exportFlag); err != nil {
			log.Fatalf("Credential export failed: %v", err)
		}
		log.Infof("Credentials written to %s. Exiting.", *exportFlag)
		return
	}

	// Initialize LLM provider
	provider, err := core.NewProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			log.WithError(err).Warn("Error closing LLM provider")
		}
	}()

	chatService := core.NewChatService(dbStore, provider, provider, cfg.HistoryLimit)
	dashboardService := core.NewDashboardService(dbStore)

	if err := retention.Start(); err != nil {
		log.Fatalf("Failed to schedule retention job: %v", err)
	}
	defer retention.Stop()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(userService, chatService, dashboardService, retention)
	router := api.NewRouter(apiHandler, cfg.CORSOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Assistant runs are polled to completion
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Starting server on %s with provider %s", serverAddr, cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Server exiting gracefully")
}

// exportCredentials writes the {username: {name, email, password}} view that
// external authenticator configs consume.
func exportCredentials(ctx context.Context, users *core.UserService, path string) error {
	creds, err := users.Credentials(ctx)
	if err != nil {
		return err
	}
	doc := map[string]any{
		"credentials": map[string]any{"usernames": creds},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
