// Local development server: the same webhook handler as the Lambda build,
// served over plain HTTP with a SQLite-backed session store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"caller-lookup-bot/handler"
	"caller-lookup-bot/internal/conversation"
	"caller-lookup-bot/internal/integrations/truecaller"
	"caller-lookup-bot/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./data/sessions.db")

	sessionStore, err := repository.NewSQLite(dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessionStore.Close(); closeErr != nil {
			slog.Error("failed to close session store", "err", closeErr)
		}
	}()

	var clientOpts []truecaller.Option
	if v := os.Getenv("TRUECALLER_ACCOUNT_URL"); v != "" {
		clientOpts = append(clientOpts, truecaller.WithAccountBaseURL(v))
	}
	if v := os.Getenv("TRUECALLER_SEARCH_URL"); v != "" {
		clientOpts = append(clientOpts, truecaller.WithSearchBaseURL(v))
	}
	identityClient := truecaller.NewClient(clientOpts...)

	svc, err := conversation.NewService(sessionStore, identityClient)
	if err != nil {
		slog.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}

	var opts []handler.Option
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		opts = append(opts, handler.WithWebhookSecret(staticSecret(secret), "webhook-secret"))
	}
	h, err := handler.NewHandler(svc, opts...)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Post("/webhook", h.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if pingErr := sessionStore.Ping(req.Context()); pingErr != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting server", "port", port)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "err", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
	}
}

// staticSecret satisfies handler.SecretGetter with a fixed value, so local
// runs can validate the webhook header without AWS.
type staticSecret string

func (s staticSecret) GetParameter(_ context.Context, _ string) (string, error) {
	return string(s), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
