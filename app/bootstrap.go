package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"teamboard-api/internal/auth"
	"teamboard-api/internal/db"
	"teamboard-api/internal/maintenance"
	"teamboard-api/internal/observability"
	"teamboard-api/internal/post"
	"teamboard-api/internal/todo"
	"teamboard-api/internal/user"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger("teamboard-api")

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tokens := auth.NewTokenIssuer(accessSecret, refreshSecret)
	tokens.WithTTL(
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 10),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 24),
	)

	userRepo := user.NewRepository(database)

	authService := auth.NewService(userRepo, tokens)
	authService.WithLockoutPolicy(auth.LockoutPolicy{
		Threshold: envIntOrDefault("LOCKOUT_MAX_FAILURES", 10),
		Window:    envHoursOrDefault("LOCKOUT_WINDOW_HOURS", 6),
	})
	authHandler := auth.NewHandler(authService, tokens)

	userHandler := user.NewHandler(userRepo, tokens)
	postHandler := post.NewHandler(post.NewRepository(database))
	todoHandler := todo.NewHandler(todo.NewRepository(database))

	cleanupHandler := maintenance.NewCleanupHandler(
		maintenance.NewRepository(database),
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("CLEANUP_RETENTION_DAYS", 30),
		envIntOrDefault("CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		userRepo,
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	guard := func(handler http.HandlerFunc) http.Handler {
		return auth.Guard(tokens, handler)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("GET /refresh", authHandler.Refresh)
	mux.HandleFunc("POST /user", userHandler.Register)
	mux.Handle("GET /user", guard(userHandler.ListUsers))
	mux.Handle("GET /user/{id}", guard(userHandler.GetUserDetails))
	mux.Handle("GET /posts", guard(postHandler.ListPosts))
	mux.Handle("POST /posts", guard(postHandler.CreatePost))
	mux.Handle("GET /posts/{id}", guard(postHandler.GetPost))
	mux.Handle("PUT /posts/{id}", guard(postHandler.UpdatePost))
	mux.Handle("DELETE /posts/{id}", guard(postHandler.DeletePost))
	mux.Handle("GET /posts/{id}/comments", guard(postHandler.ListComments))
	mux.Handle("POST /posts/{id}/comments", guard(postHandler.CreateComment))
	mux.Handle("DELETE /posts/{id}/comments", guard(postHandler.DeleteComment))
	mux.Handle("GET /todos", guard(todoHandler.ListTodos))
	mux.Handle("POST /todos", guard(todoHandler.CreateTodo))
	mux.Handle("POST /todos/{id}", guard(todoHandler.MarkCompleted))
	mux.Handle("PUT /todos/{id}", guard(todoHandler.UpdateTodo))
	mux.Handle("DELETE /todos/{id}", guard(todoHandler.DeleteTodo))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
