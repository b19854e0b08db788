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
	"github.com/redis/go-redis/v9"

	"apd-api/internal/auth"
	"apd-api/internal/db"
	"apd-api/internal/maintenance"
	"apd-api/internal/observability"
	"apd-api/internal/session"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build assembles the whole service from the environment: database, session
// store, lockout policy, token codecs, routes. Configuration is read once
// here and passed into components as explicit values.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	sessionSecret, err := mustEnv("SESSION_SECRET")
	if err != nil {
		return nil, err
	}
	nonceSecret := envOrDefault("AUTH_NONCE_SECRET", sessionSecret)

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

	sessionLifetime := envMinutesOrDefault("SESSION_LIFETIME_MINUTES", 30)
	sessionTTL := envMinutesOrDefault("SESSION_TTL_MINUTES", int(sessionLifetime.Minutes()))

	var (
		sessions    session.Store
		redisClient *redis.Client
	)
	if redisURL := strings.TrimSpace(os.Getenv("REDIS_URL")); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		sessions = session.NewRedisStore(redisClient, sessionTTL)
	} else {
		// Single-instance fallback; sessions do not survive a restart.
		logger.Warn("redis_not_configured", map[string]any{"store": "memory"})
		sessions = session.NewMemoryStore(sessionTTL)
	}

	lockout := auth.LockoutConfig{
		MaxAttempts:  envNonNegIntOrDefault("AUTH_LOCK_FAILED_ATTEMPTS_COUNT", auth.DefaultLockoutConfig().MaxAttempts),
		LockDuration: envMinutesOrDefault("AUTH_LOCK_FAILED_ATTEMPTS_DURATION_MINUTES", 30),
		Window:       envMinutesOrDefault("AUTH_LOCK_FAILED_ATTEMPTS_WINDOW_TIME_MINUTES", 1),
	}

	repo := auth.NewRepository(database)
	nonces := auth.NewNonceIssuer(nonceSecret)
	codec := auth.NewTokenCodec(sessionSecret, sessionLifetime)
	authenticator := auth.NewAuthenticator(repo, nonces, lockout)
	authHandler := auth.NewHandler(authenticator, nonces, sessions, codec)

	cleanupHandler := maintenance.NewCleanupHandler(
		repo,
		logger,
		os.Getenv("CRON_SECRET"),
		envHoursOrDefault("AUTH_LOCK_CLEANUP_RETENTION_HOURS", 24),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	if err := bootstrapAdmin(repo); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login/nonce", loginLimiter.Middleware(http.HandlerFunc(authHandler.Nonce)))
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("GET /auth/logout", auth.RequireSession(codec, sessions, repo, http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /auth/me", auth.RequireSession(codec, sessions, repo, http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

func bootstrapAdmin(repo *auth.Repository) error {
	email := strings.TrimSpace(strings.ToLower(os.Getenv("ADMIN_EMAIL")))
	password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	return repo.UpsertAccount(
		context.Background(),
		email,
		password,
		envOrDefault("ADMIN_ROLE", "admin"),
		envOrDefault("ADMIN_STATE", ""),
	)
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

// envNonNegIntOrDefault admits zero: AUTH_LOCK_FAILED_ATTEMPTS_COUNT=0 means
// "lock on the first recorded failure", not "use the default".
func envNonNegIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
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
