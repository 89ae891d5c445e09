package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trivia-engine/internal/app"
	"trivia-engine/internal/config"
	"trivia-engine/internal/generator"
	filestore "trivia-engine/internal/infra/file"
	pgstore "trivia-engine/internal/infra/postgres"
	redisstore "trivia-engine/internal/infra/redis"
	transport "trivia-engine/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia session engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	dataDir := cfg.Data.Dir
	if dataDir == "" {
		dataDir = "data"
	}

	apiKey := cfg.Gemini.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	var clientOpts []generator.Option
	if cfg.Gemini.Model != "" {
		clientOpts = append(clientOpts, generator.WithModel(cfg.Gemini.Model))
	}
	if cfg.Gemini.BaseURL != "" {
		clientOpts = append(clientOpts, generator.WithBaseURL(cfg.Gemini.BaseURL))
	}
	client, err := generator.NewClient(apiKey, clientOpts...)
	if err != nil {
		return fmt.Errorf("question source: %w", err)
	}
	var source app.QuestionSource = client
	if ttl := config.TTLDuration(cfg.Gemini.CacheTTL, 0); ttl > 0 {
		source = generator.NewCachedSource(client, ttl)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.SessionStore
	if redisClient != nil {
		redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		fileSessions, err := filestore.NewSessionStore(filepath.Join(dataDir, "sessions"))
		if err != nil {
			return err
		}
		store = fileSessions
	}

	var board app.LeaderboardStore
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		board = pgstore.NewLeaderboardStore(pool)
	case redisClient != nil:
		board = redisstore.NewLeaderboardStore(redisClient)
	default:
		fileBoard, err := filestore.NewLeaderboardStore(filepath.Join(dataDir, "leaderboard.json"))
		if err != nil {
			return err
		}
		board = fileBoard
	}

	engine := app.NewOrchestrator(store, board, source)
	wsHandler := transport.NewWSHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia engine on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
