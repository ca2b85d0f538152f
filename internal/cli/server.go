package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/config"
	"github.com/Davidcode-png/QuizBlitz/internal/infra/memory"
	pgstore "github.com/Davidcode-png/QuizBlitz/internal/infra/postgres"
	"github.com/Davidcode-png/QuizBlitz/internal/infra/rediscache"
	"github.com/Davidcode-png/QuizBlitz/internal/registry"
	transport "github.com/Davidcode-png/QuizBlitz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
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

	redisAddr := cfg.Redis.Addr
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// The connection registry arbitrates host/player claims across
	// instances; without Redis the server cannot start.
	conns, err := registry.New(ctx, redisClient, registry.Options{
		ClaimTTL:          config.TTLDuration(cfg.Redis.ClaimTTL, registry.DefaultClaimTTL),
		HeartbeatInterval: config.TTLDuration(cfg.Redis.HeartbeatInterval, registry.DefaultHeartbeatInterval),
	})
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var repo app.GameRepository = memory.NewGameRepository()
	var source app.QuestionSource = memory.NewStaticQuestionSource(memory.DefaultQuestions())
	if pool != nil {
		repo = pgstore.NewGameRepository(pool)
		source = pgstore.NewQuestionSource(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	questions := rediscache.NewQuestionBank(redisClient, source, cacheTTL)

	defaultSet := cfg.Questions.DefaultSet
	if defaultSet == "" {
		defaultSet = "default"
	}
	service := app.NewGameService(repo, questions, conns, defaultSet)

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost:" + finalPort
	}
	api := transport.NewAPIHandler(service, publicURL)
	ws := transport.NewWSHandler(service)
	router := transport.NewRouter(api, ws)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizblitz server on :%s", finalPort)
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
