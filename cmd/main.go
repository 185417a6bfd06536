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

	"pinchat/backend/internal/api/handler"
	"pinchat/backend/internal/chathub"
	"pinchat/backend/internal/config"
	"pinchat/backend/internal/logging"
	"pinchat/backend/internal/msgcrypto"
	"pinchat/backend/internal/presence"
	"pinchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDependencies(ctx context.Context, cfg config.Config, log *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}

	if cfg.Redis.Addr == "" {
		log.Info("redis not configured, lastSeen cache disabled")
		return db, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The cache is optional; Postgres stays authoritative.
		log.Warn("redis unreachable, lastSeen cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rdb.Close()
		return db, nil
	}
	return db, rdb
}

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	store := storage.NewStorageService(db, rdb, log.Named("storage"))
	if err := store.AutoMigrate(); err != nil {
		log.Fatal("run migrations", zap.Error(err))
	}

	codec, err := msgcrypto.NewCodec(cfg.Crypto.Secret)
	if err != nil {
		log.Fatal("init message codec", zap.Error(err))
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := chathub.NewManagerService(store, presence.NewRegistry(), log.Named("hub"))
	go hub.Run(hubCtx)

	auth := handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	h := handler.NewHandler(hub, store, codec, auth, log.Named("http"))
	h.SendBuffer = cfg.Realtime.SendBuffer

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(log.Named("http")))
	h.Routes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("pinchat backend listening", zap.String("addr", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Closing the hub tears down live connections; pending lastSeen writes finish first.
	stopHub()
	hub.Drain()
	log.Info("pinchat backend stopped")
}
