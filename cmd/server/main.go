package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/config"
	"github.com/jodete-online/jodete-server/internal/logger"
	"github.com/jodete-online/jodete-server/internal/network/server"
	"github.com/jodete-online/jodete-server/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// Local development keeps secrets in .env; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warnf("could not load config, using defaults: %v", err)
		cfg = config.Default()
	}
	logger.Init(cfg.Log.Level)

	gateway := buildGateway(cfg)
	defer func() { _ = gateway.Close() }()

	srv := server.NewServer(cfg, gateway)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Info("jodete server starting")
	if err := srv.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// buildGateway connects to Redis when enabled, falling back to the noop
// gateway so the game stays playable without persistence.
func buildGateway(cfg *config.Config) storage.Gateway {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, match history will not be persisted")
		return storage.NoopGateway{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("redis unreachable at %s, continuing without persistence: %v", cfg.Redis.Addr, err)
		_ = client.Close()
		return storage.NoopGateway{}
	}
	log.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	return storage.NewRedisGateway(client)
}
