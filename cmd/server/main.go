package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/duochat/internal/api"
	"github.com/npezzotti/duochat/internal/config"
	"github.com/npezzotti/duochat/internal/database"
	"github.com/npezzotti/duochat/internal/server"
	"github.com/npezzotti/duochat/internal/stats"
	"golang.org/x/sync/errgroup"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[duochat] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var allowedOrigins stringSliceFlag
	flag.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "server address")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database connection string")
	flag.StringVar(&cfg.SigningSecret, "signing-key", cfg.SigningSecret, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&cfg.TypingTimeout, "typing-timeout", cfg.TypingTimeout, "how long a typing indicator lives without a refresh")
	flag.StringVar(&cfg.PresenceStore, "presence-store", cfg.PresenceStore, "last-seen store: postgres or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the redis presence store")
	flag.Parse()

	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	var presenceStore database.PresenceStore = dbConn
	if cfg.PresenceStore == config.PresenceStoreRedis {
		redisStore, err := database.NewRedisPresenceStore(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("redis: ", err)
		}
		defer redisStore.Close()
		presenceStore = redisStore
	}
	logger.Printf("using %s presence store", cfg.PresenceStore)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, "duochat-stats")

	chatServer, err := server.NewChatServer(logger, presenceStore, statsUpdater, server.Options{
		TypingTimeout:     cfg.TypingTimeout,
		StoreWriteTimeout: cfg.StoreWriteTimeout,
	})
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	app := api.NewChatApp(mux, logger, chatServer, dbConn, presenceStore, cfg)

	statsUpdater.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Start()
	})
	g.Go(func() error {
		chatServer.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// stop accepting handshakes before tearing down connections
		httpErr := app.Shutdown(shutdownCtx)
		csErr := chatServer.Shutdown(shutdownCtx)

		return errors.Join(httpErr, csErr)
	})

	if err := g.Wait(); err != nil {
		logger.Println("exited with error:", err)
	}

	statsUpdater.Stop()
	logger.Println("shutdown complete")
}
