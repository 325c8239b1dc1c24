package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Homeroom-Remote/homeroom-server/internal/config"
	"github.com/Homeroom-Remote/homeroom-server/internal/handlers"
	"github.com/Homeroom-Remote/homeroom-server/internal/jobs"
	"github.com/Homeroom-Remote/homeroom-server/internal/rooms"
	"github.com/Homeroom-Remote/homeroom-server/internal/routers"
	"github.com/Homeroom-Remote/homeroom-server/internal/store"
	"github.com/Homeroom-Remote/homeroom-server/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	meetingStore := store.NewRedisStore(rdb)
	auth := utils.NewJWTAuthenticator([]byte(cfg.JWTSecret))
	scorer := rooms.NewScoringEngine(cfg.Scoring, rand.New(rand.NewSource(time.Now().UnixNano())))
	manager := rooms.NewRoomManager(auth, meetingStore, scorer, cfg)

	reaper := jobs.NewRoomReaperJob(manager, cfg.ReaperSchedule, cfg.StaleRoomAge)
	if err := reaper.Start(); err != nil {
		logger.Fatal("failed to start room reaper", zap.Error(err))
	}
	defer reaper.Stop()

	h := handlers.NewHandlers(manager, meetingStore)
	router := routers.NewRouter(h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()

	go func() {
		logger.Info("meeting server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}

	// Dispose every open room so session logs reach the store before exit.
	manager.Shutdown(shutdownCtx)

	if err := rdb.Close(); err != nil {
		logger.Error("redis close", zap.Error(err))
	}
	logger.Info("bye")
}
