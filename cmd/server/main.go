package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollio/internal/cache"
	"rollio/internal/config"
	"rollio/internal/registry"
	"rollio/internal/repository"
	"rollio/internal/service"
	"rollio/internal/transport/rest"
	"rollio/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// WebSocket hub and room registry
	hub := ws.NewHub()
	defer hub.Shutdown()
	log.Println("WebSocket hub started")

	reg := registry.New(hub, registry.Options{
		MaxPlayers:      cfg.RoomMaxPlayers,
		LeaveGrace:      cfg.LeaveGrace,
		AllowSpectators: cfg.AllowSpectators,
	})

	// Stats persistence
	statsRepo := repository.NewStatsRepo(mongoClient)
	leaderboard := cache.NewLeaderboardCache(rdb)
	statsSvc := service.NewStatsService(statsRepo, leaderboard)

	wsHandler := ws.NewHandler(hub, reg)

	router := rest.NewRouter(&rest.Container{
		Registry:     reg,
		StatsService: statsSvc,
		WSHandler:    wsHandler,
		Environment:  cfg.Environment,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  WS   /ws")
		log.Println("  GET  /health")
		log.Println("  POST /api/games/complete")
		log.Println("  GET  /api/stats/{username}")
		log.Println("  GET  /api/stats/{username}/history")
		log.Println("  GET  /api/leaderboard")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
