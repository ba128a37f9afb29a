package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/auth"
	"github.com/greylag/landgrab/server/internal/config"
	"github.com/greylag/landgrab/server/internal/handler"
	"github.com/greylag/landgrab/server/internal/logger"
	"github.com/greylag/landgrab/server/internal/middleware"
	"github.com/greylag/landgrab/server/internal/repository/postgres"
	redisrepo "github.com/greylag/landgrab/server/internal/repository/redis"
	"github.com/greylag/landgrab/server/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Dur("tickPeriod", cfg.TickPeriod).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for room-activity expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (idle sweep falls back to polling)")
	}

	roomRepo := postgres.NewRoomRepo(db)
	joinCodes := auth.NewJoinCodeManager(cfg.JoinSecret)
	wsHub := handler.NewHub()

	roomSvc := service.NewRoomService(roomRepo, redisClient, joinCodes, wsHub, service.Options{
		TickPeriod:       cfg.TickPeriod,
		FullSyncInterval: cfg.FullSyncInterval,
		EmptyRoomTTL:     cfg.EmptyRoomTTL,
	})
	sweeper := service.NewRoomSweeper(redisClient.Underlying(), roomSvc, cfg.RoomSweepInterval)

	// Handlers
	roomHandler := handler.NewRoomHandler(roomSvc)
	cmdHandler := handler.NewCommandHandler(roomSvc)
	wsHandler := handler.NewWSHandler(wsHub, roomSvc)

	// Router
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	api := http.NewServeMux()
	api.HandleFunc("POST /rooms", roomHandler.CreateRoom)
	api.HandleFunc("GET /rooms", roomHandler.ListRooms)
	api.HandleFunc("GET /rooms/{id}", roomHandler.GetRoom)
	api.HandleFunc("POST /rooms/{id}/join", roomHandler.JoinRoom)
	api.HandleFunc("GET /rooms/{id}/map/metadata", roomHandler.MapMetadata)
	api.HandleFunc("GET /rooms/{id}/map/data", roomHandler.MapData)
	api.HandleFunc("GET /rooms/{id}/state", cmdHandler.GetState)
	api.HandleFunc("POST /rooms/{id}/found", cmdHandler.Found)
	api.HandleFunc("POST /rooms/{id}/cities", cmdHandler.BuildCity)
	api.HandleFunc("POST /rooms/{id}/structures", cmdHandler.BuildStructure)
	api.HandleFunc("POST /rooms/{id}/arrows", cmdHandler.Arrow)
	api.HandleFunc("DELETE /rooms/{id}/arrows", cmdHandler.ClearArrow)
	api.HandleFunc("PATCH /rooms/{id}/settings", cmdHandler.Settings)
	api.HandleFunc("POST /rooms/{id}/quit", cmdHandler.Quit)
	api.HandleFunc("POST /rooms/{id}/pause", cmdHandler.Pause)
	api.HandleFunc("POST /rooms/{id}/unpause", cmdHandler.Unpause)
	api.HandleFunc("POST /rooms/{id}/end", cmdHandler.End)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	// WebSocket (credentials travel in the subscribe message)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	switch {
	case cfg.ResetOnBoot:
		log.Warn().Msg("RESET_ON_BOOT set, wiping all room data")
		if err := redisClient.FlushAll(bootCtx); err != nil {
			log.Error().Err(err).Msg("Redis flush failed")
		}
		if err := roomRepo.DeleteAll(bootCtx); err != nil {
			log.Error().Err(err).Msg("Room wipe failed")
		}
	case cfg.ClearRooms:
		log.Warn().Msg("CLEAR_ROOMS set, wiping room rows")
		if err := roomRepo.DeleteAll(bootCtx); err != nil {
			log.Error().Err(err).Msg("Room wipe failed")
		}
	default:
		if err := roomSvc.RecoverActiveRooms(bootCtx); err != nil {
			log.Error().Err(err).Msg("Failed to recover active rooms (non-fatal)")
		}
	}
	bootCancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	roomSvc.Shutdown(shutdownCtx)
	log.Info().Msg("Server stopped")
}
