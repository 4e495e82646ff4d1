package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"medea/internal/api"
	"medea/internal/auth"
	"medea/internal/clientapi"
	"medea/internal/config"
	"medea/internal/controlapi"
	"medea/internal/turn"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog.Info("starting medea", "addr", cfg.Addr())

	turnService := turn.NewHMACService(cfg.TURN.Host, cfg.TURN.Port, cfg.TURN.Secret, cfg.TURN.TTL)
	jwtService := auth.NewJWTService(cfg.ControlAPI.JWTSecret, 24*time.Hour)

	rooms := controlapi.NewRoomRepository(turnService, cfg.Room.ReconnectTimeout)
	roomService := controlapi.NewRoomService(rooms)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := roomService.LoadStaticSpecs(loadCtx, cfg.ControlAPI.StaticSpecDir); err != nil {
		loadCancel()
		log.Fatalf("failed to load static specs: %v", err)
	}
	loadCancel()

	ipResolver, err := api.NewClientIPResolver(cfg.Server.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to initialize client IP resolver: %v", err)
	}

	controlTransport := controlapi.NewTransport(roomService, jwtService, ipResolver, 30, time.Minute)
	clientHandler := clientapi.NewHandler(
		rooms,
		cfg.ClientAPI.AllowedOrigins,
		cfg.ClientAPI.IdleTimeout,
		cfg.ClientAPI.PingInterval,
		cfg.ClientAPI.IdentifyTimeout,
		ipResolver,
		cfg.ClientAPI.UpgradeRateLimit,
		cfg.ClientAPI.UpgradeRateWindow,
	)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
		}{Status: "ok"})
	})
	r.Mount("/control-api", controlTransport)
	r.Mount("/", clientHandler)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		slog.Info("listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for roomID, rm := range rooms.All() {
		if err := rm.Close(ctx); err != nil {
			slog.Error("closing room", "room_id", roomID, "error", err)
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
