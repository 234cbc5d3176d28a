package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/gateway"
	"chat-gateway/internal/handlers"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/services"
	"chat-gateway/internal/websocket"
	"chat-gateway/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database: %v", err)
	}

	// Initialize services
	authService := auth.NewService(db, cfg.JWT, nil)
	gatewayMetrics := metrics.NewGateway(prometheus.DefaultRegisterer)

	gw := gateway.New(db, authService, gateway.Options{
		QuietWindow: cfg.Gateway.TypingQuietWindow,
		Metrics:     gatewayMetrics,
	})
	gwCtx, stopGateway := context.WithCancel(context.Background())
	go gw.Run(gwCtx)

	inviteService := services.NewInviteService(db, gw, nil)
	moderationService := services.NewModerationService(db, gw)
	channelService := services.NewChannelService(db, gw)
	directService := services.NewDirectService(db, gw, nil)
	messageService := services.NewMessageService(db, gw, nil)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService, gw)
	serverHandlers := handlers.NewServerHandlers(inviteService, moderationService, channelService, directService, messageService)
	wsHandlers := handlers.NewWebSocketHandlers(gw, websocket.OptionsFromConfig(cfg.Gateway), gatewayMetrics)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authService, gw, authHandlers, serverHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error: %v", err)
		}
	}
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, server.Shutdown(shutdownCtx))
	stopGateway()
	select {
	case <-gw.Done():
	case <-shutdownCtx.Done():
		errs = multierr.Append(errs, errors.New("gateway did not stop before the shutdown deadline"))
	}
	errs = multierr.Append(errs, db.Close())
	if errs != nil {
		logger.Fatal("Shutdown failed: %v", errs)
	}
	logger.Info("Server stopped")
}

func setupRoutes(mux *http.ServeMux, verifier gateway.TokenVerifier, gw *gateway.Gateway,
	authHandlers *handlers.AuthHandlers, serverHandlers *handlers.ServerHandlers, wsHandlers *handlers.WebSocketHandlers) {
	authed := func(h http.HandlerFunc) http.HandlerFunc { return handlers.RequireAuth(verifier, h) }

	// Auth routes
	mux.HandleFunc("POST /register", authHandlers.Register)
	mux.HandleFunc("POST /login", authHandlers.Login)
	mux.HandleFunc("POST /refresh", authHandlers.Refresh)
	mux.HandleFunc("POST /logout", authed(authHandlers.Logout))

	// Domain routes
	mux.HandleFunc("POST /invites/{code}/accept", authed(serverHandlers.AcceptInvite))
	mux.HandleFunc("POST /servers/{serverId}/members/{userId}/kick", authed(serverHandlers.KickMember))
	mux.HandleFunc("POST /servers/{serverId}/members/{userId}/ban", authed(serverHandlers.BanMember))
	mux.HandleFunc("POST /servers/{serverId}/channels", authed(serverHandlers.CreateChannel))
	mux.HandleFunc("PATCH /channels/{channelId}", authed(serverHandlers.UpdateChannel))
	mux.HandleFunc("DELETE /channels/{channelId}", authed(serverHandlers.DeleteChannel))
	mux.HandleFunc("POST /channels/{channelId}/messages", authed(serverHandlers.SendMessage))
	mux.HandleFunc("PATCH /messages/{messageId}", authed(serverHandlers.EditMessage))
	mux.HandleFunc("DELETE /messages/{messageId}", authed(serverHandlers.DeleteMessage))
	mux.HandleFunc("POST /messages/{messageId}/reactions", authed(serverHandlers.AddReaction))
	mux.HandleFunc("DELETE /messages/{messageId}/reactions/{emoji}", authed(serverHandlers.RemoveReaction))

	mux.HandleFunc("POST /direct/threads", authed(serverHandlers.StartThread))
	mux.HandleFunc("POST /direct/threads/{threadId}/messages", authed(serverHandlers.SendDirectMessage))
	mux.HandleFunc("PATCH /direct/messages/{messageId}", authed(serverHandlers.EditDirectMessage))
	mux.HandleFunc("DELETE /direct/messages/{messageId}", authed(serverHandlers.DeleteDirectMessage))
	mux.HandleFunc("POST /direct/messages/{messageId}/reactions", authed(serverHandlers.AddDirectReaction))
	mux.HandleFunc("DELETE /direct/messages/{messageId}/reactions/{emoji}", authed(serverHandlers.RemoveDirectReaction))

	// Operations
	mux.HandleFunc("GET /healthz", handlers.Healthz(gw))
	mux.Handle("GET /metrics", promhttp.Handler())

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
