package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"studyhub/internal/db"
	"studyhub/internal/handlers"
	"studyhub/internal/handlers/middleware"
	"studyhub/internal/logger"
	"studyhub/internal/mailer"
	"studyhub/internal/repository"
	"studyhub/internal/repository/mongodb"
	"studyhub/internal/repository/postgres"
	"studyhub/internal/service/auth"
	"studyhub/internal/service/auth/google"
	"studyhub/internal/service/auth/tokenmanager"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	closeStorage func(context.Context) error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the selected storage backend
	var storage repository.Storage
	closeStorage := func(context.Context) error { return nil }

	switch c.Storage {
	case StorageMongo:
		mongoStorage, err := mongodb.New(ctx, c.MongoURI, c.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to mongo. Err: %w", err)
		}
		storage = mongoStorage
		closeStorage = mongoStorage.Close
	default:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		storage = postgres.NewStorage(pool)
		closeStorage = func(context.Context) error {
			pool.Close()
			return nil
		}
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Token())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authConfig := auth.Config{
		Mailer: mailer.LogMailer{Logger: logger},
	}
	if c.GoogleClientID != "" {
		authConfig.OAuth = google.New(google.Config{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			CallbackURL:  c.GoogleCallbackURL,
		})
	}

	authService, err := auth.NewService(authConfig, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuth(authService, logger)
	userHandler := handlers.NewUser()
	authMiddleware := middleware.AuthMiddleware(authService)

	mux := handlers.NewRouter(
		authHandler,
		userHandler,
		authMiddleware,
		middleware.LoggerMiddleware(logger),
	)

	return &ServerApp{
		ListenAddr:   c.ListenAddr,
		Handler:      mux,
		closeStorage: closeStorage,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if closeErr := s.closeStorage(context.Background()); closeErr != nil {
		slog.Error("Storage close error", "error", closeErr.Error())
	}

	return err
}
