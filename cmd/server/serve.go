package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"namlong/internal/api"
	"namlong/internal/auth"
	"namlong/internal/blob"
	"namlong/internal/chat"
	"namlong/internal/config"
	"namlong/internal/db"
	"namlong/internal/ws"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat widget server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.Info("starting server", "name", cfg.Server.Name, "version", Version)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	blobService, err := blob.NewService(cfg.Storage.BlobRoot, cfg.Storage.UploadMaxBytes.Int64())
	if err != nil {
		return fmt.Errorf("initializing blob storage: %w", err)
	}
	slog.Info("blob storage initialized", "root", cfg.Storage.BlobRoot, "upload_max_bytes", cfg.Storage.UploadMaxBytes.String())

	sessionRepo := db.NewSessionRepository(database)
	transcriptRepo := db.NewTranscriptRepository(database)
	attachmentRepo := db.NewAttachmentRepository(database)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	transcriptWriter := db.NewTranscriptWriter(transcriptRepo, 0)
	writerDone := make(chan struct{})
	go func() {
		transcriptWriter.Start(bgCtx)
		close(writerDone)
	}()

	cleanupService := db.NewCleanupService(sessionRepo, cfg.Database.Retention, cfg.Database.CleanupInterval)
	blobCleanupService := blob.NewCleanupService(attachmentRepo, blobService, cfg.Database.Retention, cfg.Database.CleanupInterval)
	go cleanupService.Start(bgCtx)
	go blobCleanupService.Start(bgCtx)

	hub := ws.NewHub(ws.Options{
		Routes:           chatRoutes(cfg.Routes),
		Timings:          chat.Timings{SentDelay: cfg.Chat.SentDelay, ReplyDelay: cfg.Chat.ReplyDelay, SeenDelay: cfg.Chat.SeenDelay},
		RecallWindow:     cfg.Chat.RecallWindow,
		MaxContentLength: cfg.Chat.MaxContentLength,
		Location:         cfg.Location(),
		Archiver:         transcriptWriter,
	})
	go hub.Run()

	server := api.NewServer(cfg, api.Dependencies{
		Database:    database,
		Sessions:    sessionRepo,
		Transcripts: transcriptRepo,
		Attachments: attachmentRepo,
		Blobs:       blobService,
		JWT:         auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		Hub:         hub,
	})

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		slog.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// The writer flushes what the closed conversations archived last.
	bgCancel()
	<-writerDone
	if dropped := transcriptWriter.Dropped.Load(); dropped > 0 {
		slog.Warn("transcript entries dropped", "count", dropped)
	}

	slog.Info("server stopped")
	return runErr
}

func chatRoutes(routes []config.RouteConfig) chat.Routes {
	out := make([]chat.Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, chat.Route{Key: r.Key, Path: r.Path, Title: r.Title})
	}
	return chat.NewRoutes(out)
}
