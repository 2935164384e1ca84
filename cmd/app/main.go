package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/filerelay/internal/api"
	cfgpkg "github.com/local/filerelay/internal/config"
	logpkg "github.com/local/filerelay/internal/logger"
	"github.com/local/filerelay/internal/metrics"
	"github.com/local/filerelay/internal/progress"
	"github.com/local/filerelay/internal/relay"
	"github.com/local/filerelay/internal/statuscheck"
	"github.com/local/filerelay/internal/storage"
	"github.com/local/filerelay/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// File store: Redis when configured, in-process map otherwise.
	var files store.FileStore
	var redisPinger statuscheck.RedisPinger
	if cfg.Store.RedisURL != "" {
		rs, err := store.NewRedis(cfg.Store.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		files = rs
		redisPinger = rs
		log.Info().Msg("using redis file store")
	} else {
		files = store.NewMemory()
		log.Info().Msg("using in-memory file store")
	}

	httpClient := &http.Client{Timeout: cfg.Webhook.Timeout}

	up := relay.NewUploader(relay.UploaderOptions{
		Endpoint:  cfg.Webhook.URL,
		CSRFToken: cfg.Webhook.CSRFToken,
		Estimate:  cfg.Processing.TimeEstimate,
		Client:    httpClient,
	})
	down := relay.NewDownloader(relay.DownloaderOptions{
		Endpoint:  cfg.Webhook.URL,
		CSRFToken: cfg.Webhook.CSRFToken,
		Preview:   cfg.PreviewMode(),
		Files:     files,
		Client:    httpClient,
	})
	sim := progress.New(cfg.Processing.TimeEstimate)

	// S3 archiver (optional)
	var archiver api.Archiver
	if cfg.Archive.S3Bucket != "" {
		arc, err := storage.NewArchiver(context.Background(), cfg.Archive.S3Bucket, cfg.Archive.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 archiver")
		}
		archiver = arc
		log.Info().Str("bucket", cfg.Archive.S3Bucket).Msg("s3 archiving enabled")
	}

	checker := statuscheck.New(statuscheck.Options{
		WebhookURL:  cfg.Webhook.URL,
		ChatURL:     cfg.Webhook.ChatURL,
		Redis:       redisPinger,
		S3Bucket:    cfg.Archive.S3Bucket,
		PreviewMode: cfg.PreviewMode(),
	})

	srv := api.New(api.Dependencies{
		Uploader:   up,
		Downloader: down,
		Simulator:  sim,
		Files:      files,
		Archiver:   archiver,
		Status:     checker,
		CSRFToken:  cfg.Webhook.CSRFToken,
		MaxBody:    cfg.Server.MaxBodyBytes,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if cfg.PreviewMode() {
			log.Warn().Msg("preview mode active: downloads are synthesized locally")
		}
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
