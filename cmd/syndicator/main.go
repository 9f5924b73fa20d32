// Package main wires together the syndication service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/api"
	"github.com/nichewire/syndicator/internal/bot/telegram"
	"github.com/nichewire/syndicator/internal/clock/system"
	"github.com/nichewire/syndicator/internal/config"
	"github.com/nichewire/syndicator/internal/discover/rss"
	"github.com/nichewire/syndicator/internal/dispatcher"
	openaienrich "github.com/nichewire/syndicator/internal/enrich/openai"
	collyfetcher "github.com/nichewire/syndicator/internal/fetcher/colly"
	headlessfetcher "github.com/nichewire/syndicator/internal/fetcher/headless"
	"github.com/nichewire/syndicator/internal/hash/sha256"
	"github.com/nichewire/syndicator/internal/headless/detector"
	"github.com/nichewire/syndicator/internal/id/uuid"
	"github.com/nichewire/syndicator/internal/logging"
	"github.com/nichewire/syndicator/internal/metrics"
	"github.com/nichewire/syndicator/internal/pipeline"
	"github.com/nichewire/syndicator/internal/policy/ratelimit"
	"github.com/nichewire/syndicator/internal/publish/linkedin"
	memorypublisher "github.com/nichewire/syndicator/internal/publisher/memory"
	pubsubpublisher "github.com/nichewire/syndicator/internal/publisher/pubsub"
	queuememory "github.com/nichewire/syndicator/internal/queue/memory"
	"github.com/nichewire/syndicator/internal/storage/gcs"
	memorystorage "github.com/nichewire/syndicator/internal/storage/memory"
	"github.com/nichewire/syndicator/internal/storage/postgres"
	"github.com/nichewire/syndicator/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore := memorystorage.NewJobStore()

	var articleStore pipeline.ArticleStore
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewArticleStore(ctx, postgres.ArticleStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		articleStore = pgStore
	} else {
		logger.Warn("no db.dsn configured, articles are kept in memory")
		articleStore = memorystorage.NewArticleStore()
	}

	var blobStore pipeline.BlobStore
	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		// The worker already prefixes blob paths with storage.prefix.
		blobStore, err = gcs.New(gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no storage.gcs_bucket configured, archives are kept in memory")
		blobStore = memorystorage.NewBlobStore()
	}

	var events pipeline.EventPublisher
	if cfg.PubSub.ProjectID != "" {
		psPublisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psPublisher.Close(); closeErr != nil {
				logger.Error("pubsub close failed", zap.Error(closeErr))
			}
		}()
		events = psPublisher
	} else {
		events = memorypublisher.New()
	}

	queue := queuememory.NewQueue(cfg.Scraper.GlobalQueueDepth)
	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.New()
	detect := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	policy := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Scraper.DefaultRPS,
		DefaultBurst: cfg.Scraper.DefaultBurst,
	})

	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	discoverer := rss.New(probeFetcher, clock, logger.Named("rss"))

	var headless pipeline.Fetcher
	if cfg.Headless.Enabled {
		headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			defer headlessFetcher.Close()
			headless = headlessFetcher
		}
	}

	var enricher pipeline.Enricher
	if cfg.Enrich.Enabled {
		clientCfg := openai.DefaultConfig(cfg.Enrich.APIKey)
		if cfg.Enrich.BaseURL != "" {
			clientCfg.BaseURL = cfg.Enrich.BaseURL
		}
		enricher = openaienrich.New(
			openai.NewClientWithConfig(clientCfg),
			openaienrich.Config{Model: cfg.Enrich.Model, MaxRetries: cfg.Enrich.MaxRetries},
			clock,
			logger.Named("enrich"),
		)
	}

	var social pipeline.SocialPublisher
	if cfg.LinkedIn.Enabled {
		social = linkedin.New(linkedin.Config{
			ClientID:          cfg.LinkedIn.ClientID,
			ClientSecret:      cfg.LinkedIn.ClientSecret,
			AccessToken:       cfg.LinkedIn.AccessToken,
			RefreshToken:      cfg.LinkedIn.RefreshToken,
			AuthorURN:         cfg.LinkedIn.AuthorURN,
			OrganizationID:    cfg.LinkedIn.OrganizationID,
			RequestsPerMinute: cfg.LinkedIn.RequestsPerMinute,
		}, clock, logger.Named("linkedin"))
	}

	workerCfg := worker.Config{
		ContentType:   cfg.Storage.ContentType,
		BlobPrefix:    cfg.Storage.Prefix,
		Topic:         cfg.PubSub.TopicName,
		MaxConcurrent: cfg.Scraper.MaxConcurrent,
	}
	deps := worker.Deps{
		Queue:           queue,
		JobStore:        jobStore,
		ArticleStore:    articleStore,
		BlobStore:       blobStore,
		Events:          events,
		Enricher:        enricher,
		SocialPublisher: social,
		Discoverer:      discoverer,
		ProbeFetcher:    probeFetcher,
		HeadlessFetcher: headless,
		Detector:        detect,
		Policy:          policy,
		Hasher:          hasher,
		Clock:           clock,
		IDs:             idGen,
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Scraper.Workers; i++ {
		workers = append(workers, worker.New(
			deps,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(telegram.Config{
			Token:          cfg.Telegram.Token,
			AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
			AllowedChatIDs: cfg.Telegram.AllowedChatIDs,
		}, jobStore, articleStore, logger.Named("telegram"))
		if err != nil {
			logger.Warn("telegram bot init failed", zap.Error(err))
		} else {
			go func() {
				if runErr := bot.Run(ctx); runErr != nil {
					logger.Error("telegram bot stopped", zap.Error(runErr))
				}
			}()
		}
	}

	apiServer := api.NewServer(jobStore, articleStore, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
