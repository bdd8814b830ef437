package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/groupmod/modbot/discord"
	"github.com/groupmod/modbot/modflow"
	"github.com/groupmod/modbot/modflow/cachestore"
	"github.com/groupmod/modbot/modflow/countstore"
	"github.com/groupmod/modbot/modflow/flagstore"
	"github.com/groupmod/modbot/modflow/visual"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	logger     *slog.Logger
	client     *discord.Client
	dispatcher *modflow.Dispatcher
	rdb        *redis.Client
}

type Config struct {
	Tokens              *Tokens
	Classifier          string
	VertexProject       string
	VertexRegion        string
	VertexEndpoint      string
	VertexLabel         string
	RedisURL            string
	SlackWebhookURL     string
	TaxonomyFile        string
	TriageTimeout       time.Duration
	LookupTimeout       time.Duration
	ConnectTimeout      time.Duration
	ClassifierRateLimit float64
	ScoreCacheTTL       time.Duration
	AnnounceEvaluations bool
	Logger              *slog.Logger
}

func newClassifier(ctx context.Context, config Config) (visual.Classifier, error) {
	switch config.Classifier {
	case "vertex":
		return visual.NewVertexClient(ctx, visual.VertexConfig{
			CredentialsJSON: config.Tokens.Google,
			Project:         config.VertexProject,
			Region:          config.VertexRegion,
			EndpointID:      config.VertexEndpoint,
			Label:           config.VertexLabel,
			Logger:          config.Logger,
		})
	case "hive":
		return visual.NewHiveAIClient(config.Tokens.Hive), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown classifier backend: %q", config.Classifier)
}

// Builds all components and connects to Discord. Fails if anything required for operation is missing.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var tax *modflow.Taxonomy
	if config.TaxonomyFile != "" {
		t, err := modflow.LoadTaxonomyFile(config.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded report taxonomy", "path", config.TaxonomyFile, "categories", t.CategoryNames())
		tax = t
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}

		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, config.ScoreCacheTTL, 1_000)
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, config.ScoreCacheTTL)
	}

	var triage modflow.Triager
	cl, err := newClassifier(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("configuring %s classifier: %w", config.Classifier, err)
	}
	if cl != nil {
		logger.Info("configuring image triage", "classifier", config.Classifier)
		triage = visual.NewTriageClassifier(cl, visual.NewHTTPFetcher(), visual.TriageConfig{
			Cache:     cache,
			RateLimit: config.ClassifierRateLimit,
			Timeout:   config.TriageTimeout,
			Logger:    logger,
		})
	} else {
		logger.Warn("no image classifier configured, public channel triage disabled")
	}

	var notifiers []modflow.Notifier
	if config.SlackWebhookURL != "" {
		logger.Info("mirroring reports to slack")
		notifiers = append(notifiers, modflow.NewSlackNotifier(config.SlackWebhookURL))
	}

	discord.InstallLogger(logger)
	client, err := discord.NewClient(config.Tokens.Discord, logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx, config.ConnectTimeout); err != nil {
		return nil, err
	}

	dispatcher, err := modflow.NewDispatcher(modflow.DispatcherConfig{
		Logger:              logger,
		Transport:           client.Transport(),
		Channels:            client.Directory,
		Naming:              client.Naming,
		Flags:               flagstore.NewMemFlagStore(),
		Counters:            counters,
		Triage:              triage,
		Taxonomy:            tax,
		Notifiers:           notifiers,
		AnnounceEvaluations: config.AnnounceEvaluations,
		LookupTimeout:       config.LookupTimeout,
	})
	if err != nil {
		client.Session.Close()
		return nil, err
	}

	return &Server{
		logger:     logger,
		client:     client,
		dispatcher: dispatcher,
		rdb:        rdb,
	}, nil
}

// Processes events until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("processing events", "moderation_channel", s.client.Naming.Moderation, "public_channel", s.client.Naming.Public)
	return s.client.Run(ctx, s.dispatcher.ProcessEvent)
}

func (s *Server) RunMetrics(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Refreshes the session and guild gauges every few seconds, until the context is cancelled.
func (s *Server) RunGauges(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reports, reviews := s.dispatcher.ActiveSessions()
			activeReportSessions.Set(float64(reports))
			activeReviewSessions.Set(float64(reviews))
			guildsJoined.Set(float64(s.client.Directory.GuildCount()))
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}
