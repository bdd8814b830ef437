package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/groupmod/modbot/modflow/report"
	"github.com/groupmod/modbot/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/getsentry/sentry-go"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "modbot",
		Usage:   "community moderation bot (reports, reviews, image triage)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"MODBOT_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			EnvVars: []string{"MODBOT_LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "sentry-dsn",
			Usage:   "report handler panics to sentry (optional)",
			EnvVars: []string{"SENTRY_DSN"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkTaxonomyCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to discord and process events",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "tokens-file",
			Usage:   "JSON file with discord and classifier credentials",
			Value:   "tokens.json",
			EnvVars: []string{"MODBOT_TOKENS_FILE"},
		},
		&cli.StringFlag{
			Name:    "classifier",
			Usage:   "image classifier backend: vertex, hive, or none",
			Value:   "vertex",
			EnvVars: []string{"MODBOT_CLASSIFIER"},
		},
		&cli.StringFlag{
			Name:    "vertex-project",
			Usage:   "Google Cloud project of the Vertex AI endpoint (defaults to the service account's project)",
			EnvVars: []string{"MODBOT_VERTEX_PROJECT"},
		},
		&cli.StringFlag{
			Name:    "vertex-region",
			Usage:   "region of the Vertex AI endpoint",
			Value:   "us-central1",
			EnvVars: []string{"MODBOT_VERTEX_REGION"},
		},
		&cli.StringFlag{
			Name:    "vertex-endpoint",
			Usage:   "Vertex AI endpoint id serving the image classification model",
			EnvVars: []string{"MODBOT_VERTEX_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "vertex-label",
			Usage:   "display name of the synthetic image class; if empty the second confidence is used",
			EnvVars: []string{"MODBOT_VERTEX_LABEL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters and score cache (in-process if empty)",
			EnvVars: []string{"MODBOT_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "also send report notifications to this slack incoming webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "taxonomy-file",
			Usage:   "YAML file of report categories and subtypes (built-in taxonomy if empty)",
			EnvVars: []string{"MODBOT_TAXONOMY_FILE"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"MODBOT_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "triage-timeout",
			Usage:   "time limit for fetching and classifying one attachment",
			Value:   10 * time.Second,
			EnvVars: []string{"MODBOT_TRIAGE_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "lookup-timeout",
			Usage:   "time limit for resolving a reported message link",
			Value:   10 * time.Second,
			EnvVars: []string{"MODBOT_LOOKUP_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "connect-timeout",
			Usage:   "time limit for the initial discord gateway connection",
			Value:   30 * time.Second,
			EnvVars: []string{"MODBOT_CONNECT_TIMEOUT"},
		},
		&cli.Float64Flag{
			Name:    "classifier-rate-limit",
			Usage:   "max classifier requests per second (0 for unlimited)",
			Value:   5,
			EnvVars: []string{"MODBOT_CLASSIFIER_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "score-cache-ttl",
			Usage:   "how long classification scores are cached per image",
			Value:   24 * time.Hour,
			EnvVars: []string{"MODBOT_SCORE_CACHE_TTL"},
		},
		&cli.BoolFlag{
			Name:    "announce-evaluations",
			Usage:   "post the score of every classified (but not flagged) image to the moderation channel",
			EnvVars: []string{"MODBOT_ANNOUNCE_EVALUATIONS"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		if err != nil {
			return err
		}

		if dsn := cctx.String("sentry-dsn"); dsn != "" {
			if err := sentry.Init(sentry.ClientOptions{
				Dsn:     dsn,
				Release: versioninfo.Short(),
			}); err != nil {
				return fmt.Errorf("initializing sentry: %w", err)
			}
			defer sentry.Flush(2 * time.Second)
			logger.Info("sentry error reporting enabled")
		}

		shutdownOTEL, err := configOTEL("modbot")
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		defer shutdownOTEL()

		tokens, err := loadTokens(cctx.String("tokens-file"), cctx.String("classifier"))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := NewServer(ctx, Config{
			Tokens:              tokens,
			Classifier:          cctx.String("classifier"),
			VertexProject:       cctx.String("vertex-project"),
			VertexRegion:        cctx.String("vertex-region"),
			VertexEndpoint:      cctx.String("vertex-endpoint"),
			VertexLabel:         cctx.String("vertex-label"),
			RedisURL:            cctx.String("redis-url"),
			SlackWebhookURL:     cctx.String("slack-webhook-url"),
			TaxonomyFile:        cctx.String("taxonomy-file"),
			TriageTimeout:       cctx.Duration("triage-timeout"),
			LookupTimeout:       cctx.Duration("lookup-timeout"),
			ConnectTimeout:      cctx.Duration("connect-timeout"),
			ClassifierRateLimit: cctx.Float64("classifier-rate-limit"),
			ScoreCacheTTL:       cctx.Duration("score-cache-ttl"),
			AnnounceEvaluations: cctx.Bool("announce-evaluations"),
			Logger:              logger,
		})
		if err != nil {
			return err
		}
		defer srv.Close()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.RunMetrics(ctx, cctx.String("metrics-listen")); err != nil {
				return fmt.Errorf("failed to start metrics endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return srv.RunGauges(ctx)
		})
		g.Go(func() error {
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("failed to run moderation bot: %w", err)
			}
			return nil
		})
		return g.Wait()
	},
}

var checkTaxonomyCmd = &cli.Command{
	Name:      "check-taxonomy",
	Usage:     "validate a report taxonomy YAML file and print its categories",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		p := cctx.Args().First()
		if p == "" {
			return fmt.Errorf("need to provide taxonomy file path as an argument")
		}
		tax, err := report.LoadTaxonomyFile(p)
		if err != nil {
			return err
		}
		for _, c := range tax.Categories {
			fmt.Printf("%s: %s\n", c.Name, strings.Join(c.Subtypes, ", "))
		}
		return nil
	},
}
