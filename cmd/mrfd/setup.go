package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/cachestore"
	"github.com/fedimod/mrf/mrf/config"
	"github.com/fedimod/mrf/mrf/directory"
	"github.com/fedimod/mrf/mrf/keyword"
	"github.com/fedimod/mrf/mrf/nsfwapi"
	"github.com/fedimod/mrf/util"
	"github.com/fedimod/mrf/util/cliutil"
	"github.com/fedimod/mrf/util/ssrf"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

// Flags shared by every command which runs the pipeline.
var pipelineFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to MRF policy configuration file (YAML, or JSON with .json extension); defaults apply if not set",
		EnvVars: []string{"MRFD_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:    "policies",
		Usage:   "MRF policies to run, in order",
		Value:   cli.NewStringSlice("keyword", "nsfw_api"),
		EnvVars: []string{"MRFD_POLICIES"},
	},
	&cli.StringFlag{
		Name:    "database-url",
		Usage:   "database holding known actors (sqlite:// or postgres://); optional",
		EnvVars: []string{"DATABASE_URL"},
	},
	&cli.IntFlag{
		Name:    "max-db-connections",
		EnvVars: []string{"MAX_DB_CONNECTIONS"},
		Value:   20,
	},
	&cli.StringFlag{
		Name:    "redis-url",
		Usage:   "redis server for the shared classifier score cache; in-process cache is used if not set",
		EnvVars: []string{"MRFD_REDIS_URL"},
	},
	&cli.DurationFlag{
		Name:    "score-cache-ttl",
		Usage:   "how long classifier scores are cached",
		Value:   time.Hour,
		EnvVars: []string{"MRFD_SCORE_CACHE_TTL"},
	},
	&cli.BoolFlag{
		Name:    "actor-fetch",
		Usage:   "resolve unknown actors by fetching their actor document from the origin server",
		Value:   true,
		EnvVars: []string{"MRFD_ACTOR_FETCH"},
	},
	&cli.IntFlag{
		Name:    "actor-fetch-rate-limit",
		Usage:   "max actor document fetches per second",
		Value:   20,
		EnvVars: []string{"MRFD_ACTOR_FETCH_RATE_LIMIT"},
	},
	&cli.IntFlag{
		Name:    "classifier-rate-limit",
		Usage:   "max requests per second to the NSFW classifier",
		Value:   50,
		EnvVars: []string{"MRFD_CLASSIFIER_RATE_LIMIT"},
	},
	&cli.StringFlag{
		Name:    "slack-webhook-url",
		Usage:   "Slack incoming webhook for reject notifications; optional",
		EnvVars: []string{"SLACK_WEBHOOK_URL"},
	},
}

// Loads the policy configuration named by the "config" flag, or defaults.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	path := cctx.String("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading MRF config %s: %w", path, err)
	}
	return cfg, nil
}

func setupDirectory(cctx *cli.Context, logger *slog.Logger) (directory.Directory, error) {
	var dir directory.Directory
	if cctx.Bool("actor-fetch") {
		client := util.RobustHTTPClientWithTransport(ssrf.PublicOnlyTransport())
		client.Timeout = 15 * time.Second
		hdir := directory.NewHTTPDirectory(client, rate.NewLimiter(rate.Limit(cctx.Int("actor-fetch-rate-limit")), 1))
		dir = &hdir
	}

	if dbURL := cctx.String("database-url"); dbURL != "" {
		db, err := cliutil.SetupDatabase(dbURL, cctx.Int("max-db-connections"))
		if err != nil {
			return nil, err
		}
		ddir := directory.NewDBDirectory(db, dir)
		ddir.Logger = logger.With("directory", "db")
		if err := ddir.Migrate(); err != nil {
			return nil, fmt.Errorf("migrating actor table: %w", err)
		}
		dir = &ddir
	}

	if dir == nil {
		logger.Warn("no actor directory configured (actor-fetch disabled, no database); unlisting will fail")
		mdir := directory.NewMockDirectory()
		return &mdir, nil
	}
	cdir := directory.NewCacheDirectory(dir, 100_000, time.Hour*6, time.Minute*2)
	return &cdir, nil
}

func setupScoreCache(ctx context.Context, cctx *cli.Context) (cachestore.CacheStore, error) {
	ttl := cctx.Duration("score-cache-ttl")
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		rcs, err := cachestore.NewRedisCacheStore(ctx, redisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %w", err)
		}
		return rcs, nil
	}
	mcs := cachestore.NewMemCacheStore(50_000, ttl)
	return &mcs, nil
}

// Builds the policy chain named by the "policies" flag.
func setupPipeline(ctx context.Context, cctx *cli.Context, provider config.Provider, logger *slog.Logger) (*mrf.Pipeline, error) {
	var policies []mrf.Policy
	for _, name := range cctx.StringSlice("policies") {
		switch name {
		case "keyword":
			policies = append(policies, keyword.Policy{})
		case "nsfw_api":
			cache, err := setupScoreCache(ctx, cctx)
			if err != nil {
				return nil, err
			}
			dir, err := setupDirectory(cctx, logger)
			if err != nil {
				return nil, err
			}
			client := nsfwapi.NewClient(cache, rate.NewLimiter(rate.Limit(cctx.Int("classifier-rate-limit")), 1))
			client.Logger = logger.With("component", "nsfwapi")
			pol := nsfwapi.NewPolicy(client, dir)
			pol.Logger = logger.With("policy", "nsfw_api")
			policies = append(policies, pol)
		default:
			return nil, fmt.Errorf("unknown MRF policy: %q", name)
		}
	}
	logger.Info("configured MRF policies", "policies", cctx.StringSlice("policies"))

	pipeline := &mrf.Pipeline{
		Logger:   logger,
		Config:   provider,
		Policies: policies,
	}
	if u := cctx.String("slack-webhook-url"); u != "" {
		pipeline.Notifier = &mrf.SlackNotifier{
			SlackWebhookURL: u,
			Client:          &http.Client{Timeout: 10 * time.Second},
		}
	}
	return pipeline, nil
}
