package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"
	"github.com/fedimod/mrf/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "mrfd",
		Usage:   "message rewrite facility daemon (moderates federated activities)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"MRFD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			Value:   "json",
			EnvVars: []string{"MRFD_LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		filterCmd,
		describeCmd,
	}

	return app.Run(args)
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the MRF HTTP service",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":4010",
			EnvVars: []string{"MRFD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":4011",
			EnvVars: []string{"MRFD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "password for the admin API (HTTP basic auth, user 'admin'); admin API is disabled if not set",
			EnvVars: []string{"MRFD_ADMIN_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "body-limit",
			Usage:   "largest accepted activity document",
			Value:   "4M",
			EnvVars: []string{"MRFD_BODY_LIMIT"},
		},
	}, pipelineFlags...),
	Action: func(cctx *cli.Context) error {
		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()
		logger := cliutil.ConfigLogger(cctx, os.Stdout)

		shutdownTracing, err := configOTEL(ctx, "mrfd")
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Error("failed to shutdown trace exporter", "err", err)
			}
		}()

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		store := config.NewStore(cfg)
		if path := cctx.String("config"); path != "" {
			go func() {
				if err := config.WatchFile(ctx, path, store, logger); err != nil {
					logger.Error("config file watcher failed; live reload disabled", "err", err)
				}
			}()
		}

		pipeline, err := setupPipeline(ctx, cctx, store, logger)
		if err != nil {
			return err
		}

		if cctx.String("admin-password") == "" {
			logger.Warn("no admin password configured, admin API disabled")
		}
		srv := NewServer(pipeline, store, Config{
			Logger:        logger,
			Bind:          cctx.String("bind"),
			AdminPassword: cctx.String("admin-password"),
			BodyLimit:     cctx.String("body-limit"),
		})

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.RunAPI(ctx); err != nil {
			return fmt.Errorf("failed to run MRF service: %w", err)
		}
		return nil
	},
}

var filterCmd = &cli.Command{
	Name:      "filter",
	Usage:     "run a single activity document (JSON file, or '-' for stdin) through the MRF pipeline, and print the result",
	ArgsUsage: "<file>",
	Flags:     pipelineFlags,
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := cliutil.ConfigLogger(cctx, os.Stderr)

		if cctx.Args().Len() != 1 {
			return cli.Exit("expected exactly one argument: activity JSON file, or '-'", 1)
		}
		b, err := readInput(cctx.Args().First())
		if err != nil {
			return err
		}
		act, err := activity.ParseJSON(b)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		pipeline, err := setupPipeline(ctx, cctx, config.StaticProvider{Cfg: cfg}, logger)
		if err != nil {
			return err
		}

		out, err := pipeline.Filter(ctx, act)
		if err != nil {
			if rej, ok := mrf.AsReject(err); ok {
				return cli.Exit(fmt.Sprintf("rejected by %s: %s", rej.Policy, rej.Reason), 2)
			}
			return err
		}
		return printJSON(cctx.App.Writer, out)
	},
}

var describeCmd = &cli.Command{
	Name:  "describe",
	Usage: "print the describe output and configuration schema of the configured MRF policies",
	Flags: pipelineFlags,
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := cliutil.ConfigLogger(cctx, os.Stderr)

		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		pipeline, err := setupPipeline(ctx, cctx, config.StaticProvider{Cfg: cfg}, logger)
		if err != nil {
			return err
		}
		desc, err := pipeline.Describe(ctx)
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, map[string]any{
			"describe":           desc,
			"config_description": pipeline.ConfigDescriptions(),
		})
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
