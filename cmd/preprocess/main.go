package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"map_graph/pkg/config"
	"map_graph/pkg/logger"
	"map_graph/pkg/pipeline"
)

var buildOverrides = config.Overrides{
	"input":        "build.input",
	"output":       "build.output_dir",
	"workers":      "build.workers",
	"header":       "build.header",
	"listings":     "build.text_listings",
	"metrics-file": "build.metrics_file",
	"log-level":    "log.level",
	"log-encoding": "log.encoding",
}

func main() {
	app := &cli.App{
		Name:  "preprocess",
		Usage: "build the CSR road graph stores from extracted road records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-encoding", Value: "console", Usage: "console or json"},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "run the full pipeline on a record CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "record CSV (way_id,highway_type,name,ref,lat,lon)"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "data", Usage: "output directory"},
					&cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "parallel chunk workers"},
					&cli.BoolFlag{Name: "header", Value: true, Usage: "input starts with a header line"},
					&cli.BoolFlag{Name: "listings", Value: true, Usage: "also write nodes.txt and edges.txt"},
					&cli.StringFlag{Name: "metrics-file", Usage: "write Prometheus textfile metrics here on success"},
				},
				Action: runBuild,
			},
			{
				Name:  "convert",
				Usage: "rebuild binary stores from nodes.txt and edges.txt",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input-dir", Value: "data", Usage: "directory holding the listings"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "data", Usage: "output directory"},
				},
				Action: runConvert,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	v := config.New()
	buildOverrides.Apply(v, func(flag string) (any, bool) {
		return c.Value(flag), c.IsSet(flag)
	})
	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runBuild(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer log.Sync()

	if err := cfg.Build.Validate(); err != nil {
		return cli.Exit(err, 1)
	}

	metrics, err := pipeline.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg.Build, log, metrics)
	if err != nil {
		log.Error("build failed", zap.Error(err))
		return cli.Exit(err, 1)
	}
	log.Info("done",
		zap.Uint32("nodes", res.Nodes),
		zap.Uint32("arcs", res.Arcs),
		zap.String("dir", res.OutputDir))
	return nil
}

func runConvert(c *cli.Context) error {
	_, log, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer log.Sync()

	if _, err := pipeline.ConvertListings(c.String("input-dir"), c.String("output"), log); err != nil {
		log.Error("convert failed", zap.Error(err))
		return cli.Exit(err, 1)
	}
	return nil
}
