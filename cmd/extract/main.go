package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"map_graph/pkg/config"
	"map_graph/pkg/logger"
	osmextract "map_graph/pkg/osm"
)

func main() {
	app := &cli.App{
		Name:  "extract",
		Usage: "extract drivable road geometry from an OSM .pbf or .osm file as record CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "path to .osm.pbf or .osm file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "roads.csv", Usage: "record CSV to write"},
			&cli.StringFlag{Name: "bbox", Usage: "bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)"},
			&cli.BoolFlag{Name: "singapore", Usage: "shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)"},
			&cli.BoolFlag{Name: "kl", Usage: "shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)"},
			&cli.StringFlag{Name: "highways", Usage: "comma-separated highway values to keep (default motorway,trunk,primary,secondary,tertiary,residential)"},
			&cli.BoolFlag{Name: "respect-access", Usage: "drop areas and ways closed to motor vehicles"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.StringFlag{Name: "log-encoding", Value: "console"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := logger.New(config.Log{Level: c.String("log-level"), Encoding: c.String("log-encoding")})
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer log.Sync()

	opts, err := options(c, log)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := extract(ctx, c.String("input"), c.String("output"), opts); err != nil {
		log.Error("extract failed", zap.Error(err))
		return cli.Exit(err, 1)
	}
	return nil
}

func options(c *cli.Context, log *zap.Logger) (osmextract.Options, error) {
	format, err := osmextract.FormatFromPath(c.String("input"))
	if err != nil {
		return osmextract.Options{}, err
	}
	opts := osmextract.Options{
		Format:        format,
		RespectAccess: c.Bool("respect-access"),
		Logger:        log,
	}

	var box *orb.Bound
	switch {
	case c.Bool("kl"):
		b := osmextract.KLBBox
		box = &b
		log.Info("using Selangor + KL bounding box")
	case c.Bool("singapore"):
		b := osmextract.SingaporeBBox
		box = &b
		log.Info("using Singapore bounding box")
	case c.String("bbox") != "":
		b, err := osmextract.ParseBBox(c.String("bbox"))
		if err != nil {
			return osmextract.Options{}, err
		}
		box = &b
	}
	if box != nil {
		opts.BBox = box
		log.Info("bounding box filter",
			zap.Float64("minLat", box.Min.Lat()), zap.Float64("maxLat", box.Max.Lat()),
			zap.Float64("minLng", box.Min.Lon()), zap.Float64("maxLng", box.Max.Lon()))
	}

	if hw := c.String("highways"); hw != "" {
		opts.Highways = make(map[string]bool)
		for _, v := range strings.Split(hw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				opts.Highways[v] = true
			}
		}
	}
	return opts, nil
}

func extract(ctx context.Context, input, output string, opts osmextract.Options) error {
	in, err := os.Open(input)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer in.Close()

	tmpPath := output + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		out.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriterSize(out, 1<<20)
	if _, err := osmextract.Extract(ctx, in, bw, opts); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush output")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}
	return errors.Wrap(os.Rename(tmpPath, output), "rename output")
}
