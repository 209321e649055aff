package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"map_graph/pkg/config"
	"map_graph/pkg/logger"
	"map_graph/pkg/places"
)

func main() {
	app := &cli.App{
		Name:  "places",
		Usage: "convert record CSV into the fixed-size place store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "record CSV"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "data/places.bin"},
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

	f, err := os.Open(c.String("input"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.Close()

	list, stats, err := places.Convert(f)
	if err != nil {
		return cli.Exit(err, 1)
	}
	log.Info("places collected",
		zap.Int("rows", stats.Rows),
		zap.Int("places", len(list)),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("short", stats.Short),
		zap.Int("badCoords", stats.BadCoords))

	if err := places.Write(c.String("output"), list); err != nil {
		return cli.Exit(err, 1)
	}
	log.Info("place store written", zap.String("path", c.String("output")), zap.Int("bytes", 4+len(list)*places.RecordSize))
	return nil
}
