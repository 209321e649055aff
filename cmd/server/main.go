package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"map_graph/pkg/api"
	"map_graph/pkg/config"
	"map_graph/pkg/graph"
	"map_graph/pkg/logger"
	"map_graph/pkg/places"
	"map_graph/pkg/spatial"
)

var serverOverrides = config.Overrides{
	"addr":           "server.addr",
	"data-dir":       "server.data_dir",
	"places":         "server.places_file",
	"cors-origin":    "server.cors_origin",
	"max-concurrent": "server.max_concurrent",
	"log-level":      "log.level",
	"log-encoding":   "log.encoding",
}

func main() {
	app := &cli.App{
		Name:  "server",
		Usage: "serve read-only queries over a finished graph store set",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "listen address"},
			&cli.StringFlag{Name: "data-dir", Value: "data", Usage: "directory holding the graph stores"},
			&cli.StringFlag{Name: "places", Usage: "place store (default <data-dir>/places.bin if present)"},
			&cli.StringFlag{Name: "cors-origin", Usage: "CORS allowed origin (empty = same-origin)"},
			&cli.IntFlag{Name: "max-concurrent", Usage: "maximum in-flight requests"},
			&cli.BoolFlag{Name: "verify", Usage: "verify store checksums against the manifest on load"},
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
	v := config.New()
	serverOverrides.Apply(v, func(flag string) (any, bool) {
		return c.Value(flag), c.IsSet(flag)
	})
	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := cfg.Server.Validate(); err != nil {
		return cli.Exit(err, 1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer log.Sync()

	start := time.Now()

	var opts []graph.OpenOption
	if c.Bool("verify") {
		opts = append(opts, graph.VerifyChecksums())
	}
	log.Info("loading stores", zap.String("dir", cfg.Server.DataDir))
	stores, err := graph.Open(cfg.Server.DataDir, opts...)
	if err != nil {
		log.Error("failed to load stores", zap.Error(err))
		return cli.Exit(err, 1)
	}
	defer stores.Close()
	log.Info("stores loaded", zap.Uint32("nodes", stores.NumNodes), zap.Uint32("arcs", stores.NumArcs))

	log.Info("building R-tree spatial index")
	index := spatial.New(stores, stores.NumNodes)

	catalog, err := loadPlaces(cfg.Server)
	if err != nil {
		log.Error("failed to load places", zap.Error(err))
		return cli.Exit(err, 1)
	}
	if catalog != nil {
		log.Info("places loaded", zap.Int("places", catalog.Len()))
	}

	log.Info("ready", zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))

	handlers := api.NewHandlers(api.Dataset{
		Graph:  stores.Graph(),
		Nodes:  stores,
		Index:  index,
		Places: catalog,
	})
	srv := api.NewServer(cfg.Server, handlers, log)

	if err := api.ListenAndServe(srv, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		return cli.Exit(err, 1)
	}
	return nil
}

// loadPlaces returns nil when no place store is configured and none sits
// next to the graph stores.
func loadPlaces(cfg config.Server) (*places.Catalog, error) {
	path := cfg.PlacesFile
	if path == "" {
		path = filepath.Join(cfg.DataDir, "places.bin")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}
	}
	list, err := places.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read places %s", path)
	}
	return places.NewCatalog(list), nil
}
