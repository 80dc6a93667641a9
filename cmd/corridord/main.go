package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dpup/prefab/logging"
	"github.com/urfave/cli/v2"

	"github.com/openroads/corridor/internal/cache"
	"github.com/openroads/corridor/internal/clients/arcgis"
	"github.com/openroads/corridor/internal/clients/osrm"
	"github.com/openroads/corridor/internal/clients/overpass"
	"github.com/openroads/corridor/internal/config"
	"github.com/openroads/corridor/internal/lib/event"
	"github.com/openroads/corridor/internal/server"
	"github.com/openroads/corridor/internal/services"
	"github.com/openroads/corridor/internal/store"
)

const configFlag = "config"

func main() {
	app := &cli.App{
		Name:  "corridord",
		Usage: "Corridor geometry resolution service for traffic event dashboards",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"CORRIDOR_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP resolution service",
				Action: runServe,
			},
			{
				Name:      "resnap",
				Usage:     "Re-resolve a batch of events from a JSON file",
				ArgsUsage: "<events.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write resolved events to this file instead of stdout",
					},
				},
				Action: runResnap,
			},
			{
				Name:      "import",
				Usage:     "Import corridors from a KML file into the corridor store",
				ArgsUsage: "<corridors.kml>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Value: "kml-import",
						Usage: "Provenance tag stamped on imported corridors",
					},
				},
				Action: runImport,
			},
			{
				Name:   "export",
				Usage:  "Export the corridor store as KML to stdout",
				Action: runExport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if path := c.String(configFlag); path != "" {
		return config.Load(path)
	}
	return config.Default()
}

// buildResolver wires the full tier stack from configuration.
func buildResolver(ctx context.Context, cfg config.Config) (*services.Resolver, *store.Store, *cache.GeometryCache, error) {
	st, err := store.Open(cfg.Database.CorridorPath)
	if err != nil {
		return nil, nil, nil, err
	}

	geomCache, err := cache.Open(ctx, cfg.Database.CachePath)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}

	var sources []services.GeometrySource
	if !cfg.Providers.Overpass.Disabled {
		sources = append(sources, overpass.NewClient(
			cfg.Providers.Overpass.BaseURL, cfg.Providers.Overpass.Timeout))
	}
	if cfg.Providers.ArcGIS.Enabled() {
		sources = append(sources, arcgis.NewClient(
			cfg.Providers.ArcGIS.BaseURL, cfg.Providers.ArcGIS.RouteField,
			cfg.Providers.ArcGIS.Timeout))
	}

	var router services.Router
	if !cfg.Providers.OSRM.Disabled {
		router = osrm.NewClient(cfg.Providers.OSRM.BaseURL, cfg.Providers.OSRM.Timeout)
	}

	resolver := services.NewResolver(st, geomCache, sources, router,
		cfg.SnapConfig(), cfg.ParityOverrides(), services.NewMetrics())
	return resolver, st, geomCache, nil
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	resolver, st, geomCache, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer geomCache.Close()

	srv := server.New(resolver, st)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logging.Infow(ctx, "Shutting down")
		if err := srv.Shutdown(); err != nil {
			logging.Errorw(ctx, "Shutdown failed", "error", err)
		}
	}()

	logging.Infow(ctx, "Corridor service starting",
		"address", cfg.Server.Address,
		"cachedGeometries", geomCache.Len())
	return srv.Listen(cfg.Server.Address)
}

func runResnap(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: corridord resnap <events.json>")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	var locations []event.Location
	if err := json.Unmarshal(data, &locations); err != nil {
		return fmt.Errorf("failed to parse events: %w", err)
	}

	ctx := c.Context
	resolver, st, geomCache, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer geomCache.Close()

	job := services.NewResnapper(resolver, cfg.Resnap.Delay, cfg.Resnap.Backoff)
	resolved, summary, err := job.Run(ctx, locations)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resolved); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "resolved %d/%d events (%d failures, %d rate-limit pauses)\n",
		len(resolved), summary.Total, summary.Failures, summary.RateLimitPauses)
	return nil
}

func runImport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: corridord import <corridors.kml>")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open KML: %w", err)
	}
	defer f.Close()

	corridors, err := store.ImportKML(f, c.String("source"))
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.CorridorPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := c.Context
	imported := 0
	for _, corridor := range corridors {
		if err := st.Upsert(ctx, corridor); err != nil {
			logging.Warnw(ctx, "Skipping corridor",
				"corridor", corridor.Name, "direction", corridor.Direction, "error", err)
			continue
		}
		imported++
	}

	fmt.Fprintf(os.Stderr, "imported %d/%d corridors into %s\n",
		imported, len(corridors), cfg.Database.CorridorPath)
	return nil
}

func runExport(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.CorridorPath)
	if err != nil {
		return err
	}
	defer st.Close()

	corridors, err := st.All(c.Context)
	if err != nil {
		return err
	}
	return store.ExportKML(os.Stdout, corridors)
}
