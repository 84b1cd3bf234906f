package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/tourism-cli/internal/config"
	"github.com/sells-group/tourism-cli/internal/db"
	"github.com/sells-group/tourism-cli/internal/geoio"
	"github.com/sells-group/tourism-cli/internal/model"
	"github.com/sells-group/tourism-cli/internal/network"
	"github.com/sells-group/tourism-cli/internal/poi"
	"github.com/sells-group/tourism-cli/internal/store"
)

// addInputFlags registers the dataset path flags shared by the analysis commands.
func addInputFlags(cmd *cobra.Command, withBoundary, withNetwork bool) {
	cmd.Flags().String("pois", "", "POI GeoJSON (overrides input.pois)")
	if withBoundary {
		cmd.Flags().String("boundary", "", "city boundary, GeoJSON or shapefile (overrides input.boundary)")
	}
	if withNetwork {
		cmd.Flags().StringSlice("network", nil, "street network: node and edge GeoJSON files, or one polyline shapefile (overrides input.network)")
	}
	cmd.Flags().String("out", "", "output directory (overrides output.dir)")
}

// applyInputFlags copies any explicitly set input flags into cfg.
func applyInputFlags(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("pois"); f != nil && f.Changed {
		cfg.Input.POIs = f.Value.String()
	}
	if f := cmd.Flags().Lookup("boundary"); f != nil && f.Changed {
		cfg.Input.Boundary = f.Value.String()
	}
	if cmd.Flags().Changed("network") {
		cfg.Input.Network, _ = cmd.Flags().GetStringSlice("network")
	}
	if f := cmd.Flags().Lookup("out"); f != nil && f.Changed {
		cfg.Output.Dir = f.Value.String()
	}
}

func loadPOIs() ([]model.POI, error) {
	if cfg.Input.POIs == "" {
		return nil, eris.New("no POI file configured (--pois or input.pois)")
	}
	pois, err := geoio.ReadPOIs(cfg.Input.POIs)
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded pois", zap.String("path", cfg.Input.POIs), zap.Int("count", len(pois)))
	return pois, nil
}

func loadBoundary() (geom.T, error) {
	if cfg.Input.Boundary == "" {
		return nil, eris.New("no boundary configured (--boundary or input.boundary)")
	}
	return geoio.ReadBoundary(cfg.Input.Boundary)
}

// loadNetwork reads the street network, or returns nil when none is configured.
func loadNetwork() (*network.Graph, error) {
	paths := cfg.Input.Network
	if len(paths) == 0 {
		return nil, nil
	}

	var (
		g   *network.Graph
		err error
	)
	switch geoio.DetectFormat(paths[0]) {
	case geoio.FormatShapefile, geoio.FormatShapefileZIP:
		if len(paths) > 1 {
			return nil, eris.New("a shapefile network must be a single path")
		}
		g, err = geoio.ReadNetworkShapefile(paths[0])
	default:
		g, err = geoio.ReadNetworkGeoJSON(paths...)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Info("loaded network",
		zap.Strings("paths", paths),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
		zap.Strings("edge_weights", g.WeightNames()),
	)
	return g, nil
}

func loadSeasonRules() (poi.SeasonRules, error) {
	if cfg.Analysis.SeasonRules == "" {
		return poi.DefaultSeasonRules(), nil
	}
	return poi.LoadSeasonRules(cfg.Analysis.SeasonRules)
}

// outputPath joins name onto the configured output directory, creating it.
func outputPath(name string) (string, error) {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "create output dir")
	}
	return filepath.Join(cfg.Output.Dir, name), nil
}

// initStore opens the configured run store. It returns nil when the driver
// is "none".
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tourism.db"
		}
		return store.NewSQLite(dsn, cfg.Store.SRID)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, cfg.Store.SRID)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// requireStore opens and migrates the run store, failing when none is configured.
func requireStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
