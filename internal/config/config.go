package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/tourism-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig holds the parameters of an analysis run.
type AnalysisConfig struct {
	City                  string    `yaml:"city" mapstructure:"city"`
	Budgets               []float64 `yaml:"budgets" mapstructure:"budgets"`
	WalkingSpeedKMPH      float64   `yaml:"walking_speed_kmph" mapstructure:"walking_speed_kmph"`
	MaxSnapDistance       float64   `yaml:"max_snap_distance" mapstructure:"max_snap_distance"`
	CellSize              float64   `yaml:"cell_size" mapstructure:"cell_size"`
	BufferRadius          float64   `yaml:"buffer_radius" mapstructure:"buffer_radius"`
	KDEResolution         int       `yaml:"kde_resolution" mapstructure:"kde_resolution"`
	HighPotentialQuantile float64   `yaml:"high_potential_quantile" mapstructure:"high_potential_quantile"`
	Workers               int       `yaml:"workers" mapstructure:"workers"`
	Season                string    `yaml:"season" mapstructure:"season"`
	SeasonRules           string    `yaml:"season_rules" mapstructure:"season_rules"`
	SourceCategories      []string  `yaml:"source_categories" mapstructure:"source_categories"`
	SourcesPerCategory    int       `yaml:"sources_per_category" mapstructure:"sources_per_category"`
}

// InputConfig holds the paths of the input datasets.
type InputConfig struct {
	Boundary string   `yaml:"boundary" mapstructure:"boundary"`
	POIs     string   `yaml:"pois" mapstructure:"pois"`
	Network  []string `yaml:"network" mapstructure:"network"`
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Shapefile bool   `yaml:"shapefile" mapstructure:"shapefile"`
	Report    bool   `yaml:"report" mapstructure:"report"`
}

// StoreConfig configures the optional run store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SRID        int    `yaml:"srid" mapstructure:"srid"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TOURISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("analysis.budgets", []float64{5, 10, 15})
	v.SetDefault("analysis.walking_speed_kmph", 4.5)
	v.SetDefault("analysis.max_snap_distance", 0)
	v.SetDefault("analysis.cell_size", 500)
	v.SetDefault("analysis.buffer_radius", 500)
	v.SetDefault("analysis.kde_resolution", 100)
	v.SetDefault("analysis.high_potential_quantile", 0.9)
	v.SetDefault("analysis.workers", 8)
	v.SetDefault("analysis.sources_per_category", 0)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.shapefile", true)
	v.SetDefault("output.report", true)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.srid", 2056)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes.
const (
	ModeAnalysis = "analysis" // analysis parameters only
	ModePipeline = "pipeline" // parameters plus boundary and POI inputs
	ModeStore    = "store"    // a configured run store
)

// Validate checks that the fields required by mode are usable. Every
// problem is reported, not just the first.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case ModeAnalysis:
		errs = c.validateAnalysis()
	case ModePipeline:
		errs = c.validateAnalysis()
		if c.Input.Boundary == "" {
			errs = append(errs, "input.boundary is required")
		}
		if c.Input.POIs == "" {
			errs = append(errs, "input.pois is required")
		}
		if c.Store.Driver != "none" && c.Store.Driver != "" {
			errs = append(errs, c.validateStore()...)
		}
	case ModeStore:
		if c.Store.Driver == "none" || c.Store.Driver == "" {
			errs = append(errs, "store.driver is required")
		} else {
			errs = append(errs, c.validateStore()...)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAnalysis() []string {
	a := c.Analysis
	var errs []string
	if len(a.Budgets) == 0 {
		errs = append(errs, "analysis.budgets is empty")
	}
	for _, b := range a.Budgets {
		if b <= 0 {
			errs = append(errs, fmt.Sprintf("analysis.budgets must be > 0, got %v", b))
		}
	}
	if a.WalkingSpeedKMPH <= 0 {
		errs = append(errs, fmt.Sprintf("analysis.walking_speed_kmph must be > 0, got %v", a.WalkingSpeedKMPH))
	}
	if a.MaxSnapDistance < 0 {
		errs = append(errs, fmt.Sprintf("analysis.max_snap_distance must be >= 0, got %v", a.MaxSnapDistance))
	}
	if a.CellSize <= 0 {
		errs = append(errs, fmt.Sprintf("analysis.cell_size must be > 0, got %v", a.CellSize))
	}
	if a.BufferRadius <= 0 {
		errs = append(errs, fmt.Sprintf("analysis.buffer_radius must be > 0, got %v", a.BufferRadius))
	}
	if a.KDEResolution < 2 {
		errs = append(errs, fmt.Sprintf("analysis.kde_resolution must be >= 2, got %d", a.KDEResolution))
	}
	if a.HighPotentialQuantile <= 0 || a.HighPotentialQuantile > 1 {
		errs = append(errs, fmt.Sprintf("analysis.high_potential_quantile must be in (0, 1], got %v", a.HighPotentialQuantile))
	}
	if a.Workers < 1 || a.Workers > 256 {
		errs = append(errs, fmt.Sprintf("analysis.workers must be between 1 and 256, got %d", a.Workers))
	}
	if a.SourcesPerCategory < 0 {
		errs = append(errs, fmt.Sprintf("analysis.sources_per_category must be >= 0, got %d", a.SourcesPerCategory))
	}
	switch strings.ToLower(a.Season) {
	case "", "summer", "winter":
	default:
		errs = append(errs, fmt.Sprintf("analysis.season must be summer or winter, got %q", a.Season))
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.SRID <= 0 {
		errs = append(errs, fmt.Sprintf("store.srid must be > 0, got %d", c.Store.SRID))
	}
	return errs
}

// RunParams converts the analysis section into the parameters recorded
// with a run.
func (a AnalysisConfig) RunParams() model.RunParams {
	var cats []model.Category
	for _, s := range a.SourceCategories {
		cats = append(cats, model.ParseCategory(s))
	}
	return model.RunParams{
		Budgets:            append([]float64(nil), a.Budgets...),
		WalkingSpeedKMPH:   a.WalkingSpeedKMPH,
		MaxSnapDistance:    a.MaxSnapDistance,
		CellSize:           a.CellSize,
		BufferRadius:       a.BufferRadius,
		KDEResolution:      a.KDEResolution,
		Quantile:           a.HighPotentialQuantile,
		Workers:            a.Workers,
		Season:             strings.ToLower(a.Season),
		SourceCategories:   cats,
		SourcesPerCategory: a.SourcesPerCategory,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
