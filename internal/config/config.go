package config

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/race-sync/internal/model"
	"github.com/sells-group/race-sync/internal/sheet"
	"github.com/sells-group/race-sync/pkg/raceapi"
)

// ErrMissingAPIKey is returned by Validate when api.key is empty.
var ErrMissingAPIKey = raceapi.ErrMissingAPIKey

// Config holds the full application configuration.
type Config struct {
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Tracking   TrackingConfig   `yaml:"tracking" mapstructure:"tracking"`
	Races      RacesConfig      `yaml:"races" mapstructure:"races"`
	Columns    model.ColumnMap  `yaml:"columns" mapstructure:"columns"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	TEE        TEEConfig        `yaml:"tee" mapstructure:"tee"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Progress   ProgressConfig   `yaml:"progress" mapstructure:"progress"`
	TracksFile string           `yaml:"tracks_file" mapstructure:"tracks_file"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// APIConfig holds the backend race-data API settings.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	Source      string  `yaml:"source" mapstructure:"source"`
}

// TrackingConfig locates the DATABASE sheet.
type TrackingConfig struct {
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
	FirstDataRow int    `yaml:"first_data_row" mapstructure:"first_data_row"`
}

// RacesConfig bounds which races are processed.
type RacesConfig struct {
	MinNumber int `yaml:"min_number" mapstructure:"min_number"`
	MaxNumber int `yaml:"max_number" mapstructure:"max_number"`
	MaxHorses int `yaml:"max_horses" mapstructure:"max_horses"`
}

// NormalizeConfig sets the numeric ceilings.
type NormalizeConfig struct {
	SafeCeiling    float64 `yaml:"safe_ceiling" mapstructure:"safe_ceiling"`
	NumericCeiling float64 `yaml:"numeric_ceiling" mapstructure:"numeric_ceiling"`
}

// TEEConfig configures the TOTALS rollup.
type TEEConfig struct {
	TotalsSheet string   `yaml:"totals_sheet" mapstructure:"totals_sheet"`
	TotalsCells []string `yaml:"totals_cells" mapstructure:"totals_cells"`
}

// BatchConfig configures resumable batch runs.
type BatchConfig struct {
	BudgetSecs int `yaml:"budget_secs" mapstructure:"budget_secs"`
}

// ProgressConfig selects the job-state backend: sqlite, postgres or sheet.
type ProgressConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("RACESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.rate_per_sec", 5)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.source", "race-sync")
	v.SetDefault("tracking.sheet", "DATABASE")
	v.SetDefault("tracking.first_data_row", 2)
	v.SetDefault("races.min_number", 3)
	v.SetDefault("races.max_number", model.MaxRaceNumber)
	v.SetDefault("races.max_horses", model.MaxHorseNumber)
	setColumnDefaults(v, model.DefaultColumns())
	v.SetDefault("normalize.safe_ceiling", 1e15)
	v.SetDefault("normalize.numeric_ceiling", 1e10)
	v.SetDefault("tee.totals_sheet", "TOTALS")
	v.SetDefault("tee.totals_cells", []string{"B1", "C1", "D1", "E1"})
	v.SetDefault("batch.budget_secs", 330)
	v.SetDefault("progress.driver", "sqlite")
	v.SetDefault("progress.dsn", "race-sync.db")
	v.SetDefault("tracks_file", "tracks.yaml")
	v.SetDefault("server.port", 8080)
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

// setColumnDefaults registers every column offset so env overrides such as
// RACESYNC_COLUMNS_WILL_PAY_2 are picked up by Unmarshal.
func setColumnDefaults(v *viper.Viper, c model.ColumnMap) {
	for key, val := range map[string]int{
		"horse":         c.Horse,
		"double":        c.Double,
		"constant":      c.Constant,
		"p3":            c.P3,
		"correct_p3":    c.CorrectP3,
		"ml":            c.ML,
		"live_odds":     c.LiveOdds,
		"sharp_percent": c.SharpPercent,
		"action":        c.Action,
		"double_delta":  c.DoubleDelta,
		"p3_delta":      c.P3Delta,
		"will_pay_2":    c.WillPay2,
		"x_figure":      c.XFigure,
		"will_pay_1_p3": c.WillPay1P3,
		"win_pool":      c.WinPool,
		"veto_rating":   c.VetoRating,
		"will_pay":      c.WillPay,
	} {
		v.SetDefault("columns."+key, val)
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.Key) == "" {
		return eris.Wrap(ErrMissingAPIKey, "config: api.key")
	}
	if c.API.BaseURL == "" {
		return eris.New("config: api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return eris.Errorf("config: api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	return c.ValidateOffline()
}

// ValidateOffline checks everything except the API settings, for commands
// that only touch local workbooks.
func (c *Config) ValidateOffline() error {
	if strings.TrimSpace(c.Tracking.Sheet) == "" {
		return eris.New("config: tracking.sheet is required")
	}
	if c.Tracking.FirstDataRow < 2 {
		return eris.Errorf("config: tracking.first_data_row must be at least 2, got %d", c.Tracking.FirstDataRow)
	}
	if c.Races.MinNumber < 1 || c.Races.MinNumber > c.Races.MaxNumber {
		return eris.Errorf("config: races.min_number (%d) must be between 1 and races.max_number (%d)",
			c.Races.MinNumber, c.Races.MaxNumber)
	}
	if c.Races.MaxHorses < 1 || c.Races.MaxHorses > model.MaxHorseNumber {
		return eris.Errorf("config: races.max_horses must be between 1 and %d", model.MaxHorseNumber)
	}
	for _, ref := range c.TEE.TotalsCells {
		if _, _, err := sheet.ParseA1(ref); err != nil {
			return eris.Wrapf(err, "config: tee.totals_cells %q", ref)
		}
	}
	switch c.Progress.Driver {
	case "sqlite", "postgres":
		if c.Progress.DSN == "" {
			return eris.Errorf("config: progress.dsn is required for driver %s", c.Progress.Driver)
		}
	case "sheet":
	default:
		return eris.Errorf("config: unknown progress.driver %q", c.Progress.Driver)
	}
	return nil
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
