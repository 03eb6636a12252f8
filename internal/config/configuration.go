// Package config loads fiatlux settings from the environment and an optional config file.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// ConfigFile is an optional path to a file in any format viper reads.
	ConfigFile string `mapstructure:"FIATLUX_CONFIG"`

	// RAW conversion
	DcrawPath          string `mapstructure:"FIATLUX_DCRAW_PATH" validate:"required"`
	FullResPixelBudget int    `mapstructure:"FIATLUX_FULLRES_PIXEL_BUDGET" validate:"gt=0"`

	// Editing
	HistoryDebounce   time.Duration `mapstructure:"FIATLUX_HISTORY_DEBOUNCE" validate:"gt=0"`
	HistoryCapacity   int           `mapstructure:"FIATLUX_HISTORY_CAPACITY" validate:"min=2,max=10000"`
	AutosaveDebounce  time.Duration `mapstructure:"FIATLUX_AUTOSAVE_DEBOUNCE" validate:"gt=0"`
	HistogramInterval time.Duration `mapstructure:"FIATLUX_HISTOGRAM_INTERVAL" validate:"gte=0"`

	// Rendering
	Workers int `mapstructure:"FIATLUX_WORKERS" validate:"gte=0"`

	Export ExportConfig `mapstructure:",squash"`

	LogLevel string `mapstructure:"FIATLUX_LOG_LEVEL" validate:"oneof=debug info warn error"`
}

type ExportConfig struct {
	Quality     int     `mapstructure:"FIATLUX_EXPORT_QUALITY" validate:"min=1,max=100"`
	Border      string  `mapstructure:"FIATLUX_EXPORT_BORDER" validate:"oneof=none white black"`
	BorderWidth float64 `mapstructure:"FIATLUX_EXPORT_BORDER_WIDTH" validate:"gte=0,lte=20"`
	MaxEdge     uint    `mapstructure:"FIATLUX_EXPORT_MAX_EDGE"`
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		embedded := tag == "" || strings.HasPrefix(tag, ",")
		if !embedded {
			_ = viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && embedded {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedTag := nestedTyp.Field(j).Tag.Get("mapstructure")
				if nestedTag != "" {
					_ = viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func setDefaults() {
	viper.SetDefault("FIATLUX_DCRAW_PATH", "dcraw")
	viper.SetDefault("FIATLUX_FULLRES_PIXEL_BUDGET", 20_000_000)
	viper.SetDefault("FIATLUX_HISTORY_DEBOUNCE", 500*time.Millisecond)
	viper.SetDefault("FIATLUX_HISTORY_CAPACITY", 100)
	viper.SetDefault("FIATLUX_AUTOSAVE_DEBOUNCE", 500*time.Millisecond)
	viper.SetDefault("FIATLUX_HISTOGRAM_INTERVAL", 100*time.Millisecond)
	viper.SetDefault("FIATLUX_WORKERS", 0)
	viper.SetDefault("FIATLUX_EXPORT_QUALITY", 92)
	viper.SetDefault("FIATLUX_EXPORT_BORDER", "none")
	viper.SetDefault("FIATLUX_EXPORT_BORDER_WIDTH", 0.0)
	viper.SetDefault("FIATLUX_EXPORT_MAX_EDGE", 0)
	viper.SetDefault("FIATLUX_LOG_LEVEL", "info")
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()
	setDefaults()

	if path := viper.GetString("FIATLUX_CONFIG"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.DebugContext(ctx, "Loaded configuration", "config", cfg)

	return &cfg, nil
}
