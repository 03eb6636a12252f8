package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Success_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "dcraw", cfg.DcrawPath)
	require.Equal(t, 20_000_000, cfg.FullResPixelBudget)
	require.Equal(t, 500*time.Millisecond, cfg.HistoryDebounce)
	require.Equal(t, 100, cfg.HistoryCapacity)
	require.Equal(t, 100*time.Millisecond, cfg.HistogramInterval)
	require.Equal(t, 92, cfg.Export.Quality)
	require.Equal(t, "none", cfg.Export.Border)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("FIATLUX_DCRAW_PATH", "/opt/bin/dcraw")
	t.Setenv("FIATLUX_HISTORY_DEBOUNCE", "250ms")
	t.Setenv("FIATLUX_HISTORY_CAPACITY", "20")
	t.Setenv("FIATLUX_EXPORT_BORDER", "white")
	t.Setenv("FIATLUX_EXPORT_BORDER_WIDTH", "5")
	t.Setenv("FIATLUX_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/opt/bin/dcraw", cfg.DcrawPath)
	require.Equal(t, 250*time.Millisecond, cfg.HistoryDebounce)
	require.Equal(t, 20, cfg.HistoryCapacity)
	require.Equal(t, "white", cfg.Export.Border)
	require.InDelta(t, 5.0, cfg.Export.BorderWidth, 1e-9)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfig_ValidationError(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("FIATLUX_EXPORT_QUALITY", "0")

	cfg, err := LoadConfig(context.Background())
	require.Error(t, err)
	require.Nil(t, cfg)
}

func TestLoadConfig_File(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "fiatlux.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"FIATLUX_HISTORY_CAPACITY": 42, "FIATLUX_EXPORT_BORDER": "black"}`), 0o600))
	t.Setenv("FIATLUX_CONFIG", path)

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, cfg.HistoryCapacity)
	require.Equal(t, "black", cfg.Export.Border)
	require.Equal(t, path, cfg.ConfigFile)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("FIATLUX_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig(context.Background())
	require.Error(t, err)
}
