package logger

import (
	"fmt"
	"log/slog"
	"sort"
)

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LoggingConfigSpec configures the global logger.
// It mirrors config.LoggingConfig to avoid an import cycle.
type LoggingConfigSpec struct {
	Level        string
	Format       string
	CommonFields map[string]string
}

// Configure rebuilds DefaultLogger from cfg and installs it as the slog default.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}
	switch cfg.Format {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	keys := make([]string, 0, len(cfg.CommonFields))
	for k := range cfg.CommonFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	common := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		common = append(common, slog.String(k, cfg.CommonFields[k]))
	}

	mu.Lock()
	defer mu.Unlock()
	base := newBaseHandler(ParseLevel(cfg.Level), cfg.Format == FormatJSON)
	DefaultLogger = slog.New(NewContextHandler(base, common...))
	slog.SetDefault(DefaultLogger)
	return nil
}
