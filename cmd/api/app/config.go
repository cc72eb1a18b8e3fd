package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/qiuhuiming/titan-track/internal/config"
	"github.com/qiuhuiming/titan-track/internal/logging"
)

// flagBindings maps command flags onto the environment keys they override.
var flagBindings = map[string]string{
	"log-level":  "LOG_LEVEL",
	"log-format": "LOG_FORMAT",
	"address":    "HTTP_ADDRESS",
	"store":      "STORE_DRIVER",
	"postgres":   "POSTGRES_URL",
}

// loadConfig resolves configuration from the environment plus any flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return config.Config{}, nil, err
	}
	cfg := config.FromViper(v)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}
