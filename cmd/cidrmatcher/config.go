package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// config is the resolved configuration for a cidrmatcher invocation,
// merged from (lowest to highest precedence) defaults, a YAML config file,
// and command-line flags.
type config struct {
	DataPath      string `mapstructure:"data"`
	CountryFilter string `mapstructure:"country"`
	LogLevel      string `mapstructure:"log-level"`
	CatalogJWT    string `mapstructure:"catalog-jwt"`
	CatalogSecret string `mapstructure:"catalog-secret"`
}

func loadConfig(v *viper.Viper, cfgFile string) (*config, error) {
	v.SetDefault("log-level", "info")
	v.SetEnvPrefix("CIDRMATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
