// Package config loads the process configuration from a YAML file.
package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Feed        FeedConfig         `yaml:"feed"`
	Instruments []InstrumentConfig `yaml:"instruments" validate:"required,min=1,dive"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type FeedConfig struct {
	Symbols []string `yaml:"symbols" validate:"required,min=1"`
}

// InstrumentConfig seeds one tradeable instrument at startup.
type InstrumentConfig struct {
	Symbol      string `yaml:"symbol" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	ProductType string `yaml:"product_type" validate:"required,oneof=spot cfd futures"`
	BaseAsset   string `yaml:"base_asset" validate:"required"`
	QuoteAsset  string `yaml:"quote_asset" validate:"required"`
	MaxLeverage int    `yaml:"max_leverage" validate:"gte=1"`
	IsTradeable bool   `yaml:"is_tradeable"`
}

// Instrument converts the seed entry to the domain type.
func (c InstrumentConfig) Instrument() types.Instrument {
	return types.Instrument{
		Symbol:      c.Symbol,
		Name:        c.Name,
		ProductType: types.ProductType(c.ProductType),
		BaseAsset:   c.BaseAsset,
		QuoteAsset:  c.QuoteAsset,
		MaxLeverage: c.MaxLeverage,
		IsTradeable: c.IsTradeable,
	}
}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	cfg := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "exchange.db"},
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	return nil
}
