package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
)

var (
	ErrInvalidSaveInterval = errors.New("economy.save_interval must be positive")
	ErrUnknownDriver       = errors.New("storage.driver must be one of postgres, mysql, sqlite")
	ErrInvalidTradeAmount  = fmt.Errorf("economy.max_trade_amount must be between 1 and %d", pricing.MaxTradeAmount)
)

type AppConfig struct {
	API      *APIConfig      `mapstructure:"api"`
	Gin      *GinConfig      `mapstructure:"gin"`
	Storage  *StorageConfig  `mapstructure:"storage"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
	Economy  *EconomyConfig  `mapstructure:"economy"`
}

type APIConfig struct {
	Environment        string   `mapstructure:"environment"`
	Port               string   `mapstructure:"port"`
	BaseURL            string   `mapstructure:"base_url"`
	AllowedCORSDomains []string `mapstructure:"allowed_cors_domains"`
	JWTSigningKey      string   `mapstructure:"jwt_signing_key"`
}

type GinConfig struct {
	Mode string `mapstructure:"mode"`
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"sslmode"`
}

type EconomyConfig struct {
	SaveInterval     time.Duration `mapstructure:"save_interval"`
	PopulateDatabase bool          `mapstructure:"populate_database"`
	PopulateItems    []string      `mapstructure:"populate_items"`
	MaxItemsEnabled  bool          `mapstructure:"max_items_enabled"`
	MaxItemsPerBuy   int64         `mapstructure:"max_items_per_buy"`
	MaxTradeAmount   int64         `mapstructure:"max_trade_amount"`
	DecayAmount      int64         `mapstructure:"decay_amount"`
	DecayInterval    time.Duration `mapstructure:"decay_interval"`
	DecayType        string        `mapstructure:"decay_type"`
}

// DecayPolicy returns the decay defaults for new products. Validate has
// already rejected unknown types.
func (c *EconomyConfig) DecayPolicy() domain.DecayPolicy {
	typ, err := domain.ParseDecayType(c.DecayType)
	if err != nil {
		typ = domain.DecayConstant
	}
	return domain.DecayPolicy{
		Amount:   c.DecayAmount,
		Interval: c.DecayInterval,
		Type:     typ,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.environment", "development")
	v.SetDefault("api.port", "8080")
	v.SetDefault("gin.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.timeout", 5*time.Second)
	v.SetDefault("postgres.sslmode", "disable")

	def := domain.DefaultDecayPolicy()
	v.SetDefault("economy.save_interval", 5*time.Minute)
	v.SetDefault("economy.populate_database", false)
	v.SetDefault("economy.max_items_enabled", false)
	v.SetDefault("economy.max_items_per_buy", 64)
	v.SetDefault("economy.max_trade_amount", pricing.DefaultTradeAmount)
	v.SetDefault("economy.decay_amount", def.Amount)
	v.SetDefault("economy.decay_interval", def.Interval)
	v.SetDefault("economy.decay_type", def.Type.String())
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*AppConfig, error) {
	conf := &AppConfig{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("v.Unmarshal -> %w", err)
	}

	if conf.Storage == nil {
		conf.Storage = &StorageConfig{}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		conf.Storage.DSN = url
	}

	return conf, nil
}

// Load reads the YAML file at path. Environment variables override file
// keys, with dots replaced by underscores (ECONOMY_SAVE_INTERVAL).
func Load(path string) (*AppConfig, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("v.ReadInConfig -> %w", err)
	}

	conf, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err = Validate(conf); err != nil {
		return nil, err
	}

	return conf, nil
}

func Validate(conf *AppConfig) error {
	if conf.API == nil || conf.Gin == nil || conf.Storage == nil || conf.Economy == nil {
		return errors.New("api, gin, storage and economy sections are required")
	}

	switch conf.Storage.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("%w, got %q", ErrUnknownDriver, conf.Storage.Driver)
	}
	if conf.Storage.Driver != "postgres" && conf.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %s", conf.Storage.Driver)
	}
	if conf.Storage.Driver == "postgres" && conf.Storage.DSN == "" && conf.Postgres == nil {
		return errors.New("postgres section or storage.dsn is required")
	}

	if conf.Economy.SaveInterval <= 0 {
		return ErrInvalidSaveInterval
	}
	if conf.Economy.MaxTradeAmount < 1 || conf.Economy.MaxTradeAmount > pricing.MaxTradeAmount {
		return ErrInvalidTradeAmount
	}
	if _, err := domain.ParseDecayType(conf.Economy.DecayType); err != nil {
		return fmt.Errorf("economy.decay_type -> %w", err)
	}
	if conf.Economy.DecayAmount < 0 || conf.Economy.DecayInterval < 0 {
		return errors.New("economy.decay_amount and economy.decay_interval must not be negative")
	}

	return nil
}
