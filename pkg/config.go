package pkg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultWorkers is the number of concurrent metadata readers.
const DefaultWorkers = 4

// Config holds the settings of one run. Values come, in decreasing priority,
// from command-line flags, EXIFRENAME_* environment variables, an optional
// YAML config file and the defaults below.
type Config struct {
	// Folder is the positional argument; it is never read from files or env.
	Folder string `mapstructure:"-"`

	DryRun  bool   `mapstructure:"dry_run"`
	Verbose bool   `mapstructure:"verbose"`
	Workers int    `mapstructure:"workers" validate:"min=1,max=64"`
	Prefix  string `mapstructure:"prefix" validate:"required,excludesall=/\\"`
	Report  string `mapstructure:"report"`

	// Checksum adds a SHA-256 of every file to the run report.
	Checksum bool `mapstructure:"checksum"`
}

// flagKeys maps config keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"dry_run":  "dry-run",
	"verbose":  "verbose",
	"workers":  "workers",
	"prefix":   "prefix",
	"report":   "report",
	"checksum": "checksum",
}

var validate = validator.New()

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Workers: DefaultWorkers,
		Prefix:  DefaultPrefix,
	}
}

// LoadConfig resolves the run configuration. configPath may be empty, in
// which case no file is read. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("dry_run", defaults.DryRun)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("prefix", defaults.Prefix)
	v.SetDefault("report", defaults.Report)
	v.SetDefault("checksum", defaults.Checksum)

	v.SetEnvPrefix("EXIFRENAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ValidateConfig checks cfg against its struct tags.
func ValidateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Field(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}
