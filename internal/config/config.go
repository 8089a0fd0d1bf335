package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/erazemk/zavod/internal/model"
)

// Environments.
const (
	EnvDev        = "dev"
	EnvProduction = "production"
)

// EnvPrefix prefixes environment overrides, e.g. ZAVOD_HTTP_ADDR.
const EnvPrefix = "ZAVOD"

type Config struct {
	App struct {
		Env     string
		LogFile string `mapstructure:"log_file"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr            string
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Database struct {
		Path string
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Metrics struct {
		Enabled bool
		Addr    string
	} `mapstructure:"metrics"`

	Requisitions struct {
		AllowSelfApproval bool `mapstructure:"allow_self_approval"`
	} `mapstructure:"requisitions"`

	Pagination struct {
		DefaultPerPage int `mapstructure:"default_per_page"`
		MaxPerPage     int `mapstructure:"max_per_page"`
	} `mapstructure:"pagination"`
}

// IsDev reports whether the app runs in development mode.
func (c Config) IsDev() bool {
	return c.App.Env == EnvDev
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", EnvProduction)
	v.SetDefault("app.log_file", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "zavod.sqlite3")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("requisitions.allow_self_approval", true)
	v.SetDefault("pagination.default_per_page", model.DefaultPerPage)
	v.SetDefault("pagination.max_per_page", model.MaxPerPage)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"db":   "database.path",
	"addr": "http.addr",
}

// Load reads configuration from, in increasing priority: defaults, the YAML
// file at path (optional), a .env file in the working directory, ZAVOD_*
// environment variables, and flags that were set on the command line.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	var c Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return c, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks value ranges that decoding cannot.
func (c Config) Validate() error {
	var problems []string
	if c.App.Env != EnvDev && c.App.Env != EnvProduction {
		problems = append(problems, fmt.Sprintf("app.env must be %q or %q", EnvDev, EnvProduction))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}
	if c.Pagination.DefaultPerPage < 1 || c.Pagination.DefaultPerPage > c.Pagination.MaxPerPage {
		problems = append(problems, "pagination.default_per_page must be between 1 and pagination.max_per_page")
	}
	if c.Pagination.MaxPerPage > model.MaxPerPage {
		problems = append(problems, fmt.Sprintf("pagination.max_per_page must not exceed %d", model.MaxPerPage))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
