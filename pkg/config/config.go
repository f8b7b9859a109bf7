// Package config holds the server configuration for condeval serve.
//
// Values are resolved in three steps: struct tag defaults, then environment
// variables, then explicitly set command line flags. The result is validated
// before use.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// Config is the resolved server configuration.
type Config struct {
	Host     string `mapstructure:"host" default:"0.0.0.0" validate:"required"`
	Port     int    `mapstructure:"port" default:"8787" validate:"gte=1,lte=65535"`
	GRPCPort int    `mapstructure:"grpc_port" default:"8788" validate:"gte=1,lte=65535,nefield=Port"`
	RulesDir string `mapstructure:"rules_dir" validate:"omitempty,dir"`
	LogLevel string `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

// EnvVars maps environment variable names to configuration keys.
var EnvVars = map[string]string{
	"HOST":      "host",
	"PORT":      "port",
	"GRPC_PORT": "grpc_port",
	"RULES_DIR": "rules_dir",
	"LOG_LEVEL": "log_level",
}

// Load resolves the configuration. lookupEnv is usually os.LookupEnv;
// overrides holds the flags the user set explicitly, keyed like EnvVars
// values.
func Load(lookupEnv func(string) (string, bool), overrides map[string]any) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	raw := make(map[string]any)
	if lookupEnv != nil {
		for env, key := range EnvVars {
			if v, ok := lookupEnv(env); ok && v != "" {
				raw[key] = v
			}
		}
	}
	for k, v := range overrides {
		raw[k] = v
	}

	if len(raw) > 0 {
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(raw)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %v (rule: %s)", fe.Field(), fe.Value(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GRPCAddr is the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.GRPCPort))
}

// SlogLevel converts LogLevel for slog handlers.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
