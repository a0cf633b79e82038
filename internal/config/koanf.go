package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

const (
	// EnvPrefix prefixes every environment override, e.g. HOTELRES_SERVER__PORT.
	EnvPrefix = "HOTELRES_"

	// ConfigPathEnvVar overrides the config file location.
	ConfigPathEnvVar = "HOTELRES_CONFIG"

	// DefaultConfigPath is used when neither a flag nor the env var names a file.
	DefaultConfigPath = "config/config.yaml"
)

// sliceConfigPaths are list-valued keys that may arrive from the environment
// as comma separated strings.
var sliceConfigPaths = []string{
	"data_processing.drop_columns",
	"data_processing.categorical_columns",
	"data_processing.numerical_columns",
	"data_processing.selectable_features",
	"model_training.boosting_type",
	"server.cors_origins",
}

// Load builds the configuration from defaults, the YAML file at path (or the
// resolved default location) and the environment, then validates it.
// An explicitly named file must exist; the default location is optional.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configPath)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// findConfigFile picks the flag value, then HOTELRES_CONFIG, then the default
// path if it exists.
func findConfigFile(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(ConfigPathEnvVar)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", errors.Wrapf(err, "config file %s", p)
		}
		return p, nil
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath, nil
	}
	return "", nil
}

// envTransformFunc maps HOTELRES_SERVER__PORT to server.port. Double
// underscores separate levels; single underscores are part of the key.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return errors.Wrapf(err, "failed to set %s", path)
		}
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render configuration")
	}
	return out, nil
}
