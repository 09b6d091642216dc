package goSession

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvPrefix prefixes every variable read by [ConfigFromEnv].
const DefaultEnvPrefix = "GOSESSION_"

// ConfigFromEnv returns the default config overridden by environment
// variables such as GOSESSION_BASE_URL or GOSESSION_REFRESH_TIMEOUT. The given
// dotenv files are loaded first without overriding variables already set; a
// missing file is ignored. An empty prefix uses [DefaultEnvPrefix].
//
// The result is not validated; Build does that.
func ConfigFromEnv(prefix string, dotenvFiles ...string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
