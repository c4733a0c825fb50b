package config

import (
	"errors"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/subosito/gotenv"
)

// DefaultEnvFile is loaded when present and TRENDSCOPE_ENV_FILE is unset
const DefaultEnvFile = ".env"

// LoadEnvFile reads KEY=VALUE pairs into the process environment. It must
// run before flags are parsed because flag sources read the environment.
// Variables that are already set are not overridden.
func LoadEnvFile() error {
	path := os.Getenv("TRENDSCOPE_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return goerr.Wrap(ErrConfigNotFound, "env file not found", goerr.V(ConfigPathKey, path))
	}

	if err := gotenv.Load(path); err != nil {
		return goerr.Wrap(err, "failed to load env file", goerr.V(ConfigPathKey, path))
	}
	return nil
}
