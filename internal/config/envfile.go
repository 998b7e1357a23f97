package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Keys recognized in an env file.
const (
	EnvParallel   = "SNRETRIEVE_PARALLEL"
	EnvCopy       = "SNRETRIEVE_COPY"
	EnvGlacier    = "SNRETRIEVE_GLACIER"
	EnvTimeout    = "SNRETRIEVE_TIMEOUT"
	EnvBinDir     = "SNRETRIEVE_BIN_DIR"
	EnvFSRetrieve = "SNRETRIEVE_FSRETRIEVE"
	EnvFSFileInfo = "SNRETRIEVE_FSFILEINFO"
)

// LoadEnvFile reads KEY=VALUE pairs from path and layers the recognized
// keys over cfg. Unknown keys are ignored so one env file can be shared
// with other site scripts.
func LoadEnvFile(cfg *Config, path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("(config-godotenv) %w", err)
	}
	return ApplyEnv(cfg, env)
}

// ApplyEnv layers recognized keys from env over cfg.
func ApplyEnv(cfg *Config, env map[string]string) error {
	if v, ok := env[EnvParallel]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallel, err)
		}
		cfg.Defaults.Parallel = &n
	}
	if v, ok := env[EnvCopy]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCopy, err)
		}
		cfg.Defaults.Copy = &n
	}
	if v, ok := env[EnvTimeout]; ok {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Defaults.Timeout = &v
	}
	setString(env, EnvGlacier, &cfg.Defaults.Glacier)
	setString(env, EnvBinDir, &cfg.StorNext.BinDir)
	setString(env, EnvFSRetrieve, &cfg.StorNext.FSRetrieve)
	setString(env, EnvFSFileInfo, &cfg.StorNext.FSFileInfo)
	return nil
}

func setString(env map[string]string, key string, dst **string) {
	if v, ok := env[key]; ok {
		*dst = &v
	}
}
