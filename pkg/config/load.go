package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/fundingscape/pkg/errors"
)

// EnvPrefix prefixes every environment override: FUNDINGSCAPE_PIPELINE_CONCURRENCY.
const EnvPrefix = "FUNDINGSCAPE"

// Load builds the configuration in order of precedence:
// 1. Environment variables (FUNDINGSCAPE_*)
// 2. .env.local, then .env
// 3. Config file (file, else ./.fundingscape.yaml, else ~/.fundingscape.yaml)
// 4. Defaults
//
// Command-line flags are applied by the caller on the returned Config.
// A missing default config file is not an error; a missing explicit one is.
func Load(file string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".fundingscape")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !stderrors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "read "+configName(v, file), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("config", "decode", err)
	}
	cfg.Cache.Location = ExpandHome(cfg.Cache.Location)
	if cfg.Store.Path != ":memory:" {
		cfg.Store.Path = ExpandHome(cfg.Store.Path)
	}
	return cfg, nil
}

func configName(v *viper.Viper, file string) string {
	if used := v.ConfigFileUsed(); used != "" {
		return used
	}
	return file
}

// setDefaults registers every key so that environment overrides apply to
// keys the config file never mentions.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("cache.location", d.Cache.Location)
	v.SetDefault("cache.s3.region", d.Cache.S3.Region)
	v.SetDefault("cache.s3.endpoint", d.Cache.S3.Endpoint)
	v.SetDefault("cache.s3.path_style", d.Cache.S3.PathStyle)
	v.SetDefault("cache.s3.access_key_id", d.Cache.S3.AccessKeyID)
	v.SetDefault("cache.s3.secret_access_key", d.Cache.S3.SecretAccessKey)

	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("pipeline.rejection_threshold", d.Pipeline.RejectionThreshold)
	v.SetDefault("pipeline.http_timeout", d.Pipeline.HTTPTimeout)
	v.SetDefault("pipeline.user_agent", d.Pipeline.UserAgent)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)

	v.SetDefault("dedup.similarity_threshold", d.Dedup.SimilarityThreshold)
	v.SetDefault("dedup.amount_tolerance", d.Dedup.AmountTolerance)
	v.SetDefault("dedup.date_tolerance", d.Dedup.DateTolerance)

	v.SetDefault("priority", d.Priority)
	v.SetDefault("metrics.file", d.Metrics.File)

	for name, s := range d.Sources {
		prefix := "sources." + name + "."
		v.SetDefault(prefix+"enabled", s.Enabled)
		v.SetDefault(prefix+"delay", s.Delay)
		v.SetDefault(prefix+"max_records", s.MaxRecords)
		v.SetDefault(prefix+"url", s.URL)
	}
}

// loadEnvFiles loads .env files without overriding the real environment.
// .env.local is loaded first so its values win over .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
