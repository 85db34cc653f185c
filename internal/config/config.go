package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "GUILDKEEPER"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultStoragePath        = "data/storage.json"
	defaultTimezone           = "UTC+03:30"
	defaultLogLevel           = "info"
	defaultTokenTTLMinutes    = 60
	defaultXPLeaderboardSize  = 10
	defaultCupLeaderboardSize = 5
	defaultPollIntervalSecs   = 5
)

// AppConfig captures runtime configuration for the bot storage and its dashboard.
type AppConfig struct {
	HTTPAddress        string
	StoragePath        string
	BackupPath         string
	Timezone           string
	LogLevel           string
	LogFile            string
	AdminAPIKey        string
	SigningSecret      string
	TokenTTL           time.Duration
	OwnerID            int64
	XPLeaderboardSize  int
	CupLeaderboardSize int
	PollInterval       time.Duration
	WatchSnapshot      bool
}

// LoadDotEnv reads variables from the given .env files (".env" when none are
// named) without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("storage.backup_path", "")
	configViper.SetDefault("system.timezone", defaultTimezone)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("admin.api_key", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("owner.id", 0)
	configViper.SetDefault("xp.leaderboard_size", defaultXPLeaderboardSize)
	configViper.SetDefault("cups.leaderboard_size", defaultCupLeaderboardSize)
	configViper.SetDefault("snapshot.poll_interval_seconds", defaultPollIntervalSecs)
	configViper.SetDefault("snapshot.watch", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		StoragePath:        strings.TrimSpace(configViper.GetString("storage.path")),
		BackupPath:         strings.TrimSpace(configViper.GetString("storage.backup_path")),
		Timezone:           configViper.GetString("system.timezone"),
		LogLevel:           configViper.GetString("log.level"),
		LogFile:            strings.TrimSpace(configViper.GetString("log.file")),
		AdminAPIKey:        strings.TrimSpace(configViper.GetString("admin.api_key")),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		OwnerID:            configViper.GetInt64("owner.id"),
		XPLeaderboardSize:  configViper.GetInt("xp.leaderboard_size"),
		CupLeaderboardSize: configViper.GetInt("cups.leaderboard_size"),
		PollInterval:       time.Duration(configViper.GetInt("snapshot.poll_interval_seconds")) * time.Second,
		WatchSnapshot:      configViper.GetBool("snapshot.watch"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.BackupPath != "" && c.BackupPath == c.StoragePath {
		return fmt.Errorf("storage.backup_path must differ from storage.path")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.XPLeaderboardSize <= 0 {
		return fmt.Errorf("xp.leaderboard_size must be positive")
	}
	if c.CupLeaderboardSize <= 0 {
		return fmt.Errorf("cups.leaderboard_size must be positive")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("snapshot.poll_interval_seconds must not be negative")
	}
	return nil
}
