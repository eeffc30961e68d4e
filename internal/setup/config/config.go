package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// Current version of the config files.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
}

// CommonConfig contains configuration shared between the bot and any tooling.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Automod    Automod    `koanf:"automod"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Request timeout for Discord REST calls in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Discord bot token.
	Token string `koanf:"token"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum number of log sessions to keep on disk.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Enable pprof debugging endpoints.
	EnablePprof bool `koanf:"enable_pprof"`
	// Port for the pprof and metrics HTTP listener.
	MetricsPort int `koanf:"metrics_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	DBName       string `koanf:"db_name"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	// Connection max lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	// Use the Redis-backed counter store instead of the in-memory one.
	// Only needed when multiple bot processes share enforcement state.
	SharedCounters bool `koanf:"shared_counters"`
}

// Automod contains tunable defaults for the moderation engine. All durations
// are in seconds. These are deployment defaults; guild configuration stored in
// the database overrides most of them per rule.
type Automod struct {
	// Sliding window applied to rate rules when a guild rule has no
	// explicit window.
	DefaultWindow int `koanf:"default_window"`
	// Cooldown between two enforcement actions for the same subject and
	// rule for single-message rules.
	FireCooldown int `koanf:"fire_cooldown"`
	// Mute duration for single-message rules (caps, links, mentions, ...).
	MuteDuration int `koanf:"mute_duration"`
	// Mute duration for the spam and repeat rules.
	SpamMuteDuration int `koanf:"spam_mute_duration"`
	// Slowmode applied to a channel during a message flood.
	SlowmodeSeconds int `koanf:"slowmode_seconds"`
	// Delay before an automatic slowmode is reverted.
	SlowmodeRevert int `koanf:"slowmode_revert"`
	// Guild-wide message threshold that escalates a spam violation into
	// a channel slowmode.
	FloodThreshold int `koanf:"flood_threshold"`
	// Window for the guild-wide flood threshold.
	FloodWindow int `koanf:"flood_window"`
	// How long loaded guild configuration stays cached before it is
	// re-read from the database.
	ConfigCacheTTL int `koanf:"config_cache_ttl"`
}

// LoadConfig loads the configuration from TOML files and returns the parsed
// Config along with the directory the files were found in.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "bot"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	config.Common.Automod.applyDefaults()

	return &config, usedConfigPath, nil
}

// checkConfigVersion validates the version of a config file.
func checkConfigVersion(name string, version, expected int) error {
	if version == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if version != expected {
		return fmt.Errorf(
			"%w: %s.toml (expected: %d, got: %d)\nplease update your config file with the latest changes",
			ErrConfigVersionMismatch, name, expected, version,
		)
	}

	return nil
}

// applyDefaults fills in zero-valued automod settings. The values are tuning
// defaults, not invariants.
func (a *Automod) applyDefaults() {
	setIfZero(&a.DefaultWindow, 10)
	setIfZero(&a.FireCooldown, 20)
	setIfZero(&a.MuteDuration, 20)
	setIfZero(&a.SpamMuteDuration, 120)
	setIfZero(&a.SlowmodeSeconds, 5)
	setIfZero(&a.SlowmodeRevert, 300)
	setIfZero(&a.FloodThreshold, 30)
	setIfZero(&a.FloodWindow, 10)
	setIfZero(&a.ConfigCacheTTL, 300)
}

func setIfZero(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
