package updater

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/troian/toml"
)

const (
	defaultCheckURL = "https://updates.lumen-desktop.org/check"

	minCheckIntervalSeconds = 3600.0
	minRetryIntervalSeconds = 60.0
)

// set in defaults_*.go on init
var (
	DefaultCfgPath string
	defaultLogPath string
	defaultDataDir string
	rootCertsPath  string
)

type Config struct {
	PidFile   string   `toml:"pid"`
	LogFile   string   `toml:"log"`
	LogSyslog string   `toml:"log_syslog"`
	LogLevel  LogLevel `toml:"log_level"`

	UpdateCheckURL string `toml:"update_check_url"`
	ReleaseChannel string `toml:"release_channel"`
	Language       string `toml:"language"`

	AutoCheck           bool `toml:"auto_check"`
	StartupNotification bool `toml:"startup_notification"`
	AllowUsageStats     bool `toml:"allow_usage_stats"`

	CheckInterval   float64 `toml:"check_interval"`
	RetryInterval   float64 `toml:"check_retry_interval"`
	CheckTimeout    float64 `toml:"check_timeout"`
	DownloadTimeout float64 `toml:"download_timeout"`

	HTTPProxy         string `toml:"http_proxy"`
	HTTPProxyUser     string `toml:"http_proxy_user"`
	HTTPProxyPassword string `toml:"http_proxy_password"`

	DataDir    string `toml:"data_dir"`
	UpdatesDir string `toml:"updates_dir"`
	StateFile  string `toml:"state_file"`
	TempDir    string `toml:"temp_dir"`
}

// MinValuableConfig is the minimal set of options written to a config file
// generated on first run.
type MinValuableConfig struct {
	LogLevel        LogLevel `toml:"log_level"`
	UpdateCheckURL  string   `toml:"update_check_url"`
	ReleaseChannel  string   `toml:"release_channel"`
	AutoCheck       bool     `toml:"auto_check"`
	AllowUsageStats bool     `toml:"allow_usage_stats"`
}

func NewConfig() *Config {
	return &Config{
		LogFile:             defaultLogPath,
		LogLevel:            LogLevelInfo,
		UpdateCheckURL:      defaultCheckURL,
		ReleaseChannel:      "stable",
		Language:            "en",
		AutoCheck:           true,
		StartupNotification: true,
		AllowUsageStats:     false,
		CheckInterval:       86400,
		RetryInterval:       600,
		CheckTimeout:        30,
		DownloadTimeout:     1800,
		DataDir:             defaultDataDir,
	}
}

func NewMinimumConfig() *MinValuableConfig {
	mvc := &MinValuableConfig{
		LogLevel:       LogLevelInfo,
		UpdateCheckURL: defaultCheckURL,
		ReleaseChannel: "stable",
		AutoCheck:      true,
	}

	if v := os.Getenv("LUMEN_UPDATE_URL"); v != "" {
		mvc.UpdateCheckURL = v
	}
	if v := os.Getenv("LUMEN_RELEASE_CHANNEL"); v != "" {
		mvc.ReleaseChannel = v
	}

	return mvc
}

func (cfg *Config) updatesDirPath() string {
	if cfg.UpdatesDir != "" {
		return cfg.UpdatesDir
	}
	return filepath.Join(cfg.DataDir, "updates")
}

func (cfg *Config) stateFilePath() string {
	if cfg.StateFile != "" {
		return cfg.StateFile
	}
	return filepath.Join(cfg.DataDir, "state.bin")
}

func (cfg *Config) tempDirPath() string {
	if cfg.TempDir != "" {
		return cfg.TempDir
	}
	return os.TempDir()
}

func (cfg *Config) DumpToml() string {
	buff := &bytes.Buffer{}
	if err := toml.NewEncoder(buff).Encode(cfg); err != nil {
		log.WithError(err).Error("failed to encode config to TOML")
		return ""
	}
	return buff.String()
}

// TryUpdateConfigFromFile applies the values of the TOML file at
// configFilePath on top of config.
func TryUpdateConfigFromFile(config *Config, configFilePath string) error {
	if _, err := os.Stat(configFilePath); err != nil {
		return err
	}

	_, err := toml.DecodeFile(configFilePath, config)
	return err
}

func GenerateDefaultConfigFile(mvc *MinValuableConfig, configFilePath string) error {
	if stat, err := os.Stat(configFilePath); err == nil && stat.IsDir() {
		return fmt.Errorf("config file path is a directory: %s", configFilePath)
	}

	configDir := filepath.Dir(configFilePath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create the config dir: '%s'", configDir)
	}

	f, err := os.OpenFile(configFilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create the default config file: '%s'", configFilePath)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(mvc); err != nil {
		return errors.Wrap(err, "failed to encode the default config")
	}

	return nil
}

// HandleAllConfigSetup prepares the config for the application to start: the
// file at configFilePath is loaded when present and generated with the
// minimal defaults when not.
func HandleAllConfigSetup(configFilePath string) (*Config, error) {
	cfg := NewConfig()

	err := TryUpdateConfigFromFile(cfg, configFilePath)
	if os.IsNotExist(errors.Cause(err)) {
		mvc := NewMinimumConfig()
		if err = GenerateDefaultConfigFile(mvc, configFilePath); err != nil {
			return nil, err
		}

		cfg.LogLevel = mvc.LogLevel
		cfg.UpdateCheckURL = mvc.UpdateCheckURL
		cfg.ReleaseChannel = mvc.ReleaseChannel
		cfg.AutoCheck = mvc.AutoCheck
		cfg.AllowUsageStats = mvc.AllowUsageStats
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", configFilePath)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.CheckInterval < minCheckIntervalSeconds {
		return fmt.Errorf("check_interval must be at least %.0f seconds", minCheckIntervalSeconds)
	}
	if cfg.RetryInterval < minRetryIntervalSeconds {
		return fmt.Errorf("check_retry_interval must be at least %.0f seconds", minRetryIntervalSeconds)
	}
	if cfg.CheckTimeout <= 0 {
		return fmt.Errorf("check_timeout must be positive")
	}
	if cfg.DownloadTimeout <= 0 {
		return fmt.Errorf("download_timeout must be positive")
	}

	if !cfg.LogLevel.IsValid() {
		log.Warnf("Invalid log level: \"%s\". Set to default: \"%s\"", cfg.LogLevel, LogLevelInfo)
		cfg.LogLevel = LogLevelInfo
	}

	if cfg.HTTPProxy != "" {
		if !strings.HasPrefix(cfg.HTTPProxy, "http://") && !strings.HasPrefix(cfg.HTTPProxy, "https://") {
			cfg.HTTPProxy = "http://" + cfg.HTTPProxy
		}
		if _, err := url.Parse(cfg.HTTPProxy); err != nil {
			return errors.Wrap(err, "failed to parse 'http_proxy' URL")
		}
	}

	return nil
}

func secToDuration(seconds float64) time.Duration {
	return time.Duration(int64(float64(time.Second) * seconds))
}
