package pavolmon

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MixyLabs/pavolmon/pkg/pavolmon/util"
)

// ConfigManager loads the user config and keeps the log level in sync with it
type ConfigManager struct {
	logger *zap.SugaredLogger
	level  zap.AtomicLevel

	stopWatcherChannel chan struct{}
	stopOnce           sync.Once

	userConfig *viper.Viper

	current Config
}

// Config is the canonized user configuration
type Config struct {
	Server     string `mapstructure:"server"`
	ClientName string `mapstructure:"client_name"`

	Format string `mapstructure:"format"`
	Labels Labels `mapstructure:"labels"`

	LogLevel string `mapstructure:"log_level"`

	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ConnectRetryInterval time.Duration `mapstructure:"connect_retry_interval"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	ProbeInterval        time.Duration `mapstructure:"probe_interval"`

	NotifyOnFailure bool `mapstructure:"notify_on_failure"`
}

// PulseOptions derives the connection options from the config
func (c Config) PulseOptions() PulseOptions {
	return PulseOptions{
		Server:               c.Server,
		ClientName:           c.ClientName,
		ConnectTimeout:       c.ConnectTimeout,
		ConnectRetryInterval: c.ConnectRetryInterval,
		RequestTimeout:       c.RequestTimeout,
		ProbeInterval:        c.ProbeInterval,
	}
}

const (
	userConfigName = "config"
	configType     = "yaml"
	envPrefix      = "PAVOLMON"

	configKeyServer               = "server"
	configKeyClientName           = "client_name"
	configKeyFormat               = "format"
	configKeyLabelsSpeaker        = "labels.speaker"
	configKeyLabelsSpeakerMuted   = "labels.speaker_muted"
	configKeyLabelsMic            = "labels.mic"
	configKeyLabelsMicMuted       = "labels.mic_muted"
	configKeyLogLevel             = "log_level"
	configKeyConnectTimeout       = "connect_timeout"
	configKeyConnectRetryInterval = "connect_retry_interval"
	configKeyRequestTimeout       = "request_timeout"
	configKeyProbeInterval        = "probe_interval"
	configKeyNotifyOnFailure      = "notify_on_failure"
)

var knownLogLevels = []string{"debug", "info", "warn", "error"}

// NewConfig prepares a ConfigManager searching the given directories for config.yaml.
// Without directories the XDG config locations are used.
func NewConfig(logger *zap.SugaredLogger, level zap.AtomicLevel, searchPaths ...string) (*ConfigManager, error) {
	logger = logger.Named("config")

	cc := &ConfigManager{
		logger:             logger,
		level:              level,
		stopWatcherChannel: make(chan struct{}),
	}

	if len(searchPaths) == 0 {
		searchPaths = util.ConfigDirs(appName)
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	for _, path := range searchPaths {
		userConfig.AddConfigPath(path)
	}

	// PAVOLMON_FORMAT, PAVOLMON_LABELS_SPEAKER and so on
	userConfig.SetEnvPrefix(envPrefix)
	userConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	userConfig.AutomaticEnv()

	userConfig.SetDefault(configKeyServer, "")
	userConfig.SetDefault(configKeyClientName, appName)
	userConfig.SetDefault(configKeyFormat, FormatPercent)
	userConfig.SetDefault(configKeyLabelsSpeaker, DefaultLabels.Speaker)
	userConfig.SetDefault(configKeyLabelsSpeakerMuted, DefaultLabels.SpeakerMuted)
	userConfig.SetDefault(configKeyLabelsMic, DefaultLabels.Mic)
	userConfig.SetDefault(configKeyLabelsMicMuted, DefaultLabels.MicMuted)
	userConfig.SetDefault(configKeyLogLevel, "info")
	userConfig.SetDefault(configKeyConnectTimeout, 30*time.Second)
	userConfig.SetDefault(configKeyConnectRetryInterval, time.Second)
	userConfig.SetDefault(configKeyRequestTimeout, 5*time.Second)
	userConfig.SetDefault(configKeyProbeInterval, 5*time.Second)
	userConfig.SetDefault(configKeyNotifyOnFailure, false)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Load reads the config file (if there is one) and applies the log level
func (cc *ConfigManager) Load() error {
	cc.logger.Debug("Loading config")

	// the config file is optional, defaults and env are enough
	if err := cc.userConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cc.logger.Warnw("Viper failed to read user config", "error", err)
			return fmt.Errorf("read user config: %w", err)
		}

		cc.logger.Debugw("No config file found, using defaults", "reminder", "this is fine")
	}

	config, err := cc.decode()
	if err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.current = config
	cc.applyLogLevel(config.LogLevel)

	cc.logger.Infow("Loaded config successfully", "path", cc.userConfig.ConfigFileUsed())
	cc.logger.Infow("Config values",
		"format", config.Format,
		"labels", config.Labels,
		"server", config.Server,
		"logLevel", config.LogLevel)

	return nil
}

// Current returns the config as of the last successful Load
func (cc *ConfigManager) Current() Config {
	return cc.current
}

// WatchConfigFileChanges re-applies the log level whenever the config file
// changes. Everything else is fixed at startup. Blocks until stopped, and
// returns right away if stopped already.
func (cc *ConfigManager) WatchConfigFileChanges() {
	path := cc.userConfig.ConfigFileUsed()
	if path == "" {
		cc.logger.Debug("No config file in use, not watching")
		return
	}

	select {
	case <-cc.stopWatcherChannel:
		cc.logger.Debug("Config watcher stopped before it started")
		return
	default:
	}

	cc.logger.Debugw("Starting to watch user config file for changes", "path", path)

	const minTimeBetweenReloadAttempts = time.Millisecond * 500

	var lastAttemptedReload time.Time

	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}

		// many editors write the file twice
		now := time.Now()
		if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).After(now) {
			return
		}
		lastAttemptedReload = now

		cc.logger.Debugw("Config file modified, attempting reload", "event", event)

		config, err := cc.decode()
		if err != nil {
			cc.logger.Warnw("Failed to reload config file", "error", err)
			return
		}

		cc.applyLogLevel(config.LogLevel)
		cc.logger.Infow("Reloaded config successfully", "logLevel", config.LogLevel)
	})
	cc.userConfig.WatchConfig()

	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(func(fsnotify.Event) {})
}

// StopWatchingConfigFile signals our filesystem watcher to stop. Safe to call
// before the watcher starts and more than once.
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopOnce.Do(func() {
		close(cc.stopWatcherChannel)
	})
}

func (cc *ConfigManager) decode() (Config, error) {
	var config Config

	err := cc.userConfig.Unmarshal(&config, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = true
		dConf.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	})
	if err != nil {
		return Config{}, err
	}

	config.Format = strings.ToLower(config.Format)
	config.LogLevel = strings.ToLower(config.LogLevel)

	if err := validateConfig(config); err != nil {
		return Config{}, err
	}

	cc.logger.Debug("Populated config fields from viper")

	return config, nil
}

func validateConfig(config Config) error {
	if !funk.ContainsString(KnownFormats, config.Format) {
		return fmt.Errorf("invalid format %q (must be one of %s)", config.Format, strings.Join(KnownFormats, ", "))
	}

	if !funk.ContainsString(knownLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level %q (must be one of %s)", config.LogLevel, strings.Join(knownLogLevels, ", "))
	}

	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", config.RequestTimeout)
	}

	if config.ConnectRetryInterval <= 0 {
		return fmt.Errorf("connect_retry_interval must be positive, got %s", config.ConnectRetryInterval)
	}

	if config.ConnectTimeout < 0 || config.ProbeInterval < 0 {
		return errors.New("connect_timeout and probe_interval must not be negative")
	}

	return nil
}

func (cc *ConfigManager) applyLogLevel(level string) {
	var parsed zapcore.Level
	if err := parsed.Set(level); err != nil {
		cc.logger.Warnw("Ignoring invalid log level", "level", level, "error", err)
		return
	}

	if cc.level.Level() != parsed {
		cc.logger.Debugw("Changing log level", "from", cc.level.Level(), "to", parsed)
		cc.level.SetLevel(parsed)
	}
}
