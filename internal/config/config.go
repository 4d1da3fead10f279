package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "voltronic"

type Config struct {
	LogLevel zapcore.Level `mapstructure:"-"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
	// name or alias of the device plugin driving the inverter
	Plugin string `mapstructure:"plugin"`

	Device  DeviceConfig  `mapstructure:"device"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Plugins PluginsConfig `mapstructure:"plugins"`
}

type DeviceConfig struct {
	Interface          string
	BaudRate           int    `mapstructure:"baud_rate"`
	IsSerial           bool   `mapstructure:"is_serial"`
	SerialReadResponse bool   `mapstructure:"serial_read_response"`
	WriteTimeoutMillis uint32 `mapstructure:"write_timeout_millis"`
	ChunkDelayMillis   uint32 `mapstructure:"chunk_delay_millis"`
	ReadTimeoutMillis  uint32 `mapstructure:"read_timeout_millis"`
	QueueSize          int    `mapstructure:"queue_size"`
	VerifyChecksum     bool   `mapstructure:"verify_checksum"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	// six field quartz expression, seconds first
	SettingsCron string `mapstructure:"settings_cron"`
}

type PluginsConfig struct {
	Directory string
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c DeviceConfig) LinkConfig() voltronic.DeviceConfig {
	return voltronic.DeviceConfig{
		Interface:          c.Interface,
		BaudRate:           c.BaudRate,
		IsSerial:           c.IsSerial,
		SerialReadResponse: c.SerialReadResponse,
		WriteTimeout:       time.Duration(c.WriteTimeoutMillis) * time.Millisecond,
		ChunkDelay:         time.Duration(c.ChunkDelayMillis) * time.Millisecond,
		ReadTimeout:        time.Duration(c.ReadTimeoutMillis) * time.Millisecond,
	}
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("plugin", "axpert-king-5kw")
	v.SetDefault("device.interface", "/dev/hidraw0")
	v.SetDefault("device.baud_rate", 2400)
	v.SetDefault("device.is_serial", false)
	v.SetDefault("device.serial_read_response", false)
	v.SetDefault("device.write_timeout_millis", 2000)
	v.SetDefault("device.chunk_delay_millis", 160)
	v.SetDefault("device.read_timeout_millis", 5000)
	v.SetDefault("device.queue_size", voltronic.DEFAULT_QUEUE_SIZE)
	v.SetDefault("device.verify_checksum", true)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "voltronic")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("monitor.poll_interval_millis", 5000)
	v.SetDefault("monitor.settings_cron", "0 */5 * * * *")
	v.SetDefault("plugins.directory", "plugins")
}

// Load reads the configuration from the environment and, when CONFIG_FILE
// points to an existing file, from that YAML file.
func Load(v *viper.Viper) (*Config, error) {
	// alias PORT => VOLTRONIC_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv(strings.ToUpper(ENV_PREFIX)+"_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bounds and normalizes the MQTT topics in place.
func (cfg *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.Device.Interface == "" {
		return errors.New("config param device.interface is required")
	}
	if cfg.Device.BaudRate <= 0 {
		return errors.New("config param device.baud_rate should be > 0")
	}
	if cfg.Device.QueueSize <= 0 {
		return errors.New("config param device.queue_size should be > 0")
	}
	if cfg.Monitor.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if err := CheckCron(cfg.Monitor.SettingsCron); err != nil {
		return fmt.Errorf("config param monitor.settings_cron: %w", err)
	}
	if cfg.Plugin == "" {
		return errors.New("config param plugin is required")
	}
	return nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

var baseTopicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckCron(expression string) error {
	_, err := quartz.NewCronTrigger(expression)
	return err
}

// Redacted returns a copy without credentials, fit for logging.
func (cfg Config) Redacted() Config {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return cfg
}
