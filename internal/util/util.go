package util

import (
	"github.com/berfenger/voltronic2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Port:     8080,
		Plugin:   "axpert-king-5kw",
		Device: config.DeviceConfig{
			Interface:          "/dev/null",
			BaudRate:           2400,
			WriteTimeoutMillis: 2000,
			ChunkDelayMillis:   0,
			ReadTimeoutMillis:  5000,
			QueueSize:          5,
			VerifyChecksum:     true,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "voltronic",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 1000,
			SettingsCron:       "0 */5 * * * *",
		},
		Plugins: config.PluginsConfig{
			Directory: "plugins",
		},
	}
}
