package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"

	"go.uber.org/zap"
)

var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidValue   = errors.New("invalid setting value")
)

// PI30 flag letters for the enable/disable commands (PE<x> / PD<x>)
var switchFlags = map[string]string{
	domain.SWITCH_ID_BUZZER:    "a",
	domain.SWITCH_ID_BACKLIGHT: "x",
}

type numberSetting struct {
	prefix string
	max    int
}

var numberSettings = map[string]numberSetting{
	domain.INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY:  {prefix: "POP", max: 2},
	domain.INPUT_NUMBER_ID_CHARGER_SOURCE_PRIORITY: {prefix: "PCP", max: 3},
}

type DefaultSettingsControlLogic struct {
	Logger *zap.Logger
}

func (s *DefaultSettingsControlLogic) SwitchCommand(switchId string, on bool) (string, error) {
	flag, ok := switchFlags[switchId]
	if !ok {
		return "", fmt.Errorf("%w: switch %q", ErrUnknownSetting, switchId)
	}
	cmd := "PD" + flag
	if on {
		cmd = "PE" + flag
	}
	s.logger().Debug("settings: switch command", zap.String("switch", switchId), zap.Bool("on", on), zap.String("command", cmd))
	return cmd, nil
}

func (s *DefaultSettingsControlLogic) NumberCommand(numberId string, value float64) (string, error) {
	setting, ok := numberSettings[numberId]
	if !ok {
		return "", fmt.Errorf("%w: number %q", ErrUnknownSetting, numberId)
	}
	if math.IsNaN(value) || value != math.Trunc(value) || value < 0 || int(value) > setting.max {
		return "", fmt.Errorf("%w: %s must be an integer in [0, %d], got %v", ErrInvalidValue, numberId, setting.max, value)
	}
	cmd := fmt.Sprintf("%s%02d", setting.prefix, int(value))
	s.logger().Debug("settings: number command", zap.String("number", numberId), zap.Float64("value", value), zap.String("command", cmd))
	return cmd, nil
}

func (s *DefaultSettingsControlLogic) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

var _ port.SettingsControlLogic = (*DefaultSettingsControlLogic)(nil)

// IsSettingCommand reports whether command changes a setting that
// FetchSettings would read back.
func IsSettingCommand(command string) bool {
	for _, flag := range switchFlags {
		if command == "PE"+flag || command == "PD"+flag {
			return true
		}
	}
	for _, setting := range numberSettings {
		if strings.HasPrefix(command, setting.prefix) {
			return true
		}
	}
	return false
}
