package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToRequest turns an MQTT command into a request for the
// command queue. Switch and number commands go through the settings logic,
// raw commands are queued as they are.
func ParsedMQTTCommandToRequest(cmd mqtt.ParsedMQTTCommand, control port.SettingsControlLogic) (domain.QueueCommandRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_SEND:
		if cmd.Payload == "" {
			return domain.QueueCommandRequest{}, fmt.Errorf("empty command")
		}
		return domain.QueueCommandRequest{Command: cmd.Payload}, nil
	case mqtt.COMMAND_SWITCH:
		var on bool
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_ON:
			on = true
		case mqtt.MQTT_PAYLOAD_OFF:
			on = false
		default:
			return domain.QueueCommandRequest{}, fmt.Errorf("invalid switch payload %q", cmd.Payload)
		}
		command, err := control.SwitchCommand(cmd.DeviceId, on)
		if err != nil {
			return domain.QueueCommandRequest{}, err
		}
		return domain.QueueCommandRequest{Command: command}, nil
	case mqtt.COMMAND_NUMBER:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return domain.QueueCommandRequest{}, fmt.Errorf("invalid number payload %q: %w", cmd.Payload, err)
		}
		command, err := control.NumberCommand(cmd.DeviceId, value)
		if err != nil {
			return domain.QueueCommandRequest{}, err
		}
		return domain.QueueCommandRequest{Command: command}, nil
	}
	return domain.QueueCommandRequest{}, fmt.Errorf("unsupported command type %q", cmd.Command)
}
