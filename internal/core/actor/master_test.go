package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/voltronic2mqtt/internal/adapter/actor"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/core/port"
	"github.com/berfenger/voltronic2mqtt/internal/mqtt"
	"github.com/berfenger/voltronic2mqtt/internal/util"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	driver := adactor.NewTestDeviceDriver()
	transport := voltronic.NewTestTransport().
		Respond("PEa", "ACK").
		Respond("QPIGS", "NAK")
	dispatcher := voltronic.NewDispatcherWithTransport(transport, cfg.Device.QueueSize, logger)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.InverterActor {
			return adactor.NewInverterActor(driver, 5*time.Second, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, func(publisher port.Publisher, es *eventstream.EventStream) *adactor.CommandQueueActor {
			return adactor.NewCommandQueueActor(dispatcher, publisher, es, cfg.Device.VerifyChecksum, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 3*time.Second).Result()
		return err == nil && res.(domain.ActorHealthResponse).Healthy
	}, 5*time.Second, 100*time.Millisecond, "all children healthy")

	// device requests are forwarded to the inverter actor
	res, err := context.RequestFuture(pid, domain.GetDeviceInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	info := res.(domain.GetDeviceInfoResponse)
	assert.Equal("92932004102453", info.Info.SerialNumber)

	// settings come from the settings actor cache
	assert.Eventually(func() bool {
		res, err := context.RequestFuture(pid, domain.GetSettingsRequest{}, time.Second).Result()
		return err == nil && !res.(domain.GetSettingsResponse).HasResponseError()
	}, 3*time.Second, 100*time.Millisecond)
	settingsReads := driver.SettingsCalls()

	// switch commands go through the command queue and refresh the settings
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_BUZZER,
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})
	assert.Eventually(func() bool {
		sent := transport.Sent()
		return len(sent) == 1 && sent[0] == "PEa"
	}, 3*time.Second, 50*time.Millisecond)
	assert.Eventually(func() bool { return driver.SettingsCalls() > settingsReads }, 3*time.Second, 50*time.Millisecond)

	// invalid commands are dropped
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "unknown",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})

	// raw commands can be queued directly
	res, err = context.RequestFuture(pid, domain.QueueCommandRequest{Command: "QPIGS"}, 5*time.Second).Result()
	require.NoError(t, err)
	queued := res.(domain.QueueCommandResponse)
	assert.False(queued.HasResponseError())
	assert.Equal("QPIGS", queued.Pending.Command)
	assert.Eventually(func() bool { return len(transport.Sent()) == 2 }, 3*time.Second, 50*time.Millisecond)

	context.Stop(pid)

	as.Shutdown()
}
