package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/voltronic2mqtt/internal/adapter/actor"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/util"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"
	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettingsActor(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	cfg := util.LoadTestConfig()
	// far enough to never fire during the test
	cfg.Monitor.SettingsCron = "0 0 0 1 1 ?"
	es := &eventstream.EventStream{}
	recorder, sub := recordEvents(es)
	defer es.Unsubscribe(sub)

	driver := adactor.NewTestDeviceDriver()
	inverterPID := spawnTestInverter(context, driver, logger)
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewSettingsActor(&cfg, inverterPID, es, 5*time.Second, logger)
	}))

	// first read happens on start
	assert.Eventually(func() bool {
		return recorder.Has(func(evt any) bool {
			ev, ok := evt.(domain.InputNumberSensorUpdateEvent)
			return ok && ev.Id == domain.INPUT_NUMBER_ID_OUTPUT_SOURCE_PRIORITY && ev.Value == 2
		})
	}, 3*time.Second, 50*time.Millisecond)
	assert.True(recorder.Has(func(evt any) bool {
		ev, ok := evt.(domain.SwitchSensorUpdateEvent)
		return ok && ev.Id == domain.SWITCH_ID_BACKLIGHT && ev.Value
	}))

	result, err := context.RequestFuture(pid, domain.GetSettingsRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetSettingsResponse)
	assert.False(resp.HasResponseError())
	assert.Equal(3, resp.Settings[domain.SETTING_KEY_CHARGER_SOURCE_PRIORITY])

	hcr := healthCheck(t, context, pid)
	assert.True(hcr.Healthy)
	assert.Equal("idle", hcr.State)
	assert.Equal(1, driver.SettingsCalls())

	// a query does not trigger a read
	es.Publish(domain.CommandResultEvent{Result: voltronic.PendingResult{PendingCommand: voltronic.PendingCommand{Command: "QPIGS"}}})
	// a setting command does
	es.Publish(domain.CommandResultEvent{Result: voltronic.PendingResult{PendingCommand: voltronic.PendingCommand{Command: "PDa"}}})
	assert.Eventually(func() bool { return driver.SettingsCalls() == 2 }, 3*time.Second, 50*time.Millisecond)

	context.Send(pid, RefreshSettingsRequest{})
	assert.Eventually(func() bool { return driver.SettingsCalls() == 3 }, 3*time.Second, 50*time.Millisecond)

	context.Stop(pid)
	context.Stop(inverterPID)
	as.Shutdown()
}
