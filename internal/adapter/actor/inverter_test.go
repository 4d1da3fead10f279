package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/core/domain"
	"github.com/berfenger/voltronic2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnInverterActor(t *testing.T, driver *TestDeviceDriver) (*actor.RootContext, *actor.PID, func()) {
	t.Helper()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewInverterActor(driver, 5*time.Second, logger) })
	pid := context.Spawn(props)
	return context, pid, func() {
		context.Stop(pid)
		as.Shutdown()
	}
}

func TestInverterActorDeviceInfo(t *testing.T) {
	assert := assert.New(t)

	driver := NewTestDeviceDriver()
	context, pid, stop := spawnInverterActor(t, driver)
	defer stop()

	result, err := context.RequestFuture(pid, domain.GetDeviceInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.GetDeviceInfoResponse)
	require.True(t, ok)

	assert.False(resp.HasResponseError())
	assert.Equal("Axpert King 5kW", resp.Info.Model, "model")
	assert.Equal("92932004102453", resp.Info.SerialNumber, "serial number")
	assert.Len(resp.Sensors, 4, "sensor descriptions come from the driver")
}

func TestInverterActorStatusAndSettings(t *testing.T) {
	assert := assert.New(t)

	driver := NewTestDeviceDriver()
	context, pid, stop := spawnInverterActor(t, driver)
	defer stop()

	result, err := context.RequestFuture(pid, domain.GetStatusRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	status := result.(domain.GetStatusResponse)
	assert.False(status.HasResponseError())
	assert.Equal(230.4, status.Status["grid_voltage"])
	assert.Equal(1, driver.StatusCalls())

	result, err = context.RequestFuture(pid, domain.GetSettingsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	settings := result.(domain.GetSettingsResponse)
	assert.False(settings.HasResponseError())
	assert.Equal(2, settings.Settings[domain.SETTING_KEY_OUTPUT_SOURCE_PRIORITY])
}

func TestInverterActorInvokeKeepsOrder(t *testing.T) {
	assert := assert.New(t)

	driver := NewTestDeviceDriver()
	context, pid, stop := spawnInverterActor(t, driver)
	defer stop()

	futures := []*actor.Future{
		context.RequestFuture(pid, domain.InvokeCommandRequest{Command: "QPI"}, 5*time.Second),
		context.RequestFuture(pid, domain.InvokeCommandRequest{Command: "QID"}, 5*time.Second),
		context.RequestFuture(pid, domain.InvokeCommandRequest{Command: "PEa"}, 5*time.Second),
	}
	for _, f := range futures {
		result, err := f.Result()
		require.NoError(t, err)
		resp := result.(domain.InvokeCommandResponse)
		assert.False(resp.HasResponseError())
		assert.Equal(resp.Command, resp.Result["command"])
	}

	assert.Equal([]string{"QPI", "QID", "PEa"}, driver.Invoked(), "one command at a time, in order")
}

func TestInverterActorDriverError(t *testing.T) {
	assert := assert.New(t)

	driver := NewTestDeviceDriver()
	driver.Err = errors.New("link down")
	context, pid, stop := spawnInverterActor(t, driver)
	defer stop()

	result, err := context.RequestFuture(pid, domain.GetStatusRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetStatusResponse)
	assert.True(resp.HasResponseError())
	assert.ErrorContains(resp.GetResponseError(), "link down")

	// the actor is back to idle after a failure
	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal("idle", health.State)
}
