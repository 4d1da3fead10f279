package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/voltronic2mqtt/internal/adapter/actor"
	"github.com/berfenger/voltronic2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// eventRecorder keeps every event published on a stream.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func recordEvents(es *eventstream.EventStream) (*eventRecorder, *eventstream.Subscription) {
	r := &eventRecorder{}
	sub := es.Subscribe(func(evt any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, evt)
	})
	return r, sub
}

func (r *eventRecorder) Events() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.events...)
}

func (r *eventRecorder) Has(match func(any) bool) bool {
	for _, evt := range r.Events() {
		if match(evt) {
			return true
		}
	}
	return false
}

func spawnTestInverter(context *actor.RootContext, driver *adactor.TestDeviceDriver, logger *zap.Logger) *actor.PID {
	props := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewInverterActor(driver, 5*time.Second, logger)
	})
	return context.Spawn(props)
}

func healthCheck(t *testing.T, context *actor.RootContext, pid *actor.PID) domain.ActorHealthResponse {
	t.Helper()
	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 3*time.Second).Result()
	require.NoError(t, err)
	hcr, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return hcr
}
