package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/voltronic2mqtt/pkg/voltronic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	accept   bool
	messages []map[string]string
}

func (p *recordingPublisher) Publish(messages map[string]string) bool {
	p.messages = append(p.messages, messages)
	return p.accept
}

func pendingResult(cmd string, response []byte, err error) voltronic.PendingResult {
	result := voltronic.PendingResult{
		PendingCommand: voltronic.PendingCommand{
			Id:         "7f1c",
			Command:    cmd,
			EnqueuedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		Error: err,
	}
	if response != nil {
		result.Response = &voltronic.RawResponse{Data: response, Command: voltronic.NewCommand(cmd)}
	}
	return result
}

func TestCommandResultPayloadStatus(t *testing.T) {
	assert := assert.New(t)

	p := NewCommandResultPayload(pendingResult("POP02", voltronic.ResponseFrame("ACK"), nil), true)
	assert.Equal(COMMAND_STATUS_OK, p.Status)
	assert.Equal("ACK", p.Response)

	p = NewCommandResultPayload(pendingResult("POP07", voltronic.ResponseFrame("NAK"), nil), true)
	assert.Equal(COMMAND_STATUS_REJECTED, p.Status)

	p = NewCommandResultPayload(pendingResult("QPI", []byte("garbage\r"), nil), true)
	assert.Equal(COMMAND_STATUS_ERROR, p.Status)
	assert.NotEmpty(p.Error)

	p = NewCommandResultPayload(pendingResult("QPI", []byte{}, nil), true)
	assert.Equal(COMMAND_STATUS_SENT, p.Status)

	p = NewCommandResultPayload(pendingResult("QPI", nil, errors.New("voltronic: open /dev/hidraw0: no such device")), true)
	assert.Equal(COMMAND_STATUS_ERROR, p.Status)
	assert.Contains(p.Error, "no such device")
}

func TestCommandResultReporterPublishes(t *testing.T) {
	require := require.New(t)
	publisher := &recordingPublisher{accept: true}
	reporter := &CommandResultReporter{Publisher: publisher, VerifyChecksum: true, Logger: zap.NewNop()}

	require.True(reporter.Report(pendingResult("PEa", voltronic.ResponseFrame("ACK"), nil)))
	require.Len(publisher.messages, 1)

	var payload CommandResultPayload
	require.NoError(json.Unmarshal([]byte(publisher.messages[0][COMMAND_RESULT_TOPIC]), &payload))
	require.Equal("7f1c", payload.Id)
	require.Equal("PEa", payload.Command)
	require.Equal(COMMAND_STATUS_OK, payload.Status)
}

func TestCommandResultReporterDeliveryFailure(t *testing.T) {
	publisher := &recordingPublisher{accept: false}
	reporter := &CommandResultReporter{Publisher: publisher, Logger: zap.NewNop()}

	assert.False(t, reporter.Report(pendingResult("QPI", nil, nil)))
	assert.Len(t, publisher.messages, 1)
}
