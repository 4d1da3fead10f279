package voltronic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandFrame(t *testing.T) {
	assert := assert.New(t)
	cmd := NewCommand("QPI")
	assert.Equal("QPI", cmd.Text())
	assert.Equal([]byte{'Q', 'P', 'I', 0xBE, 0xAC, '\r'}, cmd.Frame())
	assert.Equal("QPI\xbe\xac\r", cmd.String())
}

func TestCommandWithTextRecomputesChecksum(t *testing.T) {
	assert := assert.New(t)
	cmd := NewCommand("QPI").WithText("QPIGS")
	assert.Equal("QPIGS", cmd.Text())
	assert.Equal(uint16(0xB7A9), cmd.Checksum().Full())
	assert.Equal(byte('\r'), cmd.Frame()[len(cmd.Frame())-1])
}

func TestCommandFrameUsesEscapedChecksum(t *testing.T) {
	frame := NewCommand("POP02").Frame()
	assert.Equal(t, []byte{'P', 'O', 'P', '0', '2', 0xE2, 0x0B, '\r'}, frame)
}

func TestParseResponse(t *testing.T) {
	assert := assert.New(t)

	payload, err := ParseResponse(ResponseFrame("PI30"), true)
	assert.NoError(err)
	assert.Equal("PI30", payload)

	// the escaped low byte is what the device sends
	payload, err = ParseResponse([]byte{'(', 'P', 'I', '3', '0', 0x9a, 0x0b, '\r'}, true)
	assert.NoError(err)
	assert.Equal("PI30", payload)

	payload, err = ParseResponse(append(ResponseFrame("ACK"), '\n'), true)
	assert.NoError(err)
	assert.Equal(RESPONSE_ACK_PAYLOAD, payload)
}

func TestParseResponseLongPayload(t *testing.T) {
	assert := assert.New(t)
	status := "230.0 50.0 230.0 50.0 0092 0060 001 427 54.50 000 100 0042 0000 000.0 00.00 00000 00010101 00 00 00000 010"
	raw := ResponseFrame(status)
	assert.Equal([]byte{0x2a, 0x81, '\r'}, raw[len(raw)-3:])
	payload, err := ParseResponse(raw, true)
	assert.NoError(err)
	assert.Equal(status, payload)
}

func TestParseResponseNAK(t *testing.T) {
	_, err := ParseResponse([]byte{'(', 'N', 'A', 'K', 0x73, 0x73, '\r'}, true)
	assert.ErrorIs(t, err, ErrCommandRejected)
}

func TestParseResponseMismatch(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"no start byte", []byte("PI30\x9a\x0b\r")},
		{"too short", []byte("(\r")},
		{"bad checksum", []byte("(PI30\x00\x00\r")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw, true)
			assert.ErrorIs(t, err, ErrProtocolMismatch)
		})
	}
}

func TestParseResponseWithoutVerification(t *testing.T) {
	payload, err := ParseResponse([]byte("(PI30\x00\x00\r"), false)
	assert.NoError(t, err)
	assert.Equal(t, "PI30", payload)
}
