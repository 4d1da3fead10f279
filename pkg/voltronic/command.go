package voltronic

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	FRAME_TERMINATOR     = '\r'
	RESPONSE_START       = '('
	RESPONSE_NAK_PAYLOAD = "NAK"
	RESPONSE_ACK_PAYLOAD = "ACK"
)

var (
	ErrProtocolMismatch = errors.New("voltronic: protocol mismatch")
	ErrCommandRejected  = errors.New("voltronic: command rejected by device (NAK)")
	ErrEmptyCommand     = errors.New("voltronic: empty command")
)

// Command is a command text together with its checksum.
// Build it with NewCommand so the checksum always matches the text.
type Command struct {
	text     string
	checksum Checksum
}

func NewCommand(text string) Command {
	return Command{
		text:     text,
		checksum: Compute(text),
	}
}

func (c Command) Text() string {
	return c.text
}

func (c Command) Checksum() Checksum {
	return c.checksum
}

// WithText returns a new command for text, checksum recomputed.
func (c Command) WithText(text string) Command {
	return NewCommand(text)
}

// Frame renders the exact on-wire byte sequence: text, crc high, crc low, CR.
func (c Command) Frame() []byte {
	return Frame(c.text, c.checksum)
}

func (c Command) String() string {
	return string(c.Frame())
}

// Frame renders text and checksum into the wire frame.
func Frame(text string, checksum Checksum) []byte {
	frame := make([]byte, 0, len(text)+3)
	frame = append(frame, text...)
	frame = append(frame, checksum.High, checksum.Low, FRAME_TERMINATOR)
	return frame
}

// RawResponse is the untouched device output for a command.
type RawResponse struct {
	Data    []byte
	Command Command
	// bytes of the frame written to the transport
	Written int
}

func (r RawResponse) HasData() bool {
	return len(r.Data) > 0
}

// ParseResponse validates a raw "(payload<crc>\r" response and returns the payload.
// With verifyChecksum the two bytes before the terminator are compared
// against the checksum of "(payload".
func ParseResponse(raw []byte, verifyChecksum bool) (string, error) {
	data := bytes.TrimRight(raw, "\n")
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrProtocolMismatch)
	}
	if data[0] != RESPONSE_START {
		return "", fmt.Errorf("%w: response does not start with '(': %q", ErrProtocolMismatch, data)
	}
	if data[len(data)-1] == FRAME_TERMINATOR {
		data = data[:len(data)-1]
	}
	if len(data) < 3 {
		return "", fmt.Errorf("%w: response too short: %q", ErrProtocolMismatch, data)
	}

	body := data[:len(data)-2]
	received := Checksum{High: data[len(data)-2], Low: data[len(data)-1]}
	if verifyChecksum {
		expected := checksumFromRaw(rawChecksum(body))
		if expected != received {
			return "", fmt.Errorf("%w: checksum %s, expected %s", ErrProtocolMismatch, received.Hex(), expected.Hex())
		}
	}

	payload := string(body[1:])
	if payload == RESPONSE_NAK_PAYLOAD {
		return "", ErrCommandRejected
	}
	return payload, nil
}
