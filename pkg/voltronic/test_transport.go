package voltronic

import (
	"errors"
	"sync"
)

var ErrTestTransportUnknownCommand = errors.New("test transport: unknown command")

// TestTransport is an in-memory device answering scripted responses.
type TestTransport struct {
	mu        sync.Mutex
	responses map[string][]byte
	sent      []Command
	// returned for every Send when set
	Err error
	// called before answering, lets tests block the link
	Hook func(cmd Command)
}

var _ Transport = (*TestTransport)(nil)

func NewTestTransport() *TestTransport {
	return &TestTransport{
		responses: map[string][]byte{},
	}
}

// Respond scripts payload as the framed answer to command.
func (t *TestTransport) Respond(command string, payload string) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[command] = ResponseFrame(payload)
	return t
}

// RespondRaw scripts raw bytes as the answer to command.
func (t *TestTransport) RespondRaw(command string, raw []byte) *TestTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses[command] = raw
	return t
}

func (t *TestTransport) Interface() string {
	return "test"
}

func (t *TestTransport) Send(cmd Command, observe StateObserver) (*RawResponse, error) {
	if t.Hook != nil {
		t.Hook(cmd)
	}
	observe.notify(DispatchStateConnecting)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, cmd)
	if t.Err != nil {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_WRITE, Interface: t.Interface(), Err: t.Err}
	}
	observe.notify(DispatchStateWriting)
	observe.notify(DispatchStateAwaitingResponse)
	data, ok := t.responses[cmd.Text()]
	if !ok {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_READ, Interface: t.Interface(), Err: ErrTestTransportUnknownCommand}
	}
	observe.notify(DispatchStateDone)
	return &RawResponse{
		Data:    append([]byte(nil), data...),
		Command: cmd,
		Written: len(cmd.Frame()),
	}, nil
}

// Sent returns the commands received so far, oldest first.
func (t *TestTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	texts := make([]string, len(t.sent))
	for i, cmd := range t.sent {
		texts[i] = cmd.Text()
	}
	return texts
}

// ResponseFrame renders a device answer: '(' payload, checksum, CR.
func ResponseFrame(payload string) []byte {
	body := string(RESPONSE_START) + payload
	return Frame(body, Compute(body))
}
