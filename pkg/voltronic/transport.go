package voltronic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goburrow/serial"
	goio "github.com/primetalk/goio/io"
)

const (
	DEFAULT_WRITE_TIMEOUT = 2 * time.Second
	DEFAULT_CHUNK_DELAY   = 160 * time.Millisecond
	DEFAULT_READ_TIMEOUT  = 5 * time.Second
	USB_CHUNK_SIZE        = 8
	MAX_RESPONSE_SIZE     = 1024
)

// DeviceConfig describes the link to the inverter.
type DeviceConfig struct {
	// serial port or hidraw device path, e.g. /dev/ttyUSB0 or /dev/hidraw0
	Interface string
	BaudRate  int
	// selects the serial transport instead of the USB HID one
	IsSerial bool
	// read one line back after a serial write
	SerialReadResponse bool
	WriteTimeout       time.Duration
	ChunkDelay         time.Duration
	ReadTimeout        time.Duration
}

// Transport sends one framed command over a freshly opened link.
// The link is closed before Send returns.
type Transport interface {
	Send(cmd Command, observe StateObserver) (*RawResponse, error)
	Interface() string
}

type SerialOpener func(cfg *serial.Config) (io.ReadWriteCloser, error)

type StreamOpener func(path string) (io.ReadWriteCloser, error)

// Serial

type SerialTransport struct {
	cfg  DeviceConfig
	open SerialOpener
}

func NewSerialTransport(cfg DeviceConfig) *SerialTransport {
	return NewSerialTransportWithOpener(cfg, openSerialPort)
}

func NewSerialTransportWithOpener(cfg DeviceConfig, open SerialOpener) *SerialTransport {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DEFAULT_WRITE_TIMEOUT
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DEFAULT_READ_TIMEOUT
	}
	return &SerialTransport{
		cfg:  cfg,
		open: open,
	}
}

func (t *SerialTransport) Interface() string {
	return t.cfg.Interface
}

func (t *SerialTransport) Send(cmd Command, observe StateObserver) (*RawResponse, error) {
	observe.notify(DispatchStateConnecting)
	port, err := t.open(&serial.Config{
		Address:  t.cfg.Interface,
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  t.cfg.ReadTimeout,
	})
	if err != nil {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_OPEN, Interface: t.cfg.Interface, Err: err}
	}
	defer port.Close()

	observe.notify(DispatchStateWriting)
	written, err := writeWithTimeout(port, cmd.Frame(), t.cfg.WriteTimeout)
	if err == nil && written <= 0 {
		err = io.ErrShortWrite
	}
	if err != nil {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_WRITE, Interface: t.cfg.Interface, Err: err}
	}
	flush(port)

	resp := &RawResponse{
		Command: cmd,
		Written: written,
	}
	if t.cfg.SerialReadResponse {
		observe.notify(DispatchStateAwaitingResponse)
		data, err := readLineWithTimeout(port, t.cfg.ReadTimeout)
		if err != nil {
			observe.notify(DispatchStateFailed)
			return nil, &TransportError{Op: TRANSPORT_OP_READ, Interface: t.cfg.Interface, Err: err}
		}
		resp.Data = data
	}
	observe.notify(DispatchStateDone)
	return resp, nil
}

// USB HID

type HIDTransport struct {
	cfg   DeviceConfig
	open  StreamOpener
	sleep func(time.Duration)
}

func NewHIDTransport(cfg DeviceConfig) *HIDTransport {
	return NewHIDTransportWithOpener(cfg, openCharDevice, time.Sleep)
}

func NewHIDTransportWithOpener(cfg DeviceConfig, open StreamOpener, sleep func(time.Duration)) *HIDTransport {
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = DEFAULT_CHUNK_DELAY
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DEFAULT_READ_TIMEOUT
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &HIDTransport{
		cfg:   cfg,
		open:  open,
		sleep: sleep,
	}
}

func (t *HIDTransport) Interface() string {
	return t.cfg.Interface
}

func (t *HIDTransport) Send(cmd Command, observe StateObserver) (*RawResponse, error) {
	observe.notify(DispatchStateConnecting)
	stream, err := t.open(t.cfg.Interface)
	if err != nil {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_OPEN, Interface: t.cfg.Interface, Err: err}
	}
	defer stream.Close()

	observe.notify(DispatchStateWriting)
	written := 0
	for _, chunk := range ChunkFrame(cmd.Frame(), USB_CHUNK_SIZE) {
		n, err := stream.Write(chunk)
		written += n
		if err != nil {
			observe.notify(DispatchStateFailed)
			return nil, &TransportError{Op: TRANSPORT_OP_WRITE, Interface: t.cfg.Interface, Err: err}
		}
		// device cannot take the next report earlier
		t.sleep(t.cfg.ChunkDelay)
	}

	observe.notify(DispatchStateAwaitingResponse)
	data, err := readLineWithTimeout(stream, t.cfg.ReadTimeout)
	if err != nil {
		observe.notify(DispatchStateFailed)
		return nil, &TransportError{Op: TRANSPORT_OP_READ, Interface: t.cfg.Interface, Err: err}
	}
	observe.notify(DispatchStateDone)
	return &RawResponse{
		Data:    data,
		Command: cmd,
		Written: written,
	}, nil
}

// ChunkFrame splits a frame into chunks of at most size bytes.
func ChunkFrame(frame []byte, size int) [][]byte {
	var chunks [][]byte
	for len(frame) > size {
		chunks = append(chunks, frame[:size])
		frame = frame[size:]
	}
	if len(frame) > 0 {
		chunks = append(chunks, frame)
	}
	return chunks
}

func openSerialPort(cfg *serial.Config) (io.ReadWriteCloser, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}

func openCharDevice(path string) (io.ReadWriteCloser, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

func flush(w io.Writer) {
	switch f := w.(type) {
	case interface{ Flush() error }:
		_ = f.Flush()
	case interface{ Sync() error }:
		_ = f.Sync()
	}
}

func writeWithTimeout(w io.Writer, data []byte, timeout time.Duration) (int, error) {
	write := goio.Eval(func() (int, error) {
		return w.Write(data)
	})
	if timeout > 0 {
		write = goio.WithTimeout[int](timeout)(write)
	}
	result := goio.RunSync(write)
	return result.Value, result.Error
}

func readLineWithTimeout(r io.Reader, timeout time.Duration) ([]byte, error) {
	read := goio.Eval(func() ([]byte, error) {
		return readLine(r, MAX_RESPONSE_SIZE)
	})
	if timeout > 0 {
		read = goio.WithTimeout[[]byte](timeout)(read)
	}
	result := goio.RunSync(read)
	return result.Value, result.Error
}

// readLine reads up to and including the first CR or LF.
// NUL bytes are HID report padding and are dropped.
func readLine(r io.Reader, maxSize int) ([]byte, error) {
	br := bufio.NewReader(r)
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return nil, fmt.Errorf("unterminated response %q: %w", line, io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		if b == 0x00 {
			continue
		}
		line = append(line, b)
		if b == FRAME_TERMINATOR || b == '\n' {
			return line, nil
		}
		if len(line) >= maxSize {
			return nil, fmt.Errorf("response exceeds %d bytes", maxSize)
		}
	}
}
