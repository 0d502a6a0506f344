// Package serialbus implements bus.Transport by tunnelling register accesses
// through a USB-serial bridge MCU running the firmware in this repository.
package serialbus

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/itohio/goads/pkg/bridge"
	"github.com/itohio/goads/pkg/bus"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the bridge firmware UART.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds one request/response round trip.
	DefaultTimeout = 500 * time.Millisecond
)

var (
	errTimeout  = errors.New("serialbus: response timeout")
	errLineSize = errors.New("serialbus: response line too long")
)

// Transport talks to one device behind the bridge.
type Transport struct {
	port     string
	baudRate int
	addr     bus.Addr
	timeout  time.Duration
	open     func(port string, baudRate int) (io.ReadWriteCloser, error)

	conn        io.ReadWriteCloser
	pending     []byte
	seq         uint8
	initialized bool
}

var _ bus.Transport = (*Transport)(nil)

// New creates a transport for the device at addr behind the bridge on port.
func New(port string, baudRate int, addr bus.Addr) *Transport {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Transport{
		port:     port,
		baudRate: baudRate,
		addr:     addr,
		timeout:  DefaultTimeout,
		open:     openSerial,
	}
}

// Ports returns the names of the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func openSerial(port string, baudRate int) (io.ReadWriteCloser, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(50 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		log.Printf("serialbus: failed to flush input of %s: %v", port, err)
	}
	return p, nil
}

// Begin opens the serial port once.
func (t *Transport) Begin() error {
	if t.initialized {
		return nil
	}
	conn, err := t.open(t.port, t.baudRate)
	if err != nil {
		return &bus.BusError{Op: "begin", Addr: t.addr, Err: err}
	}
	t.conn = conn
	t.pending = t.pending[:0]
	t.initialized = true
	return nil
}

// Stop closes the serial port.
func (t *Transport) Stop() error {
	if !t.initialized {
		return nil
	}
	t.initialized = false
	conn := t.conn
	t.conn = nil
	if err := conn.Close(); err != nil {
		return &bus.BusError{Op: "stop", Addr: t.addr, Err: err}
	}
	return nil
}

func (t *Transport) WriteRegister(reg uint8, value uint16) error {
	_, err := t.roundTrip(bridge.Request{Op: bridge.OpWrite, Addr: uint8(t.addr), Reg: reg, Value: value}, "write", reg)
	return err
}

func (t *Transport) ReadRegister(reg uint8) (uint16, error) {
	resp, err := t.roundTrip(bridge.Request{Op: bridge.OpRead, Addr: uint8(t.addr), Reg: reg}, "read", reg)
	if err != nil {
		return 0, err
	}
	if !resp.HasValue {
		return 0, &bus.BusError{Op: "read", Addr: t.addr, Reg: reg, Err: bridge.ErrSyntax}
	}
	return resp.Value, nil
}

func (t *Transport) Probe() error {
	_, err := t.roundTrip(bridge.Request{Op: bridge.OpProbe, Addr: uint8(t.addr)}, "probe", 0)
	return err
}

// Ready returns the level of the bridge's conversion-ready input.
func (t *Transport) Ready() (bool, error) {
	resp, err := t.roundTrip(bridge.Request{Op: bridge.OpReady}, "ready", 0)
	if err != nil {
		return false, err
	}
	return resp.Value != 0, nil
}

// ReadyPin adapts the bridge ready input to a pin with a Get method.
// Transaction errors read as the inactive (high) level.
func (t *Transport) ReadyPin() *ReadyPin { return &ReadyPin{t: t} }

// ReadyPin is the conversion-ready input of the bridge.
type ReadyPin struct{ t *Transport }

// Get returns the pin level.
func (p *ReadyPin) Get() bool {
	level, err := p.t.Ready()
	if err != nil {
		log.Printf("serialbus: ready pin: %v", err)
		return true
	}
	return level
}

// nextSeq returns the next request tag, skipping the untagged value 0.
func (t *Transport) nextSeq() uint8 {
	t.seq++
	if t.seq == 0 {
		t.seq = 1
	}
	return t.seq
}

// roundTrip sends one tagged request and waits for the response carrying the
// same tag. Lines left over from requests that timed out are dropped.
func (t *Transport) roundTrip(req bridge.Request, op string, reg uint8) (bridge.Response, error) {
	if !t.initialized {
		return bridge.Response{}, &bus.BusError{Op: op, Addr: t.addr, Reg: reg, Err: bus.ErrNotInitialized}
	}
	t.pending = t.pending[:0]
	req.Seq = t.nextSeq()
	if _, err := io.WriteString(t.conn, req.String()+"\n"); err != nil {
		return bridge.Response{}, &bus.BusError{Op: op, Addr: t.addr, Reg: reg, Err: err}
	}

	deadline := time.Now().Add(t.timeout)
	var resp bridge.Response
	for {
		line, err := t.readLine(deadline)
		if err != nil {
			return bridge.Response{}, &bus.BusError{Op: op, Addr: t.addr, Reg: reg, Err: err}
		}
		resp, err = bridge.ParseResponse(line)
		if err != nil {
			log.Printf("serialbus: dropping malformed response %q: %v", line, err)
			continue
		}
		if resp.Seq != req.Seq {
			log.Printf("serialbus: dropping stale response %q (want #%02X)", line, req.Seq)
			continue
		}
		break
	}
	if resp.Err != "" {
		return bridge.Response{}, &bus.BusError{Op: op, Addr: t.addr, Reg: reg, Err: errors.New(resp.Err)}
	}
	return resp, nil
}

// readLine reads up to the next newline. The port returns (0, nil) when its
// read timeout expires, so the deadline is checked between reads.
func (t *Transport) readLine(deadline time.Time) (string, error) {
	var chunk [64]byte
	for {
		if i := strings.IndexByte(string(t.pending), '\n'); i >= 0 {
			line := string(t.pending[:i])
			t.pending = append(t.pending[:0], t.pending[i+1:]...)
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			return line, nil
		}
		if len(t.pending) > 256 {
			t.pending = t.pending[:0]
			return "", errLineSize
		}
		if time.Now().After(deadline) {
			return "", errTimeout
		}
		n, err := t.conn.Read(chunk[:])
		if n > 0 {
			t.pending = append(t.pending, chunk[:n]...)
		}
		if err != nil && err != io.EOF {
			return "", err
		}
		if n == 0 && err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
	}
}
