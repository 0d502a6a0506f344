package bridge

import (
	"errors"
	"fmt"

	"github.com/itohio/goads/pkg/bus"
)

var errNoReadyPin = errors.New("no ready pin")

// Handler answers requests on the bridge side. It keeps one transport per
// device address, created on first use.
type Handler struct {
	// Open returns the transport for a device address.
	Open func(addr bus.Addr) bus.Transport
	// Ready returns the conversion-ready input level. Nil disables D requests.
	Ready func() bool

	devs map[bus.Addr]bus.Transport
}

// Handle parses one request line and returns the encoded response.
func (h *Handler) Handle(line string) string {
	req, err := ParseRequest(line)
	if err != nil {
		resp := Fail(err)
		resp.Seq = req.Seq
		return resp.String()
	}
	return h.Serve(req).String()
}

// Serve executes one request. The response carries the request tag.
func (h *Handler) Serve(req Request) Response {
	resp := h.serve(req)
	resp.Seq = req.Seq
	return resp
}

func (h *Handler) serve(req Request) Response {
	if req.Op == OpReady {
		if h.Ready == nil {
			return Fail(errNoReadyPin)
		}
		if h.Ready() {
			return Value(1)
		}
		return Value(0)
	}

	tr, err := h.transport(bus.Addr(req.Addr))
	if err != nil {
		return Fail(err)
	}
	switch req.Op {
	case OpWrite:
		err = tr.WriteRegister(req.Reg, req.Value)
	case OpRead:
		var v uint16
		if v, err = tr.ReadRegister(req.Reg); err == nil {
			return Value(v)
		}
	case OpProbe:
		err = tr.Probe()
	}
	if err != nil {
		return Fail(err)
	}
	return OK()
}

func (h *Handler) transport(addr bus.Addr) (bus.Transport, error) {
	if !addr.Valid() {
		return nil, fmt.Errorf("bad address %02X", uint8(addr))
	}
	if tr, ok := h.devs[addr]; ok {
		return tr, nil
	}
	if h.Open == nil {
		return nil, bus.ErrNotInitialized
	}
	tr := h.Open(addr)
	if err := tr.Begin(); err != nil {
		return nil, err
	}
	if h.devs == nil {
		h.devs = make(map[bus.Addr]bus.Transport)
	}
	h.devs[addr] = tr
	return tr, nil
}
