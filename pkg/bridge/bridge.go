// Package bridge implements the line protocol spoken between the host and the
// serial-to-I2C bridge firmware.
//
// Requests and responses are single ASCII lines with hexadecimal fields:
//
//	W <addr> <reg> <value>   write a register        -> OK
//	R <addr> <reg>           read a register         -> OK <value>
//	P <addr>                 probe for an ACK        -> OK
//	D                        conversion-ready pin    -> OK 0|1
//
// Any failure is answered with "ERR <message>". A request may end with a
// sequence tag "#<seq>" (01..FF); the response then ends with the same tag so
// the host can discard answers to requests it already gave up on.
package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op is a request opcode.
type Op byte

const (
	OpWrite Op = 'W'
	OpRead  Op = 'R'
	OpProbe Op = 'P'
	OpReady Op = 'D'
)

// ErrSyntax is returned for malformed lines.
var ErrSyntax = errors.New("bridge: syntax error")

// Request is one host command. Seq 0 means untagged.
type Request struct {
	Op    Op
	Addr  uint8
	Reg   uint8
	Value uint16
	Seq   uint8
}

// String encodes the request without the trailing newline.
func (r Request) String() string {
	var s string
	switch r.Op {
	case OpWrite:
		s = fmt.Sprintf("W %02X %02X %04X", r.Addr, r.Reg, r.Value)
	case OpRead:
		s = fmt.Sprintf("R %02X %02X", r.Addr, r.Reg)
	case OpProbe:
		s = fmt.Sprintf("P %02X", r.Addr)
	default:
		s = string(rune(r.Op))
	}
	return withSeq(s, r.Seq)
}

// ParseRequest decodes a request line.
func ParseRequest(line string) (Request, error) {
	line, seq, err := SplitSeq(line)
	if err != nil {
		return Request{}, err
	}
	req, err := parseRequest(line)
	req.Seq = seq
	return req, err
}

func parseRequest(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields[0]) != 1 {
		return Request{}, fmt.Errorf("%w: %q", ErrSyntax, line)
	}

	req := Request{Op: Op(fields[0][0])}
	want := map[Op]int{OpWrite: 4, OpRead: 3, OpProbe: 2, OpReady: 1}
	n, ok := want[req.Op]
	if !ok {
		return Request{}, fmt.Errorf("%w: unknown op %q", ErrSyntax, fields[0])
	}
	if len(fields) != n {
		return Request{}, fmt.Errorf("%w: op %c expects %d fields, got %d", ErrSyntax, req.Op, n, len(fields))
	}

	var err error
	if n >= 2 {
		if req.Addr, err = parseByte(fields[1]); err != nil {
			return Request{}, err
		}
	}
	if n >= 3 {
		if req.Reg, err = parseByte(fields[2]); err != nil {
			return Request{}, err
		}
	}
	if n == 4 {
		v, err := strconv.ParseUint(fields[3], 16, 16)
		if err != nil {
			return Request{}, fmt.Errorf("%w: value %q", ErrSyntax, fields[3])
		}
		req.Value = uint16(v)
	}
	return req, nil
}

// Response is one bridge answer.
type Response struct {
	Err      string // non-empty for ERR responses
	Value    uint16
	HasValue bool
	Seq      uint8 // tag of the answered request
}

// OK returns a successful response without a value.
func OK() Response { return Response{} }

// Value returns a successful response carrying v.
func Value(v uint16) Response { return Response{Value: v, HasValue: true} }

// Fail returns an error response.
func Fail(err error) Response {
	msg := strings.NewReplacer("\n", " ", "#", "").Replace(err.Error())
	if msg == "" {
		msg = "failed"
	}
	return Response{Err: msg}
}

// String encodes the response without the trailing newline.
func (r Response) String() string {
	var s string
	switch {
	case r.Err != "":
		s = "ERR " + r.Err
	case r.HasValue:
		s = fmt.Sprintf("OK %04X", r.Value)
	default:
		s = "OK"
	}
	return withSeq(s, r.Seq)
}

// ParseResponse decodes a response line.
func ParseResponse(line string) (Response, error) {
	line, seq, err := SplitSeq(line)
	if err != nil {
		return Response{}, err
	}
	resp, err := parseResponse(line)
	resp.Seq = seq
	return resp, err
}

func parseResponse(line string) (Response, error) {
	switch {
	case line == "OK":
		return OK(), nil
	case strings.HasPrefix(line, "OK "):
		v, err := strconv.ParseUint(strings.TrimSpace(line[3:]), 16, 16)
		if err != nil {
			return Response{}, fmt.Errorf("%w: value in %q", ErrSyntax, line)
		}
		return Value(uint16(v)), nil
	case strings.HasPrefix(line, "ERR"):
		msg := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
		if msg == "" {
			msg = "failed"
		}
		return Response{Err: msg}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrSyntax, line)
	}
}

// SplitSeq strips a trailing "#<seq>" tag from line. Untagged lines yield 0.
func SplitSeq(line string) (string, uint8, error) {
	line = strings.TrimSpace(line)
	i := strings.LastIndexByte(line, '#')
	if i < 0 {
		return line, 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(line[i+1:]), 16, 8)
	if err != nil || v == 0 {
		return line, 0, fmt.Errorf("%w: tag in %q", ErrSyntax, line)
	}
	return strings.TrimSpace(line[:i]), uint8(v), nil
}

func withSeq(s string, seq uint8) string {
	if seq == 0 {
		return s
	}
	return fmt.Sprintf("%s #%02X", s, seq)
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: byte %q", ErrSyntax, s)
	}
	return uint8(v), nil
}
