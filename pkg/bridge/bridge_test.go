package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr bool
	}{
		{name: "write", line: "W 48 01 8583", want: Request{Op: OpWrite, Addr: 0x48, Reg: 0x01, Value: 0x8583}},
		{name: "read", line: "R 49 00", want: Request{Op: OpRead, Addr: 0x49, Reg: 0x00}},
		{name: "probe", line: "P 4b", want: Request{Op: OpProbe, Addr: 0x4B}},
		{name: "ready", line: "D", want: Request{Op: OpReady}},
		{name: "surrounding whitespace", line: "  R 48 03 \r", want: Request{Op: OpRead, Addr: 0x48, Reg: 0x03}},
		{name: "empty", line: "", wantErr: true},
		{name: "unknown op", line: "X 48", wantErr: true},
		{name: "missing value", line: "W 48 01", wantErr: true},
		{name: "too many fields", line: "R 48 01 02", wantErr: true},
		{name: "bad hex", line: "R 4G 01", wantErr: true},
		{name: "value overflow", line: "W 48 01 18583", wantErr: true},
		{name: "tagged", line: "R 48 00 #2A", want: Request{Op: OpRead, Addr: 0x48, Seq: 0x2A}},
		{name: "tagged ready", line: "D #01", want: Request{Op: OpReady, Seq: 1}},
		{name: "zero tag", line: "R 48 00 #00", wantErr: true},
		{name: "bad tag", line: "R 48 00 #zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSyntax)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestString(t *testing.T) {
	assert.Equal(t, "W 48 01 0583", Request{Op: OpWrite, Addr: 0x48, Reg: 1, Value: 0x0583}.String())
	assert.Equal(t, "R 4A 02", Request{Op: OpRead, Addr: 0x4A, Reg: 2}.String())
	assert.Equal(t, "P 49", Request{Op: OpProbe, Addr: 0x49}.String())
	assert.Equal(t, "D", Request{Op: OpReady}.String())

	assert.Equal(t, "P 49 #FF", Request{Op: OpProbe, Addr: 0x49, Seq: 0xFF}.String())

	req := Request{Op: OpWrite, Addr: 0x4B, Reg: 3, Value: 0x7FFF, Seq: 7}
	back, err := ParseRequest(req.String())
	require.NoError(t, err)
	assert.Equal(t, req, back)
}

func TestResponses(t *testing.T) {
	assert.Equal(t, "OK", OK().String())
	assert.Equal(t, "OK 00FF", Value(0xFF).String())
	assert.Equal(t, "ERR nack on read", Fail(errors.New("nack\non read")).String())

	r, err := ParseResponse("OK\r\n")
	require.NoError(t, err)
	assert.Equal(t, OK(), r)

	r, err = ParseResponse("OK 8583")
	require.NoError(t, err)
	assert.True(t, r.HasValue)
	assert.Equal(t, uint16(0x8583), r.Value)

	r, err = ParseResponse("ERR no ack")
	require.NoError(t, err)
	assert.Equal(t, "no ack", r.Err)

	r, err = ParseResponse("OK 1234 #0C\r")
	require.NoError(t, err)
	assert.Equal(t, Response{Value: 0x1234, HasValue: true, Seq: 0x0C}, r)

	r, err = ParseResponse("ERR no ack #03")
	require.NoError(t, err)
	assert.Equal(t, Response{Err: "no ack", Seq: 3}, r)

	assert.Equal(t, "ERR bad  x #09", Response{Err: Fail(errors.New("bad # x")).Err, Seq: 9}.String())
	assert.Equal(t, "OK #10", Response{Seq: 0x10}.String())

	_, err = ParseResponse("hello")
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseResponse("OK zz")
	assert.ErrorIs(t, err, ErrSyntax)
}
