package spi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/tcreport/pkg/max6675"
)

// fakePort answers every read with at most chunk bytes from reply.
type fakePort struct {
	written bytes.Buffer
	reply   []byte
	chunk   int
	readErr error
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	if n > len(p.reply) {
		n = len(p.reply)
	}
	copy(b, p.reply[:n])
	p.reply = p.reply[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerial_Tx(t *testing.T) {
	tests := []struct {
		name    string
		reply   []byte
		chunk   int
		readErr error
		want    []byte
		wantErr error
	}{
		{name: "single read", reply: []byte{0x02, 0xE0}, want: []byte{0x02, 0xE0}},
		{name: "byte at a time", reply: []byte{0x02, 0xE8}, chunk: 1, want: []byte{0x02, 0xE8}},
		{name: "timeout after one byte", reply: []byte{0x02}, wantErr: ErrShortTransfer},
		{name: "timeout", reply: nil, wantErr: ErrShortTransfer},
		{name: "port error", readErr: errors.New("unplugged")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{reply: tt.reply, chunk: tt.chunk, readErr: tt.readErr}
			s := &Serial{conn: port}

			r := make([]byte, 2)
			err := s.Tx(nil, r)
			assert.Equal(t, []byte{0, 0}, port.written.Bytes(), "two clock bytes are sent")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.readErr != nil:
				assert.ErrorIs(t, err, tt.readErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, r)
			}
		})
	}
}

func TestSerial_DrivesConverter(t *testing.T) {
	port := &fakePort{reply: []byte{0x02, 0xE4}}
	dev := max6675.New(&Serial{conn: port})

	_, err := dev.Read()
	assert.ErrorIs(t, err, max6675.ErrNoSensor)
}

func TestSerial_Close(t *testing.T) {
	port := &fakePort{}
	s := &Serial{conn: port}
	require.NoError(t, s.Close())
	assert.True(t, port.closed)
}

func TestSerial_OversizedTransfer(t *testing.T) {
	s := &Serial{conn: &fakePort{}}
	assert.Error(t, s.Tx(nil, make([]byte, 32)))
}
