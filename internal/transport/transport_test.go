package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	stderrDrainTimeout = 2 * time.Second
	stderrDrainPoll    = 10 * time.Millisecond
)

// fakeWriteCloser is an in-memory io.WriteCloser for exercising
// WriteObject without a real pipe.
type fakeWriteCloser struct {
	bytes.Buffer
	closed bool
}

func (f *fakeWriteCloser) Close() error {
	f.closed = true
	return nil
}

func TestWriteObjectFramesWithContentLength(t *testing.T) {
	w := &fakeWriteCloser{}
	s := NewStream(bytes.NewReader(nil), w, nil)

	require.NoError(t, s.WriteObject(map[string]string{"hello": "world"}))

	out := w.String()
	require.Contains(t, out, "Content-Length: ")
	require.Contains(t, out, "\r\n\r\n")
	require.Contains(t, out, `{"hello":"world"}`)
}

func TestReadObjectRoundTrip(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`
	frame := "Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body

	s := NewStream(bytes.NewReader([]byte(frame)), &fakeWriteCloser{}, nil)

	var v map[string]interface{}
	require.NoError(t, s.ReadObject(&v))
	require.Equal(t, float64(1), v["id"])
}

func TestReadObjectIgnoresOtherHeaders(t *testing.T) {
	body := `{}`
	frame := "Content-Type: application/vscode-jsonrpc\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body
	s := NewStream(bytes.NewReader([]byte(frame)), &fakeWriteCloser{}, nil)

	var v map[string]interface{}
	require.NoError(t, s.ReadObject(&v))
}

func TestReadObjectIncompleteFrameSurfacesEOF(t *testing.T) {
	frame := "Content-Length: 100\r\n\r\n{\"incomplete\""
	s := NewStream(bytes.NewReader([]byte(frame)), &fakeWriteCloser{}, nil)

	var v map[string]interface{}
	err := s.ReadObject(&v)
	require.Error(t, err)

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, FrameEOF, fe.Kind)
}

func TestReadObjectMalformedHeaderSurfacesProtocolError(t *testing.T) {
	frame := "not a header line\r\n\r\n{}"
	s := NewStream(bytes.NewReader([]byte(frame)), &fakeWriteCloser{}, nil)

	var v map[string]interface{}
	err := s.ReadObject(&v)
	require.Error(t, err)

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, FrameProtocol, fe.Kind)
}

func TestReadObjectCleanEOFBeforeAnyHeader(t *testing.T) {
	s := NewStream(bytes.NewReader(nil), &fakeWriteCloser{}, nil)

	var v map[string]interface{}
	err := s.ReadObject(&v)
	require.ErrorIs(t, err, io.EOF)
}

func TestStderrDrainsIntoRingBuffer(t *testing.T) {
	stderr := bytes.NewBufferString("panic: something went wrong\n")
	s := NewStream(bytes.NewReader(nil), &fakeWriteCloser{}, stderr)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(s.Stderr()), []byte("panic"))
	}, stderrDrainTimeout, stderrDrainPoll)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
