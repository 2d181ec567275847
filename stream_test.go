package pop3

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameStreamSendAndRead(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		if string(buf[:n]) != "NOOP\r\n" {
			t.Errorf("server saw %q, want %q", buf[:n], "NOOP\r\n")
		}
		io.WriteString(server, "+OK\r\n")
	}()

	fs := newFrameStream(client, nil, nil)
	resp, err := fs.sendAndRead(newRequest(cmdNoop), false)
	require.NoError(t, err)
	_, ok := resp.Message()
	require.True(t, ok, "expected a Message response")
}

func TestFrameStreamGrowsBufferAcrossShortReads(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	full := "+OK 1 200\r\n1 200\r\n.\r\n"
	go func() {
		buf := make([]byte, 64)
		server.Read(buf) // LIST\r\n
		// Trickle the response one byte at a time to exercise fill()'s
		// incremental growth path.
		for i := 0; i < len(full); i++ {
			io.WriteString(server, full[i:i+1])
		}
	}()

	fs := newFrameStream(client, nil, nil)
	resp, err := fs.sendAndRead(newRequest(cmdList), false)
	require.NoError(t, err)
	list, ok := resp.List()
	require.True(t, ok)
	require.True(t, list.Multi)
	require.Len(t, list.Items, 1)
}

func TestFrameStreamResponseTooLarge(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		server.Read(buf) // NOOP\r\n
		// Never send a CRLF: the frame stream must give up once its
		// buffer cap is exceeded rather than block forever.
		junk := make([]byte, 4096)
		for i := range junk {
			junk[i] = 'a'
		}
		server.Write(junk)
	}()

	fs := newFrameStream(client, nil, nil)
	fs.maxSize = 512
	_, err := fs.sendAndRead(newRequest(cmdNoop), false)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrResponseTooLarge, e.Kind)
}

func TestFrameStreamConnectionClosedMidResponse(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		io.WriteString(server, "+OK partial")
		server.Close()
	}()

	fs := newFrameStream(client, nil, nil)
	_, err := fs.sendAndRead(newRequest(cmdNoop), false)
	require.Error(t, err)
	e, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrConnectionClosed, e.Kind)
}
