package pop3

import (
	"encoding/base64"
	"io"
	"net"
	"testing"
)

// TestPlainAuthenticatorRespondsToLateChallenge exercises the path where
// the server ignores the initial response appended to the AUTH line and
// asks for it again via an empty continuation, per RFC 4422 §3.
func TestPlainAuthenticatorRespondsToLateChallenge(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		io.WriteString(server, "+ \r\n")
		buf := make([]byte, 256)
		n, _ := server.Read(buf)
		decoded, err := base64.StdEncoding.DecodeString(string(buf[:n-2]))
		if err != nil {
			t.Errorf("server: bad base64 reply: %v", err)
			return
		}
		if string(decoded) != "\x00dave\x00swordfish" {
			t.Errorf("server: got response %q", decoded)
		}
		io.WriteString(server, "+OK authenticated\r\n")
	}()

	fs := newFrameStream(client, nil, nil)
	fs.queue = append(fs.queue, pendingCommand{cmd: cmdAuth})
	comm := &Communicator{stream: fs}
	auth := &PlainAuthenticator{Username: "dave", Password: "swordfish"}

	if err := auth.Handle(comm); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if comm.final == nil {
		t.Fatal("expected a final response to be recorded")
	}
	if _, ok := comm.final.Message(); !ok {
		t.Fatal("expected the final response to be a Message")
	}
}

func TestCommunicatorCancel(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		if string(buf[:n]) != "*\r\n" {
			t.Errorf("server: expected cancellation line, got %q", buf[:n])
		}
		io.WriteString(server, "-ERR authentication cancelled\r\n")
	}()

	fs := newFrameStream(client, nil, nil)
	comm := &Communicator{stream: fs}

	if err := comm.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err := comm.Next()
	if err != errAuthDone {
		t.Fatalf("expected errAuthDone after the server's final response, got %v", err)
	}
	errText, ok := comm.final.IsErr()
	if !ok || errText.String() != "authentication cancelled" {
		t.Fatalf("unexpected final response: %+v", comm.final)
	}
}
