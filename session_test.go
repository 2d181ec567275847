package pop3

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
)

// scriptStep is one request/response round the fake server plays back,
// in the style of kiwiz-popgun's net.Pipe-based TestClient_handle.
type scriptStep struct {
	expect string
	reply  string
}

func serveScript(t *testing.T, conn net.Conn, greeting string, script []scriptStep) {
	defer conn.Close()
	io.WriteString(conn, greeting)
	reader := bufio.NewReader(conn)
	for _, step := range script {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if got := strings.TrimRight(line, "\r\n"); step.expect != "" && got != step.expect {
			t.Errorf("server: expected %q, got %q", step.expect, got)
		}
		io.WriteString(conn, step.reply)
	}
}

func dialTestSession(t *testing.T, greeting string, script []scriptStep) *Session {
	t.Helper()
	server, client := net.Pipe()
	go serveScript(t, server, greeting, script)
	sess, err := NewSession(client)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestSessionLoginStatQuit(t *testing.T) {
	sess := dialTestSession(t, "+OK POP3 server ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR unknown command\r\n"},
		{expect: "USER alice", reply: "+OK send PASS\r\n"},
		{expect: "PASS secret", reply: "+OK logged in\r\n"},
		{expect: "CAPA", reply: "-ERR unknown command\r\n"},
		{expect: "STAT", reply: "+OK 2 320\r\n"},
		{expect: "QUIT", reply: "+OK bye\r\n"},
	})

	greeting, ok := sess.Greeting()
	if !ok || greeting.String() != "POP3 server ready" {
		t.Fatalf("unexpected greeting: %q, ok=%v", greeting.String(), ok)
	}

	if err := sess.Login("alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	stat, err := sess.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	count, err := stat.Count.Int()
	if err != nil || count != 2 {
		t.Fatalf("Stat count = %d, %v", count, err)
	}

	if err := sess.Quit(); err != nil {
		t.Fatalf("Quit: %v", err)
	}
}

func TestSessionRetr(t *testing.T) {
	sess := dialTestSession(t, "+OK ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "USER bob", reply: "+OK\r\n"},
		{expect: "PASS hunter2", reply: "+OK\r\n"},
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "RETR 1", reply: "+OK 42 octets\r\nSubject: hi\r\n..tricky\r\n.\r\n"},
	})

	if err := sess.Login("bob", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	body, err := sess.Retr(1)
	if err != nil {
		t.Fatalf("Retr: %v", err)
	}
	want := "Subject: hi\r\n.tricky\r\n"
	if string(body) != want {
		t.Fatalf("Retr body = %q, want %q", body, want)
	}
}

func TestSessionDeleAndRset(t *testing.T) {
	sess := dialTestSession(t, "+OK ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "USER carol", reply: "+OK\r\n"},
		{expect: "PASS pw", reply: "+OK\r\n"},
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "DELE 1", reply: "+OK message 1 deleted\r\n"},
		{expect: "RSET", reply: "+OK\r\n"},
	})

	if err := sess.Login("carol", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := sess.Dele(1); err != nil {
		t.Fatalf("Dele: %v", err)
	}
	if !sess.IsDeleted(1) {
		t.Fatal("expected message 1 to be marked deleted")
	}
	if err := sess.Rset(); err != nil {
		t.Fatalf("Rset: %v", err)
	}
	if sess.IsDeleted(1) {
		t.Fatal("expected Rset to clear the deletion set")
	}
}

func TestSessionDeleteOfAlreadyDeletedMessageFails(t *testing.T) {
	sess := &Session{state: stateTransaction, greeted: true, deleted: map[int]bool{3: true}}
	err := sess.requireNotDeleted(3)
	if err == nil {
		t.Fatal("expected an error for a message already marked deleted")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != ErrMessageIsDeleted {
		t.Fatalf("expected ErrMessageIsDeleted, got %v", err)
	}
}

func TestSessionOperationBeforeLoginFails(t *testing.T) {
	sess := dialTestSession(t, "+OK ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR\r\n"},
	})
	_, err := sess.Stat()
	if err == nil {
		t.Fatal("expected Stat to fail before Login")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != ErrIncorrectStateForCommand {
		t.Fatalf("expected ErrIncorrectStateForCommand, got %v", err)
	}
}

func TestSessionApop(t *testing.T) {
	sess := dialTestSession(t, "+OK POP3 server <1896.697170952@dbc.mtview.ca.us>\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "APOP mrose c4c9334bac560ecc979e58001b3e22fb", reply: "+OK maildrop has 1 message\r\n"},
		{expect: "CAPA", reply: "-ERR\r\n"},
	})

	greeting, _ := sess.Greeting()
	timestamp, ok := ExtractAPOPTimestamp(greeting.String())
	if !ok {
		t.Fatal("expected a timestamp in the greeting")
	}
	digest := ComputeAPOPDigest(timestamp, "tanstaaf")
	if err := sess.Apop("mrose", digest); err != nil {
		t.Fatalf("Apop: %v", err)
	}
}

func TestSessionAuthPlain(t *testing.T) {
	sess := dialTestSession(t, "+OK ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "-ERR\r\n"},
		{expect: "", reply: "+OK authenticated\r\n"},
		{expect: "CAPA", reply: "-ERR\r\n"},
	})
	auth := &PlainAuthenticator{Username: "dave", Password: "swordfish"}
	if err := sess.Auth(auth); err != nil {
		t.Fatalf("Auth: %v", err)
	}
}

// TestSessionLoginPrefersAuthPlain exercises the "try AUTH PLAIN first"
// path of Login: once the greeting's automatic CAPA refresh reports a
// SASL PLAIN mechanism, Login must drive an AUTH exchange instead of
// USER/PASS.
func TestSessionLoginPrefersAuthPlain(t *testing.T) {
	sess := dialTestSession(t, "+OK ready\r\n", []scriptStep{
		{expect: "CAPA", reply: "+OK Capability list follows\r\nSASL PLAIN\r\n.\r\n"},
		{expect: "AUTH PLAIN AHUAcA==", reply: "+OK authenticated\r\n"},
		{expect: "CAPA", reply: "-ERR\r\n"},
	})

	if err := sess.Login("u", "p"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

// TestSessionCheckTransportInvariant pins ErrShouldNotBeConnected as a
// reachable error: a Session that has drifted into Closed while still
// holding a transport reference must be rejected rather than silently
// allowed to issue further commands.
func TestSessionCheckTransportInvariant(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sess := &Session{state: stateClosed, greeted: true, conn: client}
	_, err := sess.Stat()
	if err == nil {
		t.Fatal("expected Stat to fail when the transport invariant is violated")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != ErrShouldNotBeConnected {
		t.Fatalf("expected ErrShouldNotBeConnected, got %v", err)
	}
}

// asError is errors.As without importing "errors" into every assertion
// above; kept tiny and local to this file.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
