package pop3

import (
	"encoding/base64"
	"errors"
)

// errAuthDone is returned internally by Communicator.Next to signal that
// the server sent a final status line (not a challenge) and the SASL
// handshake is over; it never escapes Session.Auth.
var errAuthDone = errors.New("sasl handshake complete")

// Authenticator drives one SASL mechanism's handshake (RFC 4422), letting
// callers plug in mechanisms this module doesn't build in. Grounded on the
// Authenticator/Communicator split in original_source/src/sasl.rs.
type Authenticator interface {
	// Mechanism is the SASL mechanism name sent on the AUTH command line,
	// e.g. "PLAIN" or "XOAUTH2".
	Mechanism() string
	// InitialResponse returns the bytes to append to the AUTH command
	// line itself (RFC 4422 "initial response" optimization), or
	// ok=false to let the server request it via a challenge instead.
	InitialResponse() ([]byte, bool)
	// Handle drives the remainder of the handshake: read challenges from
	// comm and answer them until the server sends a final status.
	Handle(comm *Communicator) error
}

// Communicator is the narrow channel an Authenticator uses to exchange
// SASL challenge/response lines with the server, without reaching into
// the session's internals.
type Communicator struct {
	stream *frameStream
	final  *Response
}

// Next reads the next line from the server. If it's a "+ " challenge, its
// base64 payload is decoded and returned. If it's a final "+OK"/"-ERR",
// the handshake is over: Next returns errAuthDone and stashes the
// terminal Response for the session to inspect afterward.
func (c *Communicator) Next() (Text, error) {
	resp, err := c.stream.readNext()
	if err != nil {
		return Text{}, err
	}
	if challenge, ok := resp.Challenge(); ok {
		decoded, err := base64.StdEncoding.DecodeString(challenge.String())
		if err != nil {
			return Text{}, wrapError(ErrDecodeBase64, err, "failed to base64-decode SASL challenge %q", challenge.String())
		}
		return textFrom(decoded), nil
	}
	c.final = &resp
	return Text{}, errAuthDone
}

// Send base64-encodes reply and sends it as a continuation line.
func (c *Communicator) Send(reply []byte) error {
	encoded := base64.StdEncoding.EncodeToString(reply)
	return c.stream.sendRawLine(encoded, pendingCommand{cmd: cmdContinuation})
}

// Cancel sends the RFC 4422 "*" abort line.
func (c *Communicator) Cancel() error {
	return c.stream.sendRawLine("*", pendingCommand{cmd: cmdContinuation})
}

// PlainAuthenticator implements RFC 4616 SASL PLAIN.
type PlainAuthenticator struct {
	Authzid  string
	Username string
	Password string
}

func (a *PlainAuthenticator) Mechanism() string { return "PLAIN" }

func (a *PlainAuthenticator) response() []byte {
	return []byte(a.Authzid + "\x00" + a.Username + "\x00" + a.Password)
}

func (a *PlainAuthenticator) InitialResponse() ([]byte, bool) {
	return a.response(), true
}

// Handle answers any challenge with the same credentials string; PLAIN is
// single-step, so this only runs when the server didn't accept the
// initial response and asked for it via an empty continuation instead.
func (a *PlainAuthenticator) Handle(comm *Communicator) error {
	for {
		_, err := comm.Next()
		if err == errAuthDone {
			return nil
		}
		if err != nil {
			return err
		}
		if err := comm.Send(a.response()); err != nil {
			return err
		}
	}
}

// XOAuth2Authenticator implements Google's XOAUTH2 mechanism: an OAuth2
// bearer token presented in place of a password.
type XOAuth2Authenticator struct {
	Username string
	Token    string
}

func (a *XOAuth2Authenticator) Mechanism() string { return "XOAUTH2" }

func (a *XOAuth2Authenticator) response() []byte {
	return []byte("user=" + a.Username + "\x01auth=Bearer " + a.Token + "\x01\x01")
}

func (a *XOAuth2Authenticator) InitialResponse() ([]byte, bool) {
	return a.response(), true
}

// Handle answers the first challenge with credentials; if the server
// rejects them it sends a base64 JSON error as a further challenge, to
// which RFC 7628 requires the client answer with an empty response
// before the server sends its final -ERR.
func (a *XOAuth2Authenticator) Handle(comm *Communicator) error {
	first := true
	for {
		_, err := comm.Next()
		if err == errAuthDone {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			if err := comm.Send(a.response()); err != nil {
				return err
			}
			continue
		}
		if err := comm.Send(nil); err != nil {
			return err
		}
	}
}
