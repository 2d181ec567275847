package pop3

import (
	"encoding/base64"
	"errors"
	"net"
	"strconv"
	"time"
)

// sessionState tracks the RFC 1939 state machine. stateUpdate is entered
// only transiently while QUIT is in flight; every Session ends in
// stateClosed.
type sessionState int

const (
	stateAuthorization sessionState = iota
	stateTransaction
	stateUpdate
	stateClosed
)

func (st sessionState) String() string {
	switch st {
	case stateAuthorization:
		return "authorization"
	case stateTransaction:
		return "transaction"
	case stateUpdate:
		return "update"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is a single POP3 client connection. It is not safe for
// concurrent use by multiple goroutines: commands are strictly
// request/response, and the session owns one in-flight exchange at a
// time, matching kiwiz-popgun's one-goroutine-per-connection model turned
// inside out for the client side.
type Session struct {
	stream  *frameStream
	conn    net.Conn
	state   sessionState
	greeted bool
	greeting Text

	capabilities     []Capability
	haveCapabilities bool

	deleted map[int]bool

	logger  Logger
	metrics *metricsCollector
}

func newSession(conn net.Conn, logger Logger, metrics *metricsCollector) *Session {
	return &Session{
		stream:  newFrameStream(conn, logger, metrics),
		conn:    conn,
		state:   stateAuthorization,
		deleted: make(map[int]bool),
		logger:  logger,
		metrics: metrics,
	}
}

// greet reads the server's unsolicited banner. Dial calls this once,
// immediately after the transport is established. Per the "capabilities
// is refreshed immediately after greeting" invariant, it also fetches the
// capability set before returning, best-effort: a server that doesn't
// support CAPA at all just leaves haveCapabilities false.
func (s *Session) greet() error {
	resp, err := s.stream.readGreeting()
	if err != nil {
		s.state = stateClosed
		return wrapError(ErrServerFailedToGreet, err, "failed to read the server greeting")
	}
	if errText, ok := resp.IsErr(); ok {
		s.state = stateClosed
		return newError(ErrServerFailedToGreet, "server refused the connection: %s", errText.String())
	}
	msg, ok := resp.Message()
	if !ok {
		s.state = stateClosed
		return newError(ErrUnexpectedResponse, "greeting did not parse as a status message")
	}
	s.greeting = msg
	s.greeted = true
	s.refreshCapabilitiesBestEffort()
	return nil
}

func (s *Session) requireState(want sessionState) error {
	if s.state != want {
		return newError(ErrIncorrectStateForCommand, "operation requires the %s state, session is in %s", want, s.state)
	}
	return nil
}

func (s *Session) requireGreeted() error {
	if !s.greeted {
		return newError(ErrServerFailedToGreet, "operation attempted before the server greeting was read")
	}
	return nil
}

func (s *Session) requireNotDeleted(n int) error {
	if s.deleted[n] {
		return newError(ErrMessageIsDeleted, "message %d is already marked for deletion", n)
	}
	return nil
}

// checkTransportInvariant enforces "in Update or Closed the transport
// reference is absent": both Quit and fail's fatal-error path release
// the transport as they transition into Update/Closed, so this should
// never trip in practice. It exists to catch the bookkeeping from
// drifting out of sync with the state machine.
func (s *Session) checkTransportInvariant() error {
	if (s.state == stateUpdate || s.state == stateClosed) && s.conn != nil {
		return newError(ErrShouldNotBeConnected, "session is in state %s but still holds a transport reference", s.state)
	}
	return nil
}

// precheck enforces the invariant-then-state-then-greeted ordering every
// command-issuing operation shares; capability and deletion-set checks,
// where applicable, are layered on by the caller afterward.
func (s *Session) precheck(want sessionState) error {
	if err := s.checkTransportInvariant(); err != nil {
		return err
	}
	if err := s.requireState(want); err != nil {
		return err
	}
	return s.requireGreeted()
}

// fail inspects a propagated error and, for anything that leaves the
// transport or the parser in an unrecoverable state, closes the session
// so later calls fail fast with ErrIncorrectStateForCommand instead of
// retrying a dead connection.
func (s *Session) fail(err error) error {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case ErrIO, ErrConnectionClosed, ErrInvalidResponse, ErrResponseTooLarge:
			s.state = stateClosed
			if s.conn != nil {
				s.conn.Close()
			}
			s.conn = nil
			s.stream.conn = nil
		}
	}
	return err
}

func checkOK(resp Response) error {
	if errText, ok := resp.IsErr(); ok {
		return newError(ErrServerError, "%s", errText.String())
	}
	return nil
}

// Noop sends a NOOP, which elicits a status response but has no other
// effect; useful as a keepalive.
func (s *Session) Noop() error {
	if err := s.precheck(stateTransaction); err != nil {
		return err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdNoop), false)
	if err != nil {
		return s.fail(err)
	}
	return checkOK(resp)
}

// Stat returns the maildrop's message count and total size.
func (s *Session) Stat() (StatInfo, error) {
	if err := s.precheck(stateTransaction); err != nil {
		return StatInfo{}, err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdStat), false)
	if err != nil {
		return StatInfo{}, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return StatInfo{}, err
	}
	stat, ok := resp.Stat()
	if !ok {
		return StatInfo{}, newError(ErrUnexpectedResponse, "STAT reply did not carry a stat payload")
	}
	return stat, nil
}

// List returns a scan listing for every undeleted message, or for message
// n alone when n is non-nil.
func (s *Session) List(n *int) (ListInfo, error) {
	if err := s.precheck(stateTransaction); err != nil {
		return ListInfo{}, err
	}
	var args []string
	single := n != nil
	if n != nil {
		if err := s.requireNotDeleted(*n); err != nil {
			return ListInfo{}, err
		}
		args = []string{strconv.Itoa(*n)}
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdList, args...), single)
	if err != nil {
		return ListInfo{}, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return ListInfo{}, err
	}
	list, ok := resp.List()
	if !ok {
		return ListInfo{}, newError(ErrUnexpectedResponse, "LIST reply did not carry a list payload")
	}
	return list, nil
}

// Uidl returns the unique-id listing for every undeleted message, or for
// message n alone when n is non-nil.
func (s *Session) Uidl(n *int) (UidlInfo, error) {
	if err := s.precheck(stateTransaction); err != nil {
		return UidlInfo{}, err
	}
	if s.haveCapabilities && !s.HasCapability(CapUidl) {
		return UidlInfo{}, newError(ErrFeatureUnsupported, "server did not advertise the UIDL capability")
	}
	var args []string
	single := n != nil
	if n != nil {
		if err := s.requireNotDeleted(*n); err != nil {
			return UidlInfo{}, err
		}
		args = []string{strconv.Itoa(*n)}
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdUidl, args...), single)
	if err != nil {
		return UidlInfo{}, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return UidlInfo{}, err
	}
	uidl, ok := resp.Uidl()
	if !ok {
		return UidlInfo{}, newError(ErrUnexpectedResponse, "UIDL reply did not carry a uidl payload")
	}
	return uidl, nil
}

// Retr downloads message n in full, dot-unstuffed and CRLF-terminated
// per line.
func (s *Session) Retr(n int) ([]byte, error) {
	if err := s.precheck(stateTransaction); err != nil {
		return nil, err
	}
	if err := s.requireNotDeleted(n); err != nil {
		return nil, err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdRetr, strconv.Itoa(n)), false)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return nil, err
	}
	body, ok := resp.Bytes()
	if !ok {
		return nil, newError(ErrUnexpectedResponse, "RETR reply did not carry a message body")
	}
	return body, nil
}

// Top downloads message n's headers plus its first lines lines of body.
func (s *Session) Top(n, lines int) ([]byte, error) {
	if err := s.precheck(stateTransaction); err != nil {
		return nil, err
	}
	if s.haveCapabilities && !s.HasCapability(CapTop) {
		return nil, newError(ErrFeatureUnsupported, "server did not advertise the TOP capability")
	}
	if err := s.requireNotDeleted(n); err != nil {
		return nil, err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdTop, strconv.Itoa(n), strconv.Itoa(lines)), false)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return nil, err
	}
	body, ok := resp.Bytes()
	if !ok {
		return nil, newError(ErrUnexpectedResponse, "TOP reply did not carry a message body")
	}
	return body, nil
}

// Dele marks message n for deletion; the server only actually removes it
// on a successful QUIT.
func (s *Session) Dele(n int) error {
	if err := s.precheck(stateTransaction); err != nil {
		return err
	}
	if err := s.requireNotDeleted(n); err != nil {
		return err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdDele, strconv.Itoa(n)), false)
	if err != nil {
		return s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	s.deleted[n] = true
	return nil
}

// Rset unmarks every message marked for deletion this session.
func (s *Session) Rset() error {
	if err := s.precheck(stateTransaction); err != nil {
		return err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdRset), false)
	if err != nil {
		return s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	s.deleted = make(map[int]bool)
	return nil
}

// Capa fetches and caches the server's advertised capability set. Valid in
// both the authorization and transaction states.
func (s *Session) Capa() ([]Capability, error) {
	if err := s.requireGreeted(); err != nil {
		return nil, err
	}
	if s.state != stateAuthorization && s.state != stateTransaction {
		return nil, newError(ErrIncorrectStateForCommand, "CAPA requires the authorization or transaction state, session is in %s", s.state)
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdCapa), false)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return nil, err
	}
	caps, ok := resp.Capabilities()
	if !ok {
		return nil, newError(ErrUnexpectedResponse, "CAPA reply did not carry a capability list")
	}
	s.capabilities = caps
	s.haveCapabilities = true
	return caps, nil
}

// HasCapability reports whether the last-fetched capability set
// advertises tag. It never issues a CAPA itself; call Capa first.
func (s *Session) HasCapability(tag CapabilityTag) bool {
	return hasCapabilityTag(s.capabilities, tag)
}

// refreshCapabilitiesBestEffort re-fetches capabilities after a state
// transition, since RFC 2449 capabilities (notably SASL) commonly differ
// between the authorization and transaction states. A server that
// doesn't support CAPA in the new state, or any other failure here, is
// not treated as fatal to the login that just succeeded.
func (s *Session) refreshCapabilitiesBestEffort() {
	if _, err := s.Capa(); err != nil {
		s.haveCapabilities = false
	}
}

// Apop authenticates with RFC 1939 §7's APOP digest scheme: name is the
// mailbox name and digest is the MD5 hex digest of the server's greeting
// timestamp concatenated with the shared secret (see ExtractAPOPTimestamp
// and ComputeAPOPDigest).
func (s *Session) Apop(name, digest string) error {
	if err := s.precheck(stateAuthorization); err != nil {
		return err
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdApop, name, digest), false)
	if err != nil {
		return s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	s.state = stateTransaction
	s.refreshCapabilitiesBestEffort()
	return nil
}

// Login authenticates a mailbox, preferring SASL PLAIN over the classic
// USER/PASS pair when the server advertises it during the post-greeting
// capability refresh; it falls back to USER/PASS otherwise.
func (s *Session) Login(user, pass string) error {
	if err := s.precheck(stateAuthorization); err != nil {
		return err
	}
	if s.haveCapabilities && findSaslMechanism(s.capabilities, "PLAIN") {
		return s.Auth(&PlainAuthenticator{Username: user, Password: pass})
	}
	resp, err := s.stream.sendAndRead(newRequest(cmdUser, user), false)
	if err != nil {
		return s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	resp, err = s.stream.sendAndRead(newRequest(cmdPass, pass), false)
	if err != nil {
		return s.fail(err)
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	s.state = stateTransaction
	s.refreshCapabilitiesBestEffort()
	return nil
}

// Auth drives a SASL mechanism (RFC 1734/4422) to completion: it sends
// the AUTH command (with an initial response appended when the
// authenticator offers one), then hands control to auth.Handle for any
// further challenge/response rounds.
func (s *Session) Auth(auth Authenticator) error {
	if err := s.precheck(stateAuthorization); err != nil {
		return err
	}
	if s.haveCapabilities && !findSaslMechanism(s.capabilities, auth.Mechanism()) {
		return newError(ErrFeatureUnsupported, "server did not advertise the %s SASL mechanism", auth.Mechanism())
	}

	args := []string{auth.Mechanism()}
	if initial, ok := auth.InitialResponse(); ok {
		args = append(args, base64.StdEncoding.EncodeToString(initial))
	}
	if err := s.stream.send(newRequest(cmdAuth, args...), false); err != nil {
		return s.fail(err)
	}

	comm := &Communicator{stream: s.stream}
	if err := auth.Handle(comm); err != nil {
		return s.fail(err)
	}
	if comm.final == nil {
		return s.fail(newError(ErrIO, "SASL handshake for %s ended without a final server response", auth.Mechanism()))
	}
	if err := checkOK(*comm.final); err != nil {
		return err
	}
	s.state = stateTransaction
	s.refreshCapabilitiesBestEffort()
	return nil
}

// Quit sends QUIT, which commits any pending deletions, then closes the
// transport and clears the deletion set, the cached capabilities and the
// greeted flag, regardless of the server's reply.
func (s *Session) Quit() error {
	if err := s.requireGreeted(); err != nil {
		return err
	}
	if s.state == stateClosed {
		return newError(ErrIncorrectStateForCommand, "session is already closed")
	}
	resp, sendErr := s.stream.sendAndRead(newRequest(cmdQuit), false)
	s.state = stateUpdate
	closeErr := s.conn.Close()
	s.state = stateClosed
	s.conn = nil
	s.stream.conn = nil
	s.deleted = make(map[int]bool)
	s.capabilities = nil
	s.haveCapabilities = false
	s.greeted = false

	if sendErr != nil {
		return sendErr
	}
	if err := checkOK(resp); err != nil {
		return err
	}
	if closeErr != nil {
		return wrapError(ErrIO, closeErr, "failed to close the transport after QUIT")
	}
	return nil
}

// IsDeleted reports whether message n has been marked for deletion this
// session.
func (s *Session) IsDeleted(n int) bool {
	return s.deleted[n]
}

// Greeting returns the server's banner text, if the greeting has been
// read.
func (s *Session) Greeting() (Text, bool) {
	return s.greeting, s.greeted
}

// LastActivity returns the time of the last byte written to the
// transport, if any command has been sent yet.
func (s *Session) LastActivity() (time.Time, bool) {
	return s.stream.lastActivityAt()
}

// Underlying exposes the raw transport, e.g. to inspect its TLS state.
func (s *Session) Underlying() net.Conn {
	return s.conn
}
