package pop3

import (
	"io"
	"net"
	"time"
)

const (
	// bufGrowChunk is how much the frame stream grows its read buffer
	// by whenever it needs more bytes, per spec.md §4.3.
	bufGrowChunk = 2 * 1024
	// bufMaxSize is the absolute cap on the read buffer; exceeding it
	// fails the session with ErrResponseTooLarge.
	bufMaxSize = 20 * 1024 * 1024
)

// frameStream owns the transport, a growable read buffer, and a FIFO
// queue of commands awaiting a response. It is the sole owner of the
// socket and the queue (spec.md §5: "no locks are required because there
// is no intra-session sharing"). Grounded on kiwiz-popgun/popgun.go's
// Client.handle() read loop and original_source/src/stream.rs's PopStream.
type frameStream struct {
	conn         net.Conn
	buf          []byte
	queue        []pendingCommand
	lastActivity time.Time
	logger       Logger
	metrics      *metricsCollector
	maxSize      int
}

func newFrameStream(conn net.Conn, logger Logger, m *metricsCollector) *frameStream {
	return &frameStream{
		conn:    conn,
		buf:     make([]byte, 0, bufGrowChunk),
		logger:  logger,
		metrics: m,
		maxSize: bufMaxSize,
	}
}

// send serializes req, writes it to the transport, and appends its
// command to the queue tail. No response is awaited here.
func (f *frameStream) send(req request, single bool) error {
	return f.sendRawLine(req.line(), pendingCommand{cmd: req.cmd, single: single})
}

// sendRawLine writes line+CRLF directly to the transport without
// interpreting it as a Request — used by the SASL communicator to send
// base64 challenge replies and the "*" cancellation line.
func (f *frameStream) sendRawLine(line string, pending pendingCommand) error {
	if f.conn == nil {
		return newError(ErrNotConnected, "not connected to any server")
	}
	if _, err := io.WriteString(f.conn, line+"\r\n"); err != nil {
		return wrapError(ErrIO, err, "failed to write %q to the server", line)
	}
	f.lastActivity = time.Now()
	f.queue = append(f.queue, pending)
	if f.logger != nil {
		f.logger.Printf("C: %s", line)
	}
	if f.metrics != nil {
		f.metrics.observeSend(pending.cmd)
	}
	return nil
}

// sendAndRead is the common send-then-await-one-response path used by
// every Session operation outside of the SASL handshake.
func (f *frameStream) sendAndRead(req request, single bool) (Response, error) {
	if err := f.send(req, single); err != nil {
		return Response{}, err
	}
	return f.readNext()
}

// readGreeting consumes the unsolicited banner the server sends
// immediately on connection, per spec.md §4.3.
func (f *frameStream) readGreeting() (Response, error) {
	f.queue = append(f.queue, pendingCommand{cmd: cmdGreet})
	return f.readNext()
}

// readNext loops: try to parse one response from the buffered bytes using
// the command at the head of the queue; on success, dequeue and compact;
// on "need more bytes", read more from the transport and retry; on
// malformed input, fail the session.
func (f *frameStream) readNext() (Response, error) {
	if len(f.queue) == 0 {
		return Response{}, newError(ErrIO, "readNext called with an empty command queue")
	}
	pending := f.queue[0]

	for {
		resp, consumed, err := parseResponse(f.buf, pending)
		if err == nil {
			f.queue = f.queue[1:]
			f.buf = f.buf[consumed:]
			if f.logger != nil {
				f.logger.Printf("S: %d bytes for %s", consumed, pending.cmd)
			}
			if f.metrics != nil {
				f.metrics.observeRecv(pending.cmd, consumed, resp.kind == KindErr)
			}
			return resp, nil
		}

		if inc, ok := err.(errIncomplete); ok {
			if fillErr := f.fill(inc.need); fillErr != nil {
				return Response{}, fillErr
			}
			continue
		}

		if f.metrics != nil {
			f.metrics.observeParseFailure()
		}
		return Response{}, err
	}
}

// fill reads more bytes from the transport into the buffer, growing it in
// bufGrowChunk increments up to bufMaxSize.
func (f *frameStream) fill(need int) error {
	if f.conn == nil {
		return newError(ErrNotConnected, "not connected to any server")
	}

	growBy := bufGrowChunk
	if need > growBy {
		growBy = need
	}
	if len(f.buf)+growBy > f.maxSize {
		growBy = f.maxSize - len(f.buf)
		if growBy <= 0 {
			return newError(ErrResponseTooLarge, "response exceeded the %d byte buffer cap", f.maxSize)
		}
	}

	start := len(f.buf)
	f.buf = append(f.buf, make([]byte, growBy)...)
	n, err := f.conn.Read(f.buf[start:])
	f.buf = f.buf[:start+n]

	if n == 0 {
		if err == nil || err == io.EOF {
			return newError(ErrConnectionClosed, "the server closed the connection")
		}
		return wrapError(ErrIO, err, "failed to read from the server")
	}
	return nil
}

func (f *frameStream) lastActivityAt() (time.Time, bool) {
	if f.lastActivity.IsZero() {
		return time.Time{}, false
	}
	return f.lastActivity, true
}
