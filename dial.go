package pop3

import (
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/net/idna"
)

// dialConfig collects the knobs DialOptions mutate. Defaults match a
// plain, unauthenticated connection with no metrics and a logger that
// discards everything.
type dialConfig struct {
	tlsConfig     *tls.Config
	dialTimeout   time.Duration
	maxBufferSize int
	logger        Logger
	metrics       *metricsCollector
}

// DialOption configures Dial/DialTLS, following the functional-options
// idiom kiwiz-popgun's sibling projects in the example pack use for
// server construction.
type DialOption func(*dialConfig)

// WithTLSConfig supplies a custom *tls.Config for DialTLS; without it,
// DialTLS builds one from the target host alone.
func WithTLSConfig(cfg *tls.Config) DialOption {
	return func(c *dialConfig) { c.tlsConfig = cfg }
}

// WithDialTimeout bounds how long the initial TCP/TLS handshake may take.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) { c.dialTimeout = d }
}

// WithMaxBufferSize overrides the response buffer's absolute cap (default
// 20 MiB); exceeding it fails the session with ErrResponseTooLarge.
func WithMaxBufferSize(n int) DialOption {
	return func(c *dialConfig) { c.maxBufferSize = n }
}

// WithLogger attaches a Logger that receives a line per command sent and
// per response parsed, at whatever level the Logger implementation maps
// Printf/Println to.
func WithLogger(l Logger) DialOption {
	return func(c *dialConfig) { c.logger = l }
}

// WithMetrics attaches a *metricsCollector built by NewMetrics.
func WithMetrics(m *metricsCollector) DialOption {
	return func(c *dialConfig) { c.metrics = m }
}

func newDialConfig(opts []DialOption) *dialConfig {
	c := &dialConfig{
		dialTimeout:   30 * time.Second,
		maxBufferSize: bufMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a POP3 server over a plain TCP connection, reads its
// greeting, and returns a ready-to-use Session in the authorization
// state. addr is "host:port".
func Dial(addr string, opts ...DialOption) (*Session, error) {
	cfg := newDialConfig(opts)
	conn, err := net.DialTimeout("tcp", addr, cfg.dialTimeout)
	if err != nil {
		return nil, wrapError(ErrIO, err, "failed to connect to %s", addr)
	}
	return newGreetedSession(conn, cfg)
}

// DialTLS connects over TLS from the start (the POP3S convention, port
// 995), normalizing host as the SNI server name via IDNA the way
// emvenci-go-pop3's Dial/DialTLS pair separates the two constructors.
func DialTLS(addr string, opts ...DialOption) (*Session, error) {
	cfg := newDialConfig(opts)

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, wrapError(ErrInvalidDNSName, err, "failed to normalize TLS server name %q", host)
	}

	tlsConfig := cfg.tlsConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = ascii
	}

	dialer := &net.Dialer{Timeout: cfg.dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, wrapError(ErrTLS, err, "TLS handshake with %s failed", addr)
	}
	return newGreetedSession(conn, cfg)
}

// NewSession builds a Session over an already-established net.Conn (for
// callers that manage their own dialing/pooling) and reads its greeting.
func NewSession(conn net.Conn, opts ...DialOption) (*Session, error) {
	return newGreetedSession(conn, newDialConfig(opts))
}

func newGreetedSession(conn net.Conn, cfg *dialConfig) (*Session, error) {
	s := newSession(conn, cfg.logger, cfg.metrics)
	s.stream.maxSize = cfg.maxBufferSize
	if err := s.greet(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}
