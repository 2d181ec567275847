package pop3

import "github.com/sirupsen/logrus"

// Logger is the minimal logging surface the frame stream writes protocol
// traces to. Kept as an interface (rather than a concrete *logrus.Logger
// field) so a caller can plug in any sink; kiwiz-popgun/popgun.go does the
// same with its own Logger interface over "log".
type Logger interface {
	Printf(format string, args ...interface{})
	Println(args ...interface{})
}

// logrusLogger adapts a *logrus.Logger (or Entry) to Logger at debug level,
// since protocol traces are noisy by design and shouldn't show up at the
// caller's default log level.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger returns a Logger backed by a standalone logrus.Logger
// configured for text output at debug level, suitable when the caller
// doesn't already have a logrus instance to share.
func NewDefaultLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusLogger adapts an existing *logrus.Logger, tagging its entries
// with component=pop3 so traces are greppable in a shared application log.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{entry: l.WithField("component", "pop3")}
}

func (l *logrusLogger) Printf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Println(args ...interface{}) {
	l.entry.Debugln(args...)
}
