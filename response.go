package pop3

import (
	"strconv"
)

// Number is a lazily-parsed numeric response field: the raw bytes are kept
// so that unusual-but-acceptable server output (leading zeros, extra
// whitespace already trimmed, etc.) is never rejected purely because this
// module chose to eagerly parse it. Grounded on
// original_source/src/response/types/number.rs.
type Number struct {
	raw []byte
}

// Raw returns the untouched bytes the server sent for this field.
func (n Number) Raw() []byte { return n.raw }

// Int parses the raw bytes as a base-10 integer.
func (n Number) Int() (int, error) {
	v, err := strconv.Atoi(string(n.raw))
	if err != nil {
		return 0, wrapError(ErrParseInt, err, "failed to parse %q as an integer", n.raw)
	}
	return v, nil
}

func (n Number) String() string { return string(n.raw) }

// Text is a textual response field kept as the raw bytes the server sent;
// it is not validated as UTF-8.
type Text struct {
	raw []byte
}

// Raw returns the untouched bytes.
func (t Text) Raw() []byte { return t.raw }

// String returns the raw bytes as a Go string. Invalid UTF-8 sequences
// are kept as they are, neither replaced nor rejected (this module never
// rejects a perfectly good status line just because a server embedded
// non-UTF8 bytes in free-form text).
func (t Text) String() string { return string(t.raw) }

// StatInfo is the body of a STAT response: message count and maildrop
// size in octets.
type StatInfo struct {
	Count  Number
	Octets Number
}

// ListItem is one scan listing: message number and size in octets.
type ListItem struct {
	Index Number
	Size  Number
}

// ListInfo is the body of a LIST response, either the multi-line form
// (all messages) or the single-message form.
type ListInfo struct {
	Multi bool

	// Valid when Multi is true.
	Items []ListItem

	// Valid when Multi is false.
	Single ListItem
}

// UidlItem is one unique-id listing: message number and opaque id token.
type UidlItem struct {
	Index Number
	ID    Text
}

// UidlInfo is the body of a UIDL response, either the multi-line form or
// the single-message form.
type UidlInfo struct {
	Multi bool

	Items []UidlItem

	Single UidlItem
}

// Kind discriminates the Response tagged union.
type Kind int

const (
	KindStat Kind = iota
	KindList
	KindBytes
	KindUidl
	KindCapability
	KindMessage
	KindChallenge
	KindErr
)

// Response is the tagged union produced by the response parser: exactly
// one of the per-kind accessor methods below returns ok==true, selected by
// Kind. Every variant preserves the raw bytes that produced it.
type Response struct {
	kind Kind
	raw  []byte

	stat         StatInfo
	list         ListInfo
	bytesBody    []byte
	uidl         UidlInfo
	capabilities []Capability
	message      Text
	challenge    Text
	errText      Text
}

// Kind reports the response's variant.
func (r Response) Kind() Kind { return r.kind }

// Raw returns the bytes that produced this response.
func (r Response) Raw() []byte { return r.raw }

// Stat returns the STAT payload, if this response is a Stat.
func (r Response) Stat() (StatInfo, bool) {
	return r.stat, r.kind == KindStat
}

// List returns the LIST payload, if this response is a List.
func (r Response) List() (ListInfo, bool) {
	return r.list, r.kind == KindList
}

// Bytes returns the RETR/TOP body (dot-unstuffed, terminator stripped),
// if this response carries one.
func (r Response) Bytes() ([]byte, bool) {
	return r.bytesBody, r.kind == KindBytes
}

// Uidl returns the UIDL payload, if this response is a Uidl.
func (r Response) Uidl() (UidlInfo, bool) {
	return r.uidl, r.kind == KindUidl
}

// Capabilities returns the advertised capability set, if this response is
// a Capability response.
func (r Response) Capabilities() ([]Capability, bool) {
	return r.capabilities, r.kind == KindCapability
}

// Message returns the free-form status text, if this response is a plain
// Message (the common case for NOOP/DELE/RSET/APOP/USER/PASS/QUIT/GREET).
func (r Response) Message() (Text, bool) {
	return r.message, r.kind == KindMessage
}

// Challenge returns a SASL continuation payload, if this response is a
// mid-handshake Challenge.
func (r Response) Challenge() (Text, bool) {
	return r.challenge, r.kind == KindChallenge
}

// IsErr returns the server's error text, if this response is a "-ERR".
func (r Response) IsErr() (Text, bool) {
	return r.errText, r.kind == KindErr
}

func numberFrom(b []byte) Number { return Number{raw: append([]byte(nil), b...)} }
func textFrom(b []byte) Text     { return Text{raw: append([]byte(nil), b...)} }
