package pop3

import (
	"bytes"
	"strings"
)

// pendingCommand is a queue entry: the command awaiting a response, plus
// whether the request carried a message-number argument (this is what
// disambiguates LIST/UIDL's single-message grammar from their multi-line
// grammar — the shape is determined by what the client asked for, not by
// anything recoverable from the response bytes alone).
type pendingCommand struct {
	cmd    command
	single bool
}

// errIncomplete signals that the parser needs more bytes before it can
// recognize a complete response. need, when > 0, is a lower bound on how
// many additional bytes are required; 0 means "at least one more, exact
// amount unknown".
type errIncomplete struct {
	need int
}

func (e errIncomplete) Error() string { return "incomplete response" }

// parseResponse is the command-directed parser described in spec.md §4.2:
// given the bytes buffered so far and the command at the head of the
// queue, it recognizes exactly one complete response, or reports that more
// bytes are needed, or fails the session. It never consumes bytes past
// the end of the response it recognizes.
func parseResponse(buf []byte, pending pendingCommand) (Response, int, error) {
	line, next, ok := findLine(buf, 0)
	if !ok {
		return Response{}, 0, errIncomplete{}
	}

	// AUTH mid-handshake: a continuation line is "+ " followed by a
	// base64 challenge, distinguishable from "+OK" by the character
	// after '+'. The check runs before trailing spaces are trimmed, so an
	// empty challenge ("+ " CRLF) is still recognized.
	if (pending.cmd == cmdAuth || pending.cmd == cmdContinuation) && bytes.HasPrefix(line, []byte(contMark)) {
		challenge := trimTrailingSpace(line[len(contMark):])
		return Response{kind: KindChallenge, raw: dup(buf[:next]), challenge: textFrom(challenge)}, next, nil
	}
	line = trimTrailingSpace(line)

	switch {
	case bytes.HasPrefix(line, []byte(okPrefix)):
		message := statusMessage(line, len(okPrefix))
		return parseSuccessBody(buf, next, pending, message)
	case bytes.HasPrefix(line, []byte(errPrefix)):
		message := statusMessage(line, len(errPrefix))
		return Response{kind: KindErr, raw: dup(buf[:next]), errText: textFrom(message)}, next, nil
	default:
		return Response{}, 0, newError(ErrInvalidResponse, "response does not begin with %q or %q: %q", okPrefix, errPrefix, line)
	}
}

func statusMessage(line []byte, prefixLen int) []byte {
	rest := line[prefixLen:]
	if len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	return rest
}

func dup(b []byte) []byte { return append([]byte(nil), b...) }

func parseSuccessBody(buf []byte, afterStatusLine int, pending pendingCommand, message []byte) (Response, int, error) {
	switch pending.cmd {
	case cmdStat:
		count, octets, err := parseNumberPair(message)
		if err != nil {
			return Response{}, 0, err
		}
		return Response{
			kind: KindStat,
			raw:  dup(buf[:afterStatusLine]),
			stat: StatInfo{Count: count, Octets: octets},
		}, afterStatusLine, nil

	case cmdList:
		if pending.single {
			index, size, err := parseNumberPair(message)
			if err != nil {
				return Response{}, 0, err
			}
			return Response{
				kind: KindList,
				raw:  dup(buf[:afterStatusLine]),
				list: ListInfo{Multi: false, Single: ListItem{Index: index, Size: size}},
			}, afterStatusLine, nil
		}
		lines, next, ok := scanMultiline(buf, afterStatusLine)
		if !ok {
			return Response{}, 0, errIncomplete{}
		}
		items := make([]ListItem, 0, len(lines))
		for _, l := range lines {
			index, size, err := parseNumberPair(l)
			if err != nil {
				return Response{}, 0, err
			}
			items = append(items, ListItem{Index: index, Size: size})
		}
		return Response{
			kind: KindList,
			raw:  dup(buf[:next]),
			list: ListInfo{Multi: true, Items: items},
		}, next, nil

	case cmdUidl:
		if pending.single {
			index, id, err := parseIndexAndToken(message)
			if err != nil {
				return Response{}, 0, err
			}
			return Response{
				kind: KindUidl,
				raw:  dup(buf[:afterStatusLine]),
				uidl: UidlInfo{Multi: false, Single: UidlItem{Index: index, ID: id}},
			}, afterStatusLine, nil
		}
		lines, next, ok := scanMultiline(buf, afterStatusLine)
		if !ok {
			return Response{}, 0, errIncomplete{}
		}
		items := make([]UidlItem, 0, len(lines))
		for _, l := range lines {
			index, id, err := parseIndexAndToken(l)
			if err != nil {
				return Response{}, 0, err
			}
			items = append(items, UidlItem{Index: index, ID: id})
		}
		return Response{
			kind: KindUidl,
			raw:  dup(buf[:next]),
			uidl: UidlInfo{Multi: true, Items: items},
		}, next, nil

	case cmdRetr, cmdTop:
		lines, next, ok := scanMultiline(buf, afterStatusLine)
		if !ok {
			return Response{}, 0, errIncomplete{}
		}
		var body bytes.Buffer
		for _, l := range lines {
			body.Write(unstuffDotLine(l))
			body.Write(crlf)
		}
		return Response{
			kind:      KindBytes,
			raw:       dup(buf[:next]),
			bytesBody: body.Bytes(),
		}, next, nil

	case cmdCapa:
		lines, next, ok := scanMultiline(buf, afterStatusLine)
		if !ok {
			return Response{}, 0, errIncomplete{}
		}
		caps := make([]Capability, 0, len(lines))
		for _, l := range lines {
			caps = append(caps, parseCapabilityLine(l))
		}
		return Response{
			kind:         KindCapability,
			raw:          dup(buf[:next]),
			capabilities: caps,
		}, next, nil

	default:
		// GREET, NOOP, DELE, RSET, APOP, USER, PASS, QUIT, AUTH
		// (non-challenge), CONTINUATION (final status): single status
		// line carrying a free-form message.
		return Response{
			kind:    KindMessage,
			raw:     dup(buf[:afterStatusLine]),
			message: textFrom(message),
		}, afterStatusLine, nil
	}
}

// scanMultiline collects raw (not yet dot-unstuffed) body lines starting
// at offset, stopping at the "." terminator line. It reports ok=false if
// the terminator hasn't arrived yet.
func scanMultiline(buf []byte, offset int) (lines [][]byte, next int, ok bool) {
	cur := offset
	var collected [][]byte
	for {
		line, n, found := findLine(buf, cur)
		if !found {
			return nil, 0, false
		}
		if isEndOfMultiline(line) {
			return collected, n, true
		}
		collected = append(collected, trimTrailingSpace(line))
		cur = n
	}
}

func parseNumberPair(field []byte) (Number, Number, error) {
	fields := strings.Fields(string(field))
	if len(fields) < 2 {
		return Number{}, Number{}, newError(ErrInvalidResponse, "expected two numeric fields, got %q", field)
	}
	return numberFrom([]byte(fields[0])), numberFrom([]byte(fields[1])), nil
}

// parseIndexAndToken splits "index SP id" where id is the UIDL unique-id
// token: 1..70 bytes in the inclusive range 0x21..0x7E (no embedded
// spaces, per spec.md §6).
func parseIndexAndToken(field []byte) (Number, Text, error) {
	fields := strings.Fields(string(field))
	if len(fields) < 2 {
		return Number{}, Text{}, newError(ErrInvalidResponse, "expected an index and a unique-id token, got %q", field)
	}
	id := fields[1]
	if len(id) < 1 || len(id) > 70 {
		return Number{}, Text{}, newError(ErrInvalidResponse, "unique-id token %q has invalid length", id)
	}
	for _, c := range []byte(id) {
		if c < 0x21 || c > 0x7E {
			return Number{}, Text{}, newError(ErrInvalidResponse, "unique-id token %q contains an invalid byte", id)
		}
	}
	return numberFrom([]byte(fields[0])), textFrom([]byte(id)), nil
}
