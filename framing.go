package pop3

import "bytes"

// Wire framing primitives shared by the parser and the frame stream. Lines
// terminate with CRLF; trailing spaces before the terminator are tolerated
// on read and never emitted on write (kept from kiwiz-popgun/popgun.go's
// Printer, which trims "\r \n" on the write side before re-adding CRLF).

var crlf = []byte("\r\n")

const (
	okPrefix  = "+OK"
	errPrefix = "-ERR"
	contMark  = "+ "
)

// findLine locates the next CRLF-terminated line in buf starting at
// offset. It returns the line without its terminator and the offset of the
// first byte after the terminator, or ok=false if no full line is
// buffered yet.
func findLine(buf []byte, offset int) (line []byte, next int, ok bool) {
	idx := bytes.Index(buf[offset:], crlf)
	if idx < 0 {
		return nil, 0, false
	}
	lineEnd := offset + idx
	return buf[offset:lineEnd], lineEnd + len(crlf), true
}

// unstuffDotLine strips exactly one leading '.' from a multi-line body
// line, per RFC 1939 §3's dot-stuffing convention. The teacher
// (kiwiz-popgun/popgun.go Printer.MultiLine) only ever implements the
// write-side of this; this is the read-side mirror.
func unstuffDotLine(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		return line[1:]
	}
	return line
}

// isEndOfMultiline reports whether line is the lone "." terminator of a
// multi-line response body.
func isEndOfMultiline(line []byte) bool {
	return len(line) == 1 && line[0] == '.'
}

// trimTrailingSpace removes spaces immediately preceding the CRLF that
// findLine already stripped, matching the "trailing spaces... tolerated
// on read" rule from spec.md §4.1.
func trimTrailingSpace(line []byte) []byte {
	return bytes.TrimRight(line, " ")
}
