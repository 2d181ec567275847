package pop3

import (
	"fmt"
	"strconv"
	"strings"
)

// CapabilityTag is the discriminant of a Capability; has_capability
// equality compares by tag only, never by parameters (spec.md §3: "Sasl
// matches any Sasl(_)").
type CapabilityTag int

const (
	CapTop CapabilityTag = iota
	CapUser
	CapSasl
	CapRespCodes
	CapLoginDelay
	CapPipelining
	CapExpire
	CapUidl
	CapImplementation
	CapStls
	CapOther
)

// Capability is a single advertised RFC 2449 capability. Only the fields
// relevant to Tag are meaningful; the rest are zero.
type Capability struct {
	Tag CapabilityTag

	// Mechanisms holds the SASL mechanism list for CapSasl.
	Mechanisms []string
	// LoginDelaySeconds holds the delay for CapLoginDelay.
	LoginDelaySeconds int
	// ExpireNever and ExpireDays describe CapExpire: either the
	// maildrop never expires messages, or it expires them after
	// ExpireDays days.
	ExpireNever bool
	ExpireDays  int
	// Text holds the free-form payload for CapImplementation and the
	// verbatim name for CapOther.
	Text string
}

// HasTag reports whether cap matches tag, ignoring parameters.
func (c Capability) HasTag(tag CapabilityTag) bool {
	return c.Tag == tag
}

// String re-serializes the capability to the RFC 2449 wire form (modulo
// ordering/case, per spec.md §8 testable property 3).
func (c Capability) String() string {
	switch c.Tag {
	case CapTop:
		return "TOP"
	case CapUser:
		return "USER"
	case CapSasl:
		if len(c.Mechanisms) == 0 {
			return "SASL"
		}
		return "SASL " + strings.Join(c.Mechanisms, " ")
	case CapRespCodes:
		return "RESP-CODES"
	case CapLoginDelay:
		return fmt.Sprintf("LOGIN-DELAY %d", c.LoginDelaySeconds)
	case CapPipelining:
		return "PIPELINING"
	case CapExpire:
		if c.ExpireNever {
			return "EXPIRE NEVER"
		}
		return fmt.Sprintf("EXPIRE %d", c.ExpireDays)
	case CapUidl:
		return "UIDL"
	case CapImplementation:
		return "IMPLEMENTATION " + c.Text
	case CapStls:
		return "STLS"
	case CapOther:
		return c.Text
	default:
		return ""
	}
}

// parseCapabilityLine parses a single CAPA body line (already trimmed of
// CRLF) into a Capability. Grounded on
// original_source/src/response/parser/rfc2449.rs's per-tag grammar.
func parseCapabilityLine(line []byte) Capability {
	s := string(line)
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Capability{Tag: CapOther, Text: ""}
	}
	name := strings.ToUpper(fields[0])
	rest := fields[1:]

	switch name {
	case "TOP":
		return Capability{Tag: CapTop}
	case "USER":
		return Capability{Tag: CapUser}
	case "SASL":
		mechs := make([]string, len(rest))
		for i, m := range rest {
			mechs[i] = strings.ToUpper(m)
		}
		return Capability{Tag: CapSasl, Mechanisms: mechs}
	case "RESP-CODES":
		return Capability{Tag: CapRespCodes}
	case "LOGIN-DELAY":
		seconds := 0
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil {
				seconds = n
			}
		}
		return Capability{Tag: CapLoginDelay, LoginDelaySeconds: seconds}
	case "PIPELINING":
		return Capability{Tag: CapPipelining}
	case "EXPIRE":
		if len(rest) > 0 && strings.EqualFold(rest[0], "NEVER") {
			return Capability{Tag: CapExpire, ExpireNever: true}
		}
		days := 0
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil {
				days = n
			}
		}
		return Capability{Tag: CapExpire, ExpireDays: days}
	case "UIDL":
		return Capability{Tag: CapUidl}
	case "IMPLEMENTATION":
		return Capability{Tag: CapImplementation, Text: strings.Join(rest, " ")}
	case "STLS":
		return Capability{Tag: CapStls}
	default:
		return Capability{Tag: CapOther, Text: s}
	}
}

// hasCapabilityTag reports whether any capability in the set matches tag.
func hasCapabilityTag(caps []Capability, tag CapabilityTag) bool {
	for _, c := range caps {
		if c.Tag == tag {
			return true
		}
	}
	return false
}

// findSaslMechanism reports whether mechanism (case-insensitive) is
// present in any advertised CapSasl capability.
func findSaslMechanism(caps []Capability, mechanism string) bool {
	for _, c := range caps {
		if c.Tag != CapSasl {
			continue
		}
		for _, m := range c.Mechanisms {
			if strings.EqualFold(m, mechanism) {
				return true
			}
		}
	}
	return false
}
