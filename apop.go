package pop3

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
)

// timestampPattern matches the "<...>" msg-id banner RFC 1939 §7 requires
// a POP3 server to embed in its greeting for APOP to be usable. Grounded
// on other_examples/3c85c201_ziembor-msgraphgolangtestingtool's
// ParseGreeting, adapted from a synchronous response string to the
// Greeting() Text accessor this module exposes.
var timestampPattern = regexp.MustCompile(`<[^<>@]+@[^<>]+>`)

// ExtractAPOPTimestamp finds the banner's msg-id timestamp, if present.
// APOP is unusable against a greeting with no such token.
func ExtractAPOPTimestamp(greeting string) (string, bool) {
	m := timestampPattern.FindString(greeting)
	if m == "" {
		return "", false
	}
	return m, true
}

// ComputeAPOPDigest computes the MD5 digest RFC 1939 §7 defines: the
// lowercase hex digest of the timestamp concatenated with the shared
// secret.
func ComputeAPOPDigest(timestamp, sharedSecret string) string {
	sum := md5.Sum([]byte(timestamp + sharedSecret))
	return hex.EncodeToString(sum[:])
}
