// Package pop3 implements an asynchronous-style POP3 client: RFC 1939's
// core commands, RFC 2449 capability negotiation, RFC 1734/4422 SASL
// authentication, and RFC 1939 §7 APOP digest authentication.
//
// A Session is obtained with Dial, DialTLS, or NewSession, which read the
// server's greeting before returning. From there, Login, Apop, or Auth
// moves the session from the authorization state into the transaction
// state, where Stat, List, Uidl, Retr, Top, Dele, and Rset become legal.
// Quit commits any pending deletions and closes the transport.
package pop3
