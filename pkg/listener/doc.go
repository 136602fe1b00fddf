// Package listener implements a TLS listener whose certificate, key, ALPN
// list, and client-verification mode can be replaced at any time without
// closing the listening socket or disturbing in-flight connections.
//
// The listener multiplexes two event sources inside Accept: configuration
// snapshots from a config.Source and raw connections from the underlying
// transport. Handshakes run independently of the accept loop, so one slow or
// hostile peer delays only its own connection.
package listener
