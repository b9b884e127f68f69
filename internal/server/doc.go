// Package server implements the transport and connection lifecycle of the LAN
// chat hub.
//
// A Hub owns the gorilla/websocket clients and serializes accepts and
// disconnects through its Run loop. The Lifecycle turns those transitions and
// every inbound frame into registry mutations and router calls. The remaining
// files cover configuration, origin checks, HTTP routes, and the HTTP server
// helpers used by cmd/server.
package server
