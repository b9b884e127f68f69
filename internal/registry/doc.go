// Package registry holds the in-memory state of the chat hub: which
// connections are live, the identity each one presents, and which groups
// each connection has joined.
//
// Both registries guard their maps with their own lock and hand out copies,
// so callers may keep a snapshot after the lock is released. Neither registry
// knows anything about delivery; broadcasting a change is the caller's job.
package registry
