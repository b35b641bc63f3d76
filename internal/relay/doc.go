// Package relay implements the real-time listener chat for the Zimatlán
// Radio website: a WebSocket hub that tracks device sessions, keeps a
// bounded message history with replay to newcomers, toggles per-message
// reactions, passes typing signals through, and rewrites author names
// retroactively on rename.
//
// The implementation is organized into specialized files for configuration,
// the hub event loop, clients, the session registry, the history store,
// the wire protocol, and HTTP plumbing to keep the codebase maintainable
// and testable as the project grows.
package relay
