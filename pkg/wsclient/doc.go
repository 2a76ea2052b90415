// Package wsclient is the Go client for the task notification WebSocket.
//
// A Manager subscribes for one user, turns task_update frames into toast
// lines plus a task list refresh, and reconnects with capped exponential
// backoff (2s, 4s, 8s, 16s, 30s) until MaxReconnectAttempts consecutive
// failures. The session logic lives in the pure Transition function; the
// Manager only performs the I/O it asks for.
package wsclient
