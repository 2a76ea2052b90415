package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	user    string
	sendErr error
	closed  bool
}

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClientDisconnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) AuthenticatedUser() (string, bool) {
	return f.user, f.user != ""
}

func (f *fakeConn) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeConn) lastJSON(t *testing.T) map[string]interface{} {
	t.Helper()
	frames := f.frames()
	require.NotEmpty(t, frames)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &m))
	return m
}
