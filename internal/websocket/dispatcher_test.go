package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"task-notify/internal/models"
	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	registry   *Registry
	subs       *SubscriptionMap
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

func newDispatcherFixture() *dispatcherFixture {
	m := metrics.New("test")
	registry := NewRegistry(logger.Nop(), m)
	subs := NewSubscriptionMap()
	registry.OnUnregister(func(h Handle) { subs.UnsubscribeByHandle(h) })
	return &dispatcherFixture{
		registry:   registry,
		subs:       subs,
		dispatcher: NewDispatcher(registry, subs, logger.Nop(), m),
		metrics:    m,
	}
}

func (f *dispatcherFixture) notifications(result string) float64 {
	families, err := f.metrics.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != "test_notifications_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestDispatcher_SubscribeAndNotify(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)

	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":42}`))
	assert.JSONEq(t, `{"type":"subscribed","userId":42}`, string(conn.frames()[0]))

	task := models.Task{ID: 7, Title: "X", Status: models.TaskStatusPending}
	f.dispatcher.Notify(context.Background(), "42", task, models.TaskActionCreated)

	got := conn.lastJSON(t)
	assert.Equal(t, "task_update", got["type"])
	assert.Equal(t, "created", got["action"])
	gotTask := got["task"].(map[string]interface{})
	assert.Equal(t, float64(7), gotTask["id"])
	assert.Equal(t, "X", gotTask["title"])
	assert.Equal(t, float64(1), f.notifications(metrics.ResultDelivered))
}

func TestDispatcher_StringAndNumberUserIDsAreTheSameUser(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)

	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":"42"}`))
	assert.JSONEq(t, `{"type":"subscribed","userId":"42"}`, string(conn.frames()[0]))

	f.dispatcher.Notify(context.Background(), "42", models.Task{ID: 1}, models.TaskActionDeleted)
	assert.Len(t, conn.frames(), 2)
}

func TestDispatcher_Ping(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)

	f.dispatcher.HandleMessage(h, []byte(`{"type":"ping"}`))
	assert.JSONEq(t, `{"type":"pong"}`, string(conn.frames()[0]))
}

func TestDispatcher_IgnoresBadInput(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)

	inputs := []string{
		`not json`,
		`{"type":"dance"}`,
		`{"type":"subscribe"}`,
		`{"type":"subscribe","userId":null}`,
		`{"type":"subscribe","userId":""}`,
		`{"type":"subscribe","userId":{"id":1}}`,
		`{"type":"subscribe","userId":true}`,
		`[]`,
	}
	for _, in := range inputs {
		f.dispatcher.HandleMessage(h, []byte(in))
	}

	assert.Empty(t, conn.frames())
	assert.Equal(t, 0, f.subs.Count())
	assert.True(t, f.registry.Alive(h))
	assert.False(t, conn.closed)
}

func TestDispatcher_DropWhenNoSubscriber(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	f.registry.Register(conn)

	f.dispatcher.Notify(context.Background(), "99", models.Task{ID: 1}, models.TaskActionCreated)

	assert.Empty(t, conn.frames())
	assert.Equal(t, float64(1), f.notifications(metrics.ResultDropped))
}

func TestDispatcher_OnlyLatestSubscriberReceives(t *testing.T) {
	f := newDispatcherFixture()
	first, second := &fakeConn{}, &fakeConn{}
	h1 := f.registry.Register(first)
	h2 := f.registry.Register(second)

	f.dispatcher.HandleMessage(h1, []byte(`{"type":"subscribe","userId":42}`))
	f.dispatcher.HandleMessage(h2, []byte(`{"type":"subscribe","userId":42}`))

	f.dispatcher.Notify(context.Background(), "42", models.Task{ID: 1}, models.TaskActionUpdated)

	assert.Len(t, first.frames(), 1, "only the subscribed ack")
	assert.Len(t, second.frames(), 2)
	assert.False(t, first.closed, "displaced connection stays open")
}

func TestDispatcher_ClosedConnectionCleansSubscription(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)
	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":42}`))

	f.registry.Unregister(h)

	_, ok := f.subs.Lookup("42")
	assert.False(t, ok)
}

func TestDispatcher_SendFailureIsSwallowed(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)
	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":42}`))

	// connection died but the registry has not cleaned it up yet
	conn.Close()
	assert.NotPanics(t, func() {
		f.dispatcher.Notify(context.Background(), "42", models.Task{ID: 1}, models.TaskActionCreated)
	})

	conn2 := &fakeConn{sendErr: errors.New("broken pipe")}
	h2 := f.registry.Register(conn2)
	f.subs.Subscribe("43", h2)
	assert.NotPanics(t, func() {
		f.dispatcher.Notify(context.Background(), "43", models.Task{ID: 1}, models.TaskActionCreated)
	})

	assert.Equal(t, float64(2), f.notifications(metrics.ResultFailed))

	// stale entries stay until the close path runs
	_, ok := f.subs.Lookup("42")
	assert.True(t, ok)
}

func TestDispatcher_AuthenticatedConnectionCannotSubscribeAsOthers(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{user: "7"}
	h := f.registry.Register(conn)

	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":8}`))
	assert.Empty(t, conn.frames())
	assert.Equal(t, 0, f.subs.Count())

	f.dispatcher.HandleMessage(h, []byte(`{"type":"subscribe","userId":7}`))
	require.Len(t, conn.frames(), 1)
	assert.Equal(t, 1, f.subs.Count())
}

func TestDispatcher_SendToUser(t *testing.T) {
	f := newDispatcherFixture()
	conn := &fakeConn{}
	h := f.registry.Register(conn)
	f.subs.Subscribe("5", h)

	assert.True(t, f.dispatcher.SendToUser("5", map[string]string{"type": "announcement"}))
	assert.False(t, f.dispatcher.SendToUser("6", map[string]string{"type": "announcement"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(conn.frames()[0], &got))
	assert.Equal(t, "announcement", got["type"])
}
