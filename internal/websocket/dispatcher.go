package websocket

import (
	"context"
	"encoding/json"

	"task-notify/internal/models"
	"task-notify/pkg/logger"
	"task-notify/pkg/metrics"
)

// Dispatcher routes task notifications to subscribed connections and answers
// the subscribe/ping control messages.
type Dispatcher struct {
	registry *Registry
	subs     *SubscriptionMap
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(registry *Registry, subs *SubscriptionMap, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		subs:     subs,
		logger:   log,
		metrics:  m,
	}
}

// Notify pushes a task_update to the user's connection. Without a subscription
// the event is dropped. Send failures are logged and never returned; the
// subscription is only cleaned up when the connection itself closes.
func (d *Dispatcher) Notify(ctx context.Context, userID string, task models.Task, action models.TaskAction) {
	payload, err := json.Marshal(NewTaskUpdateMessage(task, action))
	if err != nil {
		d.logger.Error("Failed to encode task update", "userID", userID, "taskID", task.ID, "error", err)
		d.metrics.NotificationResult(metrics.ResultFailed)
		return
	}

	result := d.deliver(userID, payload)
	d.metrics.NotificationResult(result)
	if result == metrics.ResultDelivered {
		d.logger.Debug("Task update delivered", "userID", userID, "taskID", task.ID, "action", action)
	}
}

// SendToUser pushes an arbitrary message to the user's connection and reports
// whether it was handed to the transport.
func (d *Dispatcher) SendToUser(userID string, message interface{}) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		d.logger.Error("Failed to encode message", "userID", userID, "error", err)
		return false
	}
	return d.deliver(userID, payload) == metrics.ResultDelivered
}

func (d *Dispatcher) deliver(userID string, payload []byte) string {
	h, ok := d.subs.Lookup(userID)
	if !ok {
		d.logger.Debug("No subscriber, dropping notification", "userID", userID)
		return metrics.ResultDropped
	}
	conn, ok := d.registry.Get(h)
	if !ok {
		// closed between lookup and send
		return metrics.ResultDropped
	}
	if err := conn.Send(payload); err != nil {
		d.logger.Warn("Failed to send notification", "userID", userID, "clientID", h, "error", err)
		return metrics.ResultFailed
	}
	return metrics.ResultDelivered
}

// HandleMessage processes one inbound frame from h. Malformed frames and
// unknown types are ignored and the connection stays open.
func (d *Dispatcher) HandleMessage(h Handle, raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.metrics.MessageReceived("invalid")
		d.logger.Debug("Ignoring malformed message", "clientID", h, "error", err)
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		d.metrics.MessageReceived(msg.Type.String())
		d.handleSubscribe(h, msg.UserID)
	case MessageTypePing:
		d.metrics.MessageReceived(msg.Type.String())
		d.reply(h, &PongMessage{Type: MessageTypePong})
	default:
		d.metrics.MessageReceived("unknown")
		d.logger.Debug("Ignoring unknown message type", "clientID", h, "type", msg.Type)
	}
}

func (d *Dispatcher) handleSubscribe(h Handle, rawUserID json.RawMessage) {
	userID, ok := canonicalUserID(rawUserID)
	if !ok {
		d.logger.Debug("Ignoring subscribe without a usable userId", "clientID", h)
		return
	}

	conn, ok := d.registry.Get(h)
	if !ok {
		return
	}
	if bound, ok := conn.AuthenticatedUser(); ok && bound != userID {
		d.logger.Warn("Rejecting subscribe for another user", "clientID", h, "authenticatedUser", bound, "userID", userID)
		return
	}

	if prev, replaced := d.subs.Subscribe(userID, h); replaced {
		d.logger.Info("Subscription moved to newer connection", "userID", userID, "clientID", h, "previousClientID", prev)
	} else {
		d.logger.Info("Client subscribed", "userID", userID, "clientID", h)
	}
	d.metrics.SetSubscriptions(d.subs.Count())

	d.reply(h, &SubscribedMessage{Type: MessageTypeSubscribed, UserID: rawUserID})
}

func (d *Dispatcher) reply(h Handle, message interface{}) {
	conn, ok := d.registry.Get(h)
	if !ok {
		return
	}
	payload, err := json.Marshal(message)
	if err != nil {
		d.logger.Error("Failed to encode reply", "clientID", h, "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		d.logger.Debug("Failed to send reply", "clientID", h, "error", err)
	}
}
