package wsclient

import "time"

const (
	DefaultMaxReconnectAttempts = 5

	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// State is the lifecycle position of a client session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAwaitingRetry
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAwaitingRetry:
		return "awaiting_retry"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is the pure part of a client connection. Generation identifies the
// transport attempt currently owned by the session; events carrying any other
// generation are stale.
type Session struct {
	State       State
	Attempts    int
	Generation  uint64
	MaxAttempts int
}

// NewSession returns a Disconnected session. maxAttempts <= 0 selects the default.
func NewSession(maxAttempts int) Session {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	return Session{State: StateDisconnected, MaxAttempts: maxAttempts}
}

type EventKind int

const (
	// EventConnect is an external connect request.
	EventConnect EventKind = iota
	// EventOpened reports a completed handshake.
	EventOpened
	// EventClosed reports a dial failure or a transport close/error.
	EventClosed
	// EventRetryFired reports that the reconnect timer elapsed.
	EventRetryFired
	// EventDisconnect is an external teardown request.
	EventDisconnect
)

type Event struct {
	Kind       EventKind
	Generation uint64
	// HasCredentials is read for EventConnect only.
	HasCredentials bool
}

type EffectKind int

const (
	EffectDial EffectKind = iota
	EffectSendSubscribe
	EffectScheduleRetry
	EffectCancelRetry
	EffectCloseTransport
)

func (k EffectKind) String() string {
	switch k {
	case EffectDial:
		return "dial"
	case EffectSendSubscribe:
		return "send_subscribe"
	case EffectScheduleRetry:
		return "schedule_retry"
	case EffectCancelRetry:
		return "cancel_retry"
	case EffectCloseTransport:
		return "close_transport"
	default:
		return "unknown"
	}
}

// Effect is an instruction for the I/O shell. Delay is set for
// EffectScheduleRetry only.
type Effect struct {
	Kind       EffectKind
	Generation uint64
	Delay      time.Duration
}

// Backoff returns the reconnect delay for the given attempt number (1-based):
// min(1s * 2^attempt, 30s).
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

// Transition computes the next session and the effects to run. It never
// performs I/O.
func Transition(s Session, ev Event) (Session, []Effect) {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if s.State == StateStopped {
		return s, nil
	}

	switch ev.Kind {
	case EventConnect:
		if !ev.HasCredentials {
			return s, nil
		}
		var effects []Effect
		switch s.State {
		case StateConnecting, StateOpen:
			return s, nil
		case StateAwaitingRetry:
			effects = append(effects, Effect{Kind: EffectCancelRetry, Generation: s.Generation})
		}
		s.Attempts = 0
		s.Generation++
		s.State = StateConnecting
		return s, append(effects, Effect{Kind: EffectDial, Generation: s.Generation})

	case EventOpened:
		if ev.Generation != s.Generation || s.State != StateConnecting {
			return s, nil
		}
		s.State = StateOpen
		s.Attempts = 0
		return s, []Effect{{Kind: EffectSendSubscribe, Generation: s.Generation}}

	case EventClosed:
		if ev.Generation != s.Generation {
			return s, nil
		}
		if s.State != StateConnecting && s.State != StateOpen {
			return s, nil
		}
		if s.Attempts >= s.MaxAttempts {
			s.State = StateDisconnected
			return s, nil
		}
		s.Attempts++
		s.State = StateAwaitingRetry
		return s, []Effect{{Kind: EffectScheduleRetry, Generation: s.Generation, Delay: Backoff(s.Attempts)}}

	case EventRetryFired:
		if ev.Generation != s.Generation || s.State != StateAwaitingRetry {
			return s, nil
		}
		s.Generation++
		s.State = StateConnecting
		return s, []Effect{{Kind: EffectDial, Generation: s.Generation}}

	case EventDisconnect:
		effects := []Effect{
			{Kind: EffectCancelRetry, Generation: s.Generation},
			{Kind: EffectCloseTransport, Generation: s.Generation},
		}
		s.Generation++
		s.State = StateStopped
		return s, effects
	}

	return s, nil
}
