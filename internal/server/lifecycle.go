package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Tyrowin/lanchat/internal/metrics"
	"github.com/Tyrowin/lanchat/internal/registry"
	"github.com/Tyrowin/lanchat/internal/router"
)

// ConnState is the lifecycle state of a single connection.
type ConnState int

// Connection states. Registered is only reachable from Connected, and
// Disconnected is terminal.
const (
	StateConnecting ConnState = iota
	StateConnected
	StateRegistered
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistered:
		return "registered"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Lifecycle drives each connection from accept to cleanup, mutating the
// registries and asking the router to publish every change. Errors never
// leave the lifecycle; they are logged and the offending event is dropped.
type Lifecycle struct {
	conns  *registry.Connections
	groups *registry.Groups
	router *router.Router
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]ConnState
}

// NewLifecycle creates a Lifecycle over the given registries and router.
func NewLifecycle(conns *registry.Connections, groups *registry.Groups, r *router.Router, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		conns:  conns,
		groups: groups,
		router: r,
		logger: logger,
		states: make(map[string]ConnState),
	}
}

// State reports the lifecycle state of a connection. Ids that were never
// accepted, or have been cleaned up, report StateDisconnected.
func (l *Lifecycle) State(id string) ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[id]
	if !ok {
		return StateDisconnected
	}
	return state
}

func (l *Lifecycle) setState(id string, state ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state == StateDisconnected {
		delete(l.states, id)
		return
	}
	l.states[id] = state
}

// Accept assigns the default identity to a new connection and publishes the
// roster. A duplicate id is a transport contract violation and is returned
// so the caller can refuse the connection.
func (l *Lifecycle) Accept(id, addr string) error {
	if err := l.conns.OnConnect(id, registry.DefaultIdentity(id, addr)); err != nil {
		l.logger.Error("Refusing connection", "connID", id, "addr", addr, "error", err)
		return err
	}

	l.setState(id, StateConnected)
	metrics.Connections.Set(float64(l.conns.Len()))
	l.logger.Info("Connection accepted", "connID", id, "addr", addr)

	l.router.BroadcastRoster()
	return nil
}

// Handle processes one inbound event from a connection.
func (l *Lifecycle) Handle(id string, frame InboundFrame) {
	err := l.handle(id, frame)
	if err == nil {
		return
	}

	if errors.Is(err, registry.ErrUnknownConnection) {
		l.logger.Debug("Dropped event from unknown connection", "connID", id, "type", frame.Type, "error", err)
		return
	}
	l.logger.Warn("Dropped event", "connID", id, "type", frame.Type, "error", err)
}

func (l *Lifecycle) handle(id string, frame InboundFrame) error {
	switch frame.Type {
	case EventRegister:
		return l.handleRegister(id, frame)

	case EventPublicMessage:
		text, err := decodeText(frame)
		if err != nil {
			return err
		}
		return l.route(router.Request{
			Scope:    router.ScopePublic,
			SenderID: id,
			Payload:  router.Payload{Text: text},
		})

	case EventDirectMessage:
		var p DirectPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		return l.route(router.Request{
			Scope:    router.ScopeDirect,
			SenderID: id,
			Target:   p.To,
			Payload:  router.Payload{Text: p.Text},
		})

	case EventGroupMessage:
		var p GroupMessagePayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		return l.route(router.Request{
			Scope:    router.ScopeGroup,
			SenderID: id,
			Target:   p.GroupID,
			Payload:  router.Payload{Text: p.Text},
		})

	case EventFileMessage:
		var p FilePayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		req := router.Request{
			Scope:    router.ScopePublic,
			SenderID: id,
			Payload:  router.Payload{FileURL: p.FileURL, FileName: p.FileName, IsFile: true},
		}
		if p.To != "" {
			req.Scope = router.ScopeDirect
			req.Target = p.To
		}
		return l.route(req)

	case EventGroupJoin:
		return l.handleGroupJoin(id, frame)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}
}

func (l *Lifecycle) handleRegister(id string, frame InboundFrame) error {
	var p RegisterPayload
	if len(frame.Payload) > 0 && string(frame.Payload) != "null" {
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
	}

	identity, err := l.conns.Register(id, p.Name, p.Device)
	if err != nil {
		return err
	}

	l.setState(id, StateRegistered)
	l.logger.Info("Connection registered", "connID", id, "name", identity.Name, "device", identity.Device)

	l.router.BroadcastRoster()
	return nil
}

func (l *Lifecycle) handleGroupJoin(id string, frame InboundFrame) error {
	var p GroupJoinPayload
	if err := decodePayload(frame, &p); err != nil {
		return err
	}

	if _, ok := l.conns.Get(id); !ok {
		return fmt.Errorf("join %s: %w", p.GroupID, registry.ErrUnknownConnection)
	}

	group, err := l.groups.Join(p.GroupID, p.Name, id)
	if err != nil {
		return err
	}

	// A disconnect may have pruned between the check above and the join.
	if _, ok := l.conns.Get(id); !ok {
		l.groups.PruneConnection(id)
		return fmt.Errorf("join %s: %w", p.GroupID, registry.ErrUnknownConnection)
	}

	metrics.Groups.Set(float64(l.groups.Len()))
	l.logger.Info("Joined group", "connID", id, "groupID", group.ID, "members", len(group.Members))

	l.router.BroadcastGroup(group)
	return nil
}

func (l *Lifecycle) route(req router.Request) error {
	res, err := l.router.Route(req)
	if err != nil {
		return err
	}
	if res.Degraded() {
		l.logger.Debug("Partial delivery",
			"scope", req.Scope,
			"senderID", req.SenderID,
			"target", req.Target,
			"skipped", res.Skipped)
	}
	return nil
}

// Disconnect removes the connection, prunes it from every group, and
// publishes the new roster followed by each affected group. Calling it twice
// for the same id is harmless.
func (l *Lifecycle) Disconnect(id string) {
	_, existed := l.conns.Remove(id)
	affected := l.groups.PruneConnection(id)
	l.setState(id, StateDisconnected)

	if !existed && len(affected) == 0 {
		return
	}

	metrics.Connections.Set(float64(l.conns.Len()))
	l.logger.Info("Connection closed", "connID", id, "groupsAffected", len(affected))

	l.router.BroadcastRoster()
	for _, group := range affected {
		l.router.BroadcastGroup(group)
	}
}

// decodeText accepts either {"text": "..."} or a bare JSON string.
func decodeText(frame InboundFrame) (string, error) {
	var bare string
	if err := decodePayload(frame, &bare); err == nil {
		return bare, nil
	}

	var p TextPayload
	if err := decodePayload(frame, &p); err != nil {
		return "", err
	}
	return p.Text, nil
}
