// Package router resolves the audience of every inbound chat event and hands
// one encoded frame to each member of that audience.
//
// The router holds no state of its own. Every call reads the connection and
// group registries afresh, and the sender's identity is always looked up in
// the registry rather than taken from the caller.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/lanchat/internal/metrics"
	"github.com/Tyrowin/lanchat/internal/registry"
)

// Scope is the audience class of a message.
type Scope string

// Supported scopes.
const (
	ScopePublic Scope = "public"
	ScopeDirect Scope = "direct"
	ScopeGroup  Scope = "group"
)

// Routing errors.
var (
	ErrMissingTarget = errors.New("target is required for this scope")
	ErrUnknownScope  = errors.New("unknown scope")
)

// Payload is either a text body or a reference to an uploaded file.
type Payload struct {
	Text     string
	FileURL  string
	FileName string
	IsFile   bool
}

// Request describes a single routing operation. Target is a peer connection
// id for ScopeDirect and a group id for ScopeGroup; it is ignored for
// ScopePublic.
type Request struct {
	Scope    Scope
	SenderID string
	Target   string
	Payload  Payload
}

// Dispatcher delivers an encoded frame to one connection. It returns false
// when the connection is gone or cannot accept the frame.
type Dispatcher interface {
	Deliver(connID string, frame []byte) bool
}

// DeliveryResult reports who a frame was meant for and who actually got it.
type DeliveryResult struct {
	Scope     Scope
	Event     string
	Audience  []string
	Delivered []string
	Skipped   []string
}

// Degraded reports whether the route reached nobody or skipped part of its
// audience. A degraded result is an expected outcome, not an error.
func (d DeliveryResult) Degraded() bool {
	return len(d.Audience) == 0 || len(d.Skipped) > 0
}

// Router maps scoped events onto per-connection deliveries.
type Router struct {
	conns  *registry.Connections
	groups *registry.Groups
	out    Dispatcher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the clock used to stamp outbound messages.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// New creates a Router over the given registries.
func New(conns *registry.Connections, groups *registry.Groups, out Dispatcher, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		conns:  conns,
		groups: groups,
		out:    out,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route resolves the audience of req and delivers one copy of the outbound
// event to every member still live at dispatch time.
func (r *Router) Route(req Request) (DeliveryResult, error) {
	result := DeliveryResult{Scope: req.Scope}

	from, ok := r.conns.Get(req.SenderID)
	if !ok {
		return result, fmt.Errorf("route %s from %s: %w", req.Scope, req.SenderID, registry.ErrUnknownConnection)
	}

	audience, err := r.resolveAudience(req)
	if err != nil {
		return result, fmt.Errorf("route %s from %s: %w", req.Scope, req.SenderID, err)
	}

	eventType, payload := r.buildEvent(req, from)
	frame, err := encode(eventType, payload)
	if err != nil {
		return result, fmt.Errorf("encode %s: %w", eventType, err)
	}

	result = r.dispatch(req.Scope, eventType, audience, frame)

	kind := "text"
	if req.Payload.IsFile {
		kind = "file"
	}
	metrics.RoutedMessages.WithLabelValues(string(req.Scope), kind).Inc()
	if len(result.Skipped) > 0 {
		metrics.SkippedRecipients.WithLabelValues(string(req.Scope)).Add(float64(len(result.Skipped)))
	}

	r.logger.Debug("Message routed",
		"scope", req.Scope,
		"kind", kind,
		"senderID", req.SenderID,
		"target", req.Target,
		"delivered", len(result.Delivered),
		"skipped", len(result.Skipped))
	return result, nil
}

func (r *Router) resolveAudience(req Request) ([]string, error) {
	switch req.Scope {
	case ScopePublic:
		roster := r.conns.All()
		audience := make([]string, 0, len(roster))
		for _, id := range roster {
			audience = append(audience, id.ID)
		}
		return audience, nil

	case ScopeDirect:
		if req.Target == "" {
			return nil, ErrMissingTarget
		}
		if req.Target == req.SenderID {
			return []string{req.SenderID}, nil
		}
		return []string{req.SenderID, req.Target}, nil

	case ScopeGroup:
		if req.Target == "" {
			return nil, ErrMissingTarget
		}
		group, ok := r.groups.Get(req.Target)
		if !ok {
			return nil, nil
		}
		return group.Members, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, req.Scope)
	}
}

func (r *Router) buildEvent(req Request, from registry.Identity) (string, any) {
	ts := r.now().UnixMilli()

	if req.Payload.IsFile {
		msg := FileMessage{
			From:      from,
			FileURL:   req.Payload.FileURL,
			FileName:  req.Payload.FileName,
			Timestamp: ts,
		}
		switch req.Scope {
		case ScopeDirect:
			msg.Private = true
			msg.To = req.Target
		case ScopeGroup:
			msg.GroupID = req.Target
		}
		return EventFileMessage, msg
	}

	switch req.Scope {
	case ScopeDirect:
		return EventDirectMessage, DirectMessage{From: from, To: req.Target, Text: req.Payload.Text, Timestamp: ts}
	case ScopeGroup:
		return EventGroupMessage, GroupMessage{From: from, GroupID: req.Target, Text: req.Payload.Text, Timestamp: ts}
	default:
		return EventPublicMessage, PublicMessage{From: from, Text: req.Payload.Text, Timestamp: ts}
	}
}

// dispatch hands frame to every audience member that is still registered.
// Members that vanished since the audience was resolved are skipped.
func (r *Router) dispatch(scope Scope, eventType string, audience []string, frame []byte) DeliveryResult {
	result := DeliveryResult{
		Scope:    scope,
		Event:    eventType,
		Audience: audience,
	}

	for _, connID := range audience {
		if _, live := r.conns.Get(connID); !live {
			result.Skipped = append(result.Skipped, connID)
			continue
		}
		if !r.out.Deliver(connID, frame) {
			result.Skipped = append(result.Skipped, connID)
			continue
		}
		result.Delivered = append(result.Delivered, connID)
	}

	if len(result.Delivered) > 0 {
		metrics.Deliveries.WithLabelValues(eventType).Add(float64(len(result.Delivered)))
	}
	return result
}

// BroadcastRoster sends the full ordered roster to every live connection.
func (r *Router) BroadcastRoster() DeliveryResult {
	roster := r.conns.All()
	audience := make([]string, 0, len(roster))
	for _, id := range roster {
		audience = append(audience, id.ID)
	}

	frame, err := encode(EventRosterUpdate, roster)
	if err != nil {
		r.logger.Error("Failed to encode roster", "error", err)
		return DeliveryResult{Scope: ScopePublic, Event: EventRosterUpdate}
	}
	return r.dispatch(ScopePublic, EventRosterUpdate, audience, frame)
}

// BroadcastGroup sends a group snapshot to the group's current members.
func (r *Router) BroadcastGroup(group registry.Group) DeliveryResult {
	frame, err := encode(EventGroupUpdate, group)
	if err != nil {
		r.logger.Error("Failed to encode group update", "groupID", group.ID, "error", err)
		return DeliveryResult{Scope: ScopeGroup, Event: EventGroupUpdate}
	}
	return r.dispatch(ScopeGroup, EventGroupUpdate, group.Members, frame)
}
