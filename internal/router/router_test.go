package router_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/lanchat/internal/registry"
	"github.com/Tyrowin/lanchat/internal/router"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

// recorder is a Dispatcher that keeps every frame it is handed.
type recorder struct {
	mu     sync.Mutex
	frames map[string][][]byte
	refuse map[string]bool
}

func newRecorder() *recorder {
	return &recorder{
		frames: make(map[string][][]byte),
		refuse: make(map[string]bool),
	}
}

func (r *recorder) Deliver(connID string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse[connID] {
		return false
	}
	r.frames[connID] = append(r.frames[connID], frame)
	return true
}

func (r *recorder) count(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames[connID])
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (r *recorder) last(t *testing.T, connID string) wireFrame {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.frames[connID]
	require.NotEmpty(t, frames, "no frames for %s", connID)
	var f wireFrame
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &f))
	return f
}

type fixture struct {
	conns  *registry.Connections
	groups *registry.Groups
	out    *recorder
	router *router.Router
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	f := &fixture{
		conns:  registry.NewConnections(),
		groups: registry.NewGroups(),
		out:    newRecorder(),
	}
	f.router = router.New(f.conns, f.groups, f.out, nil, router.WithClock(func() time.Time { return fixedNow }))
	for _, id := range ids {
		require.NoError(t, f.conns.OnConnect(id, registry.DefaultIdentity(id, "host-"+id)))
	}
	return f
}

func TestRoutePublicReachesEveryoneIncludingSender(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	_, err := f.conns.Register("A", "Alice", "laptop")
	require.NoError(t, err)

	res, err := f.router.Route(router.Request{
		Scope:    router.ScopePublic,
		SenderID: "A",
		Payload:  router.Payload{Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, res.Delivered)
	assert.False(t, res.Degraded())

	var first router.PublicMessage
	for _, id := range []string{"A", "B", "C"} {
		frame := f.out.last(t, id)
		assert.Equal(t, router.EventPublicMessage, frame.Type)

		var msg router.PublicMessage
		require.NoError(t, json.Unmarshal(frame.Payload, &msg))
		if id == "A" {
			first = msg
		}
		assert.Equal(t, first, msg, "payload differs for %s", id)
	}
	assert.Equal(t, registry.Identity{ID: "A", Name: "Alice", Device: "laptop"}, first.From)
	assert.Equal(t, "hi", first.Text)
	assert.Equal(t, fixedNow.UnixMilli(), first.Timestamp)
}

func TestRouteRejectsUnknownSender(t *testing.T) {
	f := newFixture(t, "B")

	_, err := f.router.Route(router.Request{
		Scope:    router.ScopePublic,
		SenderID: "gone",
		Payload:  router.Payload{Text: "hi"},
	})
	require.ErrorIs(t, err, registry.ErrUnknownConnection)
	assert.Zero(t, f.out.count("B"))
}

func TestRouteDirect(t *testing.T) {
	t.Run("sender and peer receive identical payload", func(t *testing.T) {
		f := newFixture(t, "A", "B", "C")

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeDirect,
			SenderID: "A",
			Target:   "B",
			Payload:  router.Payload{Text: "psst"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, res.Delivered)
		assert.Zero(t, f.out.count("C"))

		a, b := f.out.last(t, "A"), f.out.last(t, "B")
		assert.Equal(t, router.EventDirectMessage, a.Type)
		assert.JSONEq(t, string(a.Payload), string(b.Payload))

		var msg router.DirectMessage
		require.NoError(t, json.Unmarshal(b.Payload, &msg))
		assert.Equal(t, "B", msg.To)
		assert.Equal(t, "A", msg.From.ID)
	})

	t.Run("offline peer still echoes to sender", func(t *testing.T) {
		f := newFixture(t, "A", "B")
		f.conns.Remove("B")

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeDirect,
			SenderID: "A",
			Target:   "B",
			Payload:  router.Payload{Text: "hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, res.Delivered)
		assert.Equal(t, []string{"B"}, res.Skipped)
		assert.True(t, res.Degraded())
		assert.Equal(t, 1, f.out.count("A"))
		assert.Zero(t, f.out.count("B"))
	})

	t.Run("message to self is delivered once", func(t *testing.T) {
		f := newFixture(t, "A")

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeDirect,
			SenderID: "A",
			Target:   "A",
			Payload:  router.Payload{Text: "note to self"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, res.Delivered)
		assert.Equal(t, 1, f.out.count("A"))
	})

	t.Run("missing target", func(t *testing.T) {
		f := newFixture(t, "A")

		_, err := f.router.Route(router.Request{
			Scope:    router.ScopeDirect,
			SenderID: "A",
			Payload:  router.Payload{Text: "hi"},
		})
		require.ErrorIs(t, err, router.ErrMissingTarget)
		assert.Zero(t, f.out.count("A"))
	})
}

func TestRouteGroup(t *testing.T) {
	t.Run("only members receive", func(t *testing.T) {
		f := newFixture(t, "A", "C", "D")
		_, err := f.groups.Join("g1", "G1", "A")
		require.NoError(t, err)
		_, err = f.groups.Join("g1", "G1", "C")
		require.NoError(t, err)

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeGroup,
			SenderID: "A",
			Target:   "g1",
			Payload:  router.Payload{Text: "hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "C"}, res.Delivered)
		assert.Zero(t, f.out.count("D"))

		var msg router.GroupMessage
		require.NoError(t, json.Unmarshal(f.out.last(t, "C").Payload, &msg))
		assert.Equal(t, "g1", msg.GroupID)
		assert.Equal(t, "hi", msg.Text)
	})

	t.Run("non-member sender may post", func(t *testing.T) {
		f := newFixture(t, "A", "D")
		_, err := f.groups.Join("g1", "G1", "A")
		require.NoError(t, err)

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeGroup,
			SenderID: "D",
			Target:   "g1",
			Payload:  router.Payload{Text: "knock knock"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, res.Delivered)
		assert.Zero(t, f.out.count("D"))
	})

	t.Run("unknown group sends to nobody", func(t *testing.T) {
		f := newFixture(t, "A")

		res, err := f.router.Route(router.Request{
			Scope:    router.ScopeGroup,
			SenderID: "A",
			Target:   "nope",
			Payload:  router.Payload{Text: "hello?"},
		})
		require.NoError(t, err)
		assert.Empty(t, res.Delivered)
		assert.True(t, res.Degraded())
		assert.Zero(t, f.out.count("A"))
	})
}

func TestRouteFile(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	file := router.Payload{FileURL: "/uploads/1-report.pdf", FileName: "report.pdf", IsFile: true}

	res, err := f.router.Route(router.Request{Scope: router.ScopePublic, SenderID: "A", Payload: file})
	require.NoError(t, err)
	assert.Len(t, res.Delivered, 3)

	frame := f.out.last(t, "C")
	assert.Equal(t, router.EventFileMessage, frame.Type)
	var pub router.FileMessage
	require.NoError(t, json.Unmarshal(frame.Payload, &pub))
	assert.False(t, pub.Private)
	assert.Empty(t, pub.To)
	assert.Equal(t, "/uploads/1-report.pdf", pub.FileURL)
	assert.Equal(t, "report.pdf", pub.FileName)

	res, err = f.router.Route(router.Request{Scope: router.ScopeDirect, SenderID: "A", Target: "B", Payload: file})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.Delivered)

	var priv router.FileMessage
	require.NoError(t, json.Unmarshal(f.out.last(t, "B").Payload, &priv))
	assert.True(t, priv.Private)
	assert.Equal(t, "B", priv.To)
	assert.Equal(t, 1, f.out.count("C"), "C only saw the public file")
}

func TestRouteUnknownScope(t *testing.T) {
	f := newFixture(t, "A")

	_, err := f.router.Route(router.Request{Scope: "broadcast-all", SenderID: "A"})
	require.ErrorIs(t, err, router.ErrUnknownScope)
}

func TestRouteSkipsRefusingConnection(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.out.refuse["B"] = true

	res, err := f.router.Route(router.Request{Scope: router.ScopePublic, SenderID: "A", Payload: router.Payload{Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Delivered)
	assert.Equal(t, []string{"B"}, res.Skipped)
}

func TestBroadcastRoster(t *testing.T) {
	f := newFixture(t, "A", "B")
	_, err := f.conns.Register("A", "Alice", "")
	require.NoError(t, err)

	res := f.router.BroadcastRoster()
	assert.Equal(t, []string{"A", "B"}, res.Delivered)

	frame := f.out.last(t, "B")
	assert.Equal(t, router.EventRosterUpdate, frame.Type)
	var roster []registry.Identity
	require.NoError(t, json.Unmarshal(frame.Payload, &roster))
	require.Len(t, roster, 2)
	assert.Equal(t, "Alice", roster[0].Name)
	assert.Equal(t, "Guest B", roster[1].Name)
}

func TestBroadcastGroupGoesToMembersOnly(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	_, err := f.groups.Join("g1", "G1", "A")
	require.NoError(t, err)
	g, err := f.groups.Join("g1", "G1", "B")
	require.NoError(t, err)

	res := f.router.BroadcastGroup(g)
	assert.Equal(t, []string{"A", "B"}, res.Delivered)
	assert.Zero(t, f.out.count("C"))

	var got registry.Group
	require.NoError(t, json.Unmarshal(f.out.last(t, "A").Payload, &got))
	assert.Equal(t, g, got)
}
