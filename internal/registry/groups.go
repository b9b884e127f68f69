package registry

import (
	"fmt"
	"sync"
)

// Group is a snapshot of a named set of member connection ids.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// HasMember reports whether connID is in the snapshot's member list.
func (g Group) HasMember(connID string) bool {
	for _, m := range g.Members {
		if m == connID {
			return true
		}
	}
	return false
}

type groupEntry struct {
	id      string
	name    string
	members []string
	index   map[string]struct{}
}

func (e *groupEntry) snapshot() Group {
	members := make([]string, len(e.members))
	copy(members, e.members)
	return Group{ID: e.id, Name: e.name, Members: members}
}

// Groups maps group ids to their membership. Membership only grows through
// Join and only shrinks through PruneConnection; groups are never deleted.
type Groups struct {
	mu     sync.RWMutex
	groups map[string]*groupEntry
	order  []string
}

// NewGroups creates an empty group registry.
func NewGroups() *Groups {
	return &Groups{
		groups: make(map[string]*groupEntry),
	}
}

// Join adds connID to the group, creating the group first if the id has not
// been seen. The first caller's name wins; an empty name defaults to the id.
// Joining a group twice leaves a single membership.
func (g *Groups) Join(groupID, name, connID string) (Group, error) {
	if groupID == "" {
		return Group{}, fmt.Errorf("join by %s: %w", connID, ErrEmptyGroupID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.groups[groupID]
	if !exists {
		if name == "" {
			name = groupID
		}
		entry = &groupEntry{
			id:    groupID,
			name:  name,
			index: make(map[string]struct{}),
		}
		g.groups[groupID] = entry
		g.order = append(g.order, groupID)
	}

	if _, member := entry.index[connID]; !member {
		entry.index[connID] = struct{}{}
		entry.members = append(entry.members, connID)
	}

	return entry.snapshot(), nil
}

// Get returns a snapshot of a group.
func (g *Groups) Get(groupID string) (Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, exists := g.groups[groupID]
	if !exists {
		return Group{}, false
	}
	return entry.snapshot(), true
}

// PruneConnection removes connID from every group it belongs to and returns
// the groups that changed, in creation order.
func (g *Groups) PruneConnection(connID string) []Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	var affected []Group
	for _, id := range g.order {
		entry := g.groups[id]
		if _, member := entry.index[connID]; !member {
			continue
		}

		delete(entry.index, connID)
		for i, m := range entry.members {
			if m == connID {
				entry.members = append(entry.members[:i], entry.members[i+1:]...)
				break
			}
		}
		affected = append(affected, entry.snapshot())
	}
	return affected
}

// Len reports the number of resident groups, empty ones included.
func (g *Groups) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups)
}
