package wesviz

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CursorPosition is the pointer state mirrored between synced charts. It uses
// the same fields as uPlot's cursor so the web UI can apply it directly.
type CursorPosition struct {
	// Index of the sample under the pointer, or -1 if the pointer left the
	// chart.
	Idx int `json:"idx"`

	// Pointer position relative to the plotting area, in CSS pixels.
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// SyncMember is implemented by chart handles whose renderer can mirror cursor
// movement. Handles that do not implement it never join a group.
type SyncMember interface {
	// Called once when the handle is placed in a group for its generation.
	JoinSyncGroup(g *SyncGroup)

	// Mirror a pointer movement that happened on another member.
	ShowCursor(pos CursorPosition)
}

// SyncGroup is the set of charts of one generation sharing a sync key.
type SyncGroup struct {
	key string

	// Members join while the generation is being built, which can overlap with
	// a member already publishing from a transport goroutine.
	mutex   sync.RWMutex
	members []SyncMember
}

func (g *SyncGroup) Key() string {
	return g.key
}

func (g *SyncGroup) Members() []SyncMember {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	members := make([]SyncMember, len(g.members))
	copy(members, g.members)
	return members
}

// Publish mirrors pos onto every member except from. It returns once all
// members have been told, so mirroring happens within the same frame as the
// original movement.
func (g *SyncGroup) Publish(from SyncMember, pos CursorPosition) {
	for _, member := range g.Members() {
		if member == from {
			continue
		}
		member.ShowCursor(pos)
	}
}

func (g *SyncGroup) add(member SyncMember) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.members = append(g.members, member)
}

// SyncGroups holds the sync groups of one render generation. Groups are never
// carried over to the next generation because handles are not reused.
type SyncGroups struct {
	groups map[string]*SyncGroup
	logger logrus.FieldLogger
}

func NewSyncGroups() *SyncGroups {
	return &SyncGroups{
		groups: make(map[string]*SyncGroup),
		logger: logrus.WithField("tag", "SyncGroups"),
	}
}

// Join places handle in the group for key. An empty key, or a handle that
// cannot mirror cursors, joins nothing and Join returns false.
func (s *SyncGroups) Join(key string, handle ChartHandle) bool {
	if key == "" {
		return false
	}

	member, ok := handle.(SyncMember)
	if !ok {
		s.logger.WithField("key", key).Debug("chart handle cannot sync cursors, not joining group")
		return false
	}

	group, exists := s.groups[key]
	if !exists {
		group = &SyncGroup{key: key}
		s.groups[key] = group
	}

	group.add(member)
	member.JoinSyncGroup(group)
	return true
}

// Keys returns the keys of all non-empty groups, sorted.
func (s *SyncGroups) Keys() []string {
	return SortedKeys(s.groups)
}
