package engine

import (
	"sort"
	"time"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

// Snapshot returns a consistent view of every registered download, oldest
// first with id as tiebreak. Each element is copied out under its download's
// lock, so a view never mixes fields from two different instants.
func (m *Manager) Snapshot() []types.DownloadView {
	type entry struct {
		created time.Time
		view    types.DownloadView
	}
	var entries []entry
	m.do(func() {
		for _, d := range m.registry {
			entries = append(entries, entry{created: d.createdAt, view: d.view()})
		}
	})
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].created.Equal(entries[j].created) {
			return entries[i].created.Before(entries[j].created)
		}
		return entries[i].view.ID < entries[j].view.ID
	})

	out := make([]types.DownloadView, len(entries))
	for i, e := range entries {
		out[i] = e.view
	}
	return out
}

// StatusMessage wraps the snapshot in the push payload shape.
func (m *Manager) StatusMessage() types.StatusMsg {
	return types.StatusMsg{Type: "status", Downloads: m.Snapshot()}
}
