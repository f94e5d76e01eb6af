package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

func TestSnapshotMsgUpdatesViews(t *testing.T) {
	m := NewModel(0)

	views := []types.DownloadView{
		{ID: "a", Filename: "one.iso", Status: types.StatusDownloading,
			Progress: types.Progress{Downloaded: 50, Total: 100, Percentage: 50}},
	}
	next, cmd := m.Update(snapshotMsg(views))
	m = next.(Model)

	if len(m.views) != 1 || m.views[0].Filename != "one.iso" {
		t.Fatalf("views not stored: %+v", m.views)
	}
	if cmd == nil {
		t.Fatal("snapshot should schedule the next tick")
	}
}

func TestFetchErrShownInView(t *testing.T) {
	m := NewModel(0)

	next, _ := m.Update(fetchErrMsg{err: errFake("connection refused")})
	m = next.(Model)

	if !strings.Contains(m.View(), "connection refused") {
		t.Error("fetch error not rendered")
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(0)

	for _, key := range []string{"q", "esc", "ctrl+c"} {
		_, cmd := m.Update(keyMsg(key))
		if cmd == nil {
			t.Fatalf("%s should quit", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s produced %T, want tea.QuitMsg", key, cmd())
		}
	}
}

func TestViewRendersStatuses(t *testing.T) {
	m := NewModel(0)
	next, _ := m.Update(snapshotMsg([]types.DownloadView{
		{ID: "a", Filename: "done.zip", Status: types.StatusCompleted,
			Progress: types.Progress{Downloaded: 100, Total: 100, Percentage: 100}},
		{ID: "b", Filename: "broken.zip", Status: types.StatusFailed, Error: "server returned HTTP 500"},
	}))
	m = next.(Model)

	out := m.View()
	for _, want := range []string{"done.zip", "completed", "broken.zip", "failed", "server returned HTTP 500"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}
