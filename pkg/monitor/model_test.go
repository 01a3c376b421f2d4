package monitor

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MMR-MINGriyue/focusflow/internal/syncengine"
)

func newTestModel() Model {
	return NewModel(nil, nil, nil, time.Second, "test")
}

func TestUpdate_WindowSize(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	got := updated.(Model)
	if got.Width != 100 || got.Height != 40 {
		t.Errorf("size not stored: %dx%d", got.Width, got.Height)
	}
}

func TestUpdate_RefreshData(t *testing.T) {
	m := newTestModel()
	now := time.Now()
	updated, _ := m.Update(RefreshDataMsg{
		Online:    true,
		State:     syncengine.Idle,
		Pending:   3,
		Conflicts: []syncengine.Conflict{{ID: "c1"}},
		Schema:    "2.0",
		Backups:   2,
		Timestamp: now,
	})
	got := updated.(Model)
	if !got.Online || got.Pending != 3 || len(got.Conflicts) != 1 {
		t.Errorf("refresh not applied: %+v", got)
	}
	if !got.LastRefresh.Equal(now) {
		t.Error("last refresh not stored")
	}
}

func TestUpdate_StatusMsgAppliesImmediately(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(StatusMsg{State: syncengine.Syncing, Pending: 4})
	got := updated.(Model)
	if got.State != syncengine.Syncing || got.Pending != 4 {
		t.Errorf("status not applied: state=%s pending=%d", got.State, got.Pending)
	}
}

func TestHandleKey_Quit(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Errorf("got %T, want tea.QuitMsg", msg)
	}
}

func TestHandleKey_ToggleHelp(t *testing.T) {
	m := newTestModel()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if !updated.(Model).ShowHelp {
		t.Error("help should toggle on")
	}
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if updated.(Model).ShowHelp {
		t.Error("help should toggle off")
	}
}

func TestView_TooSmall(t *testing.T) {
	m := newTestModel()
	m.Width = 20
	m.Height = 5
	if !strings.Contains(m.View(), "too small") {
		t.Errorf("expected size warning, got %q", m.View())
	}
}

func TestView_RendersPanels(t *testing.T) {
	m := newTestModel()
	m.Width = 100
	m.Height = 40
	m.State = syncengine.Idle
	m.Pending = 2
	m.Schema = "2.0"
	m.SnapshotAt = time.Now().Add(-10 * time.Minute)
	m.Conflicts = []syncengine.Conflict{{
		ID:         "c1",
		EntityType: "task",
		EntityID:   "t1",
		Strategy:   syncengine.LastWriteWins,
	}}

	view := m.View()
	for _, want := range []string{"Engine", "Pending", "2 operation(s)", "Conflicts (1)", "task t1", "schema 2.0"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
