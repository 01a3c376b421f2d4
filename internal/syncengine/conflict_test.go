package syncengine

import (
	"encoding/json"
	"testing"
	"time"
)

func makeConflict(localTS, remoteTS time.Time) Conflict {
	return Conflict{
		ID:              "c1",
		EntityType:      "task",
		EntityID:        "42",
		LocalPayload:    json.RawMessage(`{"title":"local","notes":"keep"}`),
		RemotePayload:   json.RawMessage(`{"title":"remote","completed":true}`),
		LocalTimestamp:  localTS,
		RemoteTimestamp: remoteTS,
	}
}

func TestResolveWinner_Deterministic(t *testing.T) {
	t10 := time.Unix(10, 0).UTC()
	t20 := time.Unix(20, 0).UTC()

	tests := []struct {
		name     string
		strategy Strategy
		localTS  time.Time
		remoteTS time.Time
		want     string
	}{
		{"client wins", ClientWins, t10, t20, `{"title":"local","notes":"keep"}`},
		{"server wins", ServerWins, t20, t10, `{"title":"remote","completed":true}`},
		{"lww newer remote", LastWriteWins, t10, t20, `{"title":"remote","completed":true}`},
		{"lww newer local", LastWriteWins, t20, t10, `{"title":"local","notes":"keep"}`},
		{"lww tie keeps local", LastWriteWins, t10, t10, `{"title":"local","notes":"keep"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := makeConflict(tt.localTS, tt.remoteTS)
			// Determinism: the same inputs must yield the same winner
			// on every invocation.
			for i := 0; i < 3; i++ {
				got, err := resolveWinner(c, tt.strategy, nil)
				if err != nil {
					t.Fatalf("resolve: %v", err)
				}
				if string(got) != tt.want {
					t.Fatalf("winner: got %s, want %s", got, tt.want)
				}
			}
		})
	}
}

func TestResolveWinner_MergeBiasedToNewerSide(t *testing.T) {
	t10 := time.Unix(10, 0).UTC()
	t20 := time.Unix(20, 0).UTC()

	// Remote is newer: remote fields win on overlap, local-only fields
	// survive.
	c := makeConflict(t10, t20)
	got, err := resolveWinner(c, Merge, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var merged map[string]any
	if err := json.Unmarshal(got, &merged); err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if merged["title"] != "remote" {
		t.Fatalf("overlapping field: got %v, want remote", merged["title"])
	}
	if merged["notes"] != "keep" {
		t.Fatalf("local-only field lost: %v", merged)
	}
	if merged["completed"] != true {
		t.Fatalf("remote-only field lost: %v", merged)
	}
}

func TestResolveWinner_MergeTieKeepsLocalFields(t *testing.T) {
	t10 := time.Unix(10, 0).UTC()
	c := makeConflict(t10, t10)

	got, err := resolveWinner(c, Merge, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var merged map[string]any
	json.Unmarshal(got, &merged)
	if merged["title"] != "local" {
		t.Fatalf("tie-break: got %v, want local", merged["title"])
	}
}

func TestResolveWinner_MergeNonObjectFallsBackToNewer(t *testing.T) {
	c := Conflict{
		LocalPayload:    json.RawMessage(`"scalar"`),
		RemotePayload:   json.RawMessage(`{"a":1}`),
		LocalTimestamp:  time.Unix(20, 0),
		RemoteTimestamp: time.Unix(10, 0),
	}
	got, err := resolveWinner(c, Merge, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if string(got) != `"scalar"` {
		t.Fatalf("fallback: got %s, want newer local payload", got)
	}
}

func TestResolveWinner_Manual(t *testing.T) {
	c := makeConflict(time.Unix(1, 0), time.Unix(2, 0))

	if _, err := resolveWinner(c, Manual, nil); err == nil {
		t.Fatal("manual without payload should error")
	}
	got, err := resolveWinner(c, Manual, json.RawMessage(`{"title":"chosen"}`))
	if err != nil {
		t.Fatalf("manual: %v", err)
	}
	if string(got) != `{"title":"chosen"}` {
		t.Fatalf("manual winner: got %s", got)
	}
}

func TestResolveWinner_UnknownStrategy(t *testing.T) {
	c := makeConflict(time.Unix(1, 0), time.Unix(2, 0))
	if _, err := resolveWinner(c, Strategy("bogus"), nil); err == nil {
		t.Fatal("unknown strategy should error")
	}
}
