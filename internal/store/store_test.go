package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/phishdash/internal/results"
)

var _ results.Store = (*BoltStore)(nil)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "nested", "phishdash.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSelectionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sel, err := s.LoadSelection("ws1")
	if err != nil {
		t.Fatal(err)
	}
	if sel != nil {
		t.Fatalf("LoadSelection() on empty store = %v, want nil", sel)
	}

	want := results.NewSelection()
	want.Add(3)
	want.Add(1)
	if err := s.SaveSelection("ws1", want); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSelection("ws1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 || !got.Has(1) || !got.Has(3) {
		t.Errorf("loaded selection = %v", got.IDs())
	}

	want.Clear()
	if err := s.SaveSelection("ws1", want); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LoadSelection("ws1")
	if got == nil || got.Len() != 0 {
		t.Errorf("cleared selection = %v, want empty", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &results.Snapshot{
		Campaigns: []results.Campaign{{ID: 1, Name: "Payroll", Server: &results.ServerRef{Alias: "mx1"}}},
		Results: []results.Result{{
			ID: 10, CampaignID: 1, Status: results.StatusSubmitted,
			Person: results.Person{Email: "alice@example.com"},
			Events: []results.Event{{ResultID: 10, Action: results.ActionSubmitted, FormData: []byte(`{"u":"a"}`)}},
		}},
		FetchedAt: at,
	}
	if err := s.SaveSnapshot("ws1", snap); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadSnapshot("ws1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("LoadSnapshot() = nil")
	}
	if !got.FetchedAt.Equal(at) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, at)
	}
	if len(got.Results) != 1 || string(got.Results[0].Events[0].FormData) != `{"u":"a"}` {
		t.Errorf("results = %+v", got.Results)
	}
	if got.Campaigns[0].Server.Alias != "mx1" {
		t.Errorf("campaign = %+v", got.Campaigns[0])
	}

	if missing, err := s.LoadSnapshot("other"); err != nil || missing != nil {
		t.Errorf("LoadSnapshot(other) = %v, %v", missing, err)
	}
}

func TestForgetAndWorkspaces(t *testing.T) {
	s := newTestStore(t)

	for _, ws := range []string{"a", "b"} {
		if err := s.SaveSnapshot(ws, &results.Snapshot{}); err != nil {
			t.Fatal(err)
		}
		if err := s.SaveSelection(ws, results.NewSelection()); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Forget("a"); err != nil {
		t.Fatal(err)
	}
	ids, err := s.Workspaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("Workspaces() = %v, want [b]", ids)
	}
	if sel, _ := s.LoadSelection("a"); sel != nil {
		t.Error("selection of forgotten workspace still stored")
	}

	// a selection without a snapshot still counts
	if err := s.SaveSelection("c", results.NewSelection()); err != nil {
		t.Fatal(err)
	}
	ids, _ = s.Workspaces()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("Workspaces() = %v, want [b c]", ids)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phishdash.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	sel := results.NewSelection()
	sel.Add(5)
	if err := s.SaveSelection("ws", sel); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.LoadSelection("ws")
	if err != nil || got == nil || !got.Has(5) {
		t.Errorf("after reopen LoadSelection() = %v, %v", got, err)
	}
}
