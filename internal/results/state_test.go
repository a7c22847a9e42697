package results

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func exampleCampaigns() []Campaign {
	return []Campaign{
		{ID: 1, Name: "Q1 payroll", Server: &ServerRef{Alias: "srv"}, Domain: &DomainRef{Domain: "corp-login.example"}},
		{ID: 2, Name: "Q1 IT reset"},
	}
}

func exampleResults() []Result {
	return []Result{
		{ID: 10, CampaignID: 1, Status: StatusOpened, Person: Person{Email: "alice@example.com"}},
		{ID: 11, CampaignID: 2, Status: StatusScheduled, Person: Person{Email: "bob@example.com"}},
	}
}

func checkStateInvariant(t *testing.T, s *State) {
	t.Helper()
	for _, c := range s.Campaigns {
		if c.State != s.Selection.Has(c.ID) {
			t.Errorf("campaign %d state=%v but selection has=%v", c.ID, c.State, s.Selection.Has(c.ID))
		}
	}
	seen := make(map[int64]bool)
	for _, r := range s.Filtered {
		if seen[r.ID] {
			t.Errorf("result %d appears twice in filtered view", r.ID)
		}
		seen[r.ID] = true
		if !s.Selection.Has(r.CampaignID) {
			t.Errorf("result %d of unselected campaign %d in filtered view", r.ID, r.CampaignID)
		}
	}
	for _, r := range s.All {
		if s.Selection.Has(r.CampaignID) && !seen[r.ID] {
			t.Errorf("result %d of selected campaign %d missing from filtered view", r.ID, r.CampaignID)
		}
	}
}

func TestStateInitialFetchSelectsAll(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	checkStateInvariant(t, s)
	if s.Mode() != SelectionAll {
		t.Errorf("Mode() = %s, want all", s.Mode())
	}
	want := Counters{Opened: 1, Scheduled: 1, Sent: 1, Unopened: 0}
	if diff := cmp.Diff(want, s.Counters); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	if s.Campaigns[1].Server.Alias != DeletedPlaceholder || s.Campaigns[1].Domain.Domain != DeletedPlaceholder {
		t.Errorf("missing references not normalized: %+v", s.Campaigns[1])
	}
}

func TestStateToggleOne(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	changed, err := s.ToggleOne(2, false)
	if err != nil || !changed {
		t.Fatalf("ToggleOne(2, false) = %v, %v", changed, err)
	}
	checkStateInvariant(t, s)

	if diff := cmp.Diff([]int64{10}, resultIDs(s.Filtered)); diff != "" {
		t.Errorf("filtered mismatch (-want +got):\n%s", diff)
	}
	want := Counters{Opened: 1, Scheduled: 0, Sent: 1, Unopened: 0}
	if diff := cmp.Diff(want, s.Counters); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	if s.Mode() != SelectionPartial {
		t.Errorf("Mode() = %s, want partial", s.Mode())
	}

	// back on: unopened drilldown has nothing with stored status Sent
	if _, err := s.ToggleOne(2, true); err != nil {
		t.Fatal(err)
	}
	if got := Drilldown(s.Filtered, VirtualUnopened); len(got) != 0 {
		t.Errorf("Drilldown(Unopened) = %v, want empty", resultIDs(got))
	}
}

func TestStateToggleOneRoundTrip(t *testing.T) {
	campaigns := []Campaign{{ID: 1}, {ID: 2}, {ID: 3}}
	all := []Result{
		{ID: 1, CampaignID: 2}, {ID: 2, CampaignID: 1}, {ID: 3, CampaignID: 3},
		{ID: 4, CampaignID: 1}, {ID: 5, CampaignID: 2},
	}
	s := NewState()
	s.ApplyFetch(campaigns, all, time.Now())
	before := resultIDs(s.Filtered)

	for _, id := range []int64{1, 2, 3} {
		if _, err := s.ToggleOne(id, false); err != nil {
			t.Fatal(err)
		}
		checkStateInvariant(t, s)
		if _, err := s.ToggleOne(id, true); err != nil {
			t.Fatal(err)
		}
		checkStateInvariant(t, s)

		if diff := cmp.Diff(before, resultIDs(s.Filtered)); diff != "" {
			t.Errorf("campaign %d round trip changed filtered view (-want +got):\n%s", id, diff)
		}
	}
}

func TestStateToggleOneNoop(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	changed, err := s.ToggleOne(1, true)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("selecting an already selected campaign reported a change")
	}
	if len(s.Filtered) != 2 {
		t.Errorf("filtered = %d results, want 2", len(s.Filtered))
	}
}

func TestStateToggleOneUnknownCampaign(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	if _, err := s.ToggleOne(99, true); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("ToggleOne(99) error = %v, want ErrCampaignNotFound", err)
	}
	if s.Selection.Has(99) {
		t.Error("unknown campaign added to selection")
	}
}

func TestStateToggleAll(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	s.ToggleAll(true)
	checkStateInvariant(t, s)
	if len(s.Filtered) != 2 {
		t.Errorf("after ToggleAll(true) filtered = %d, want 2", len(s.Filtered))
	}

	s.ToggleAll(false)
	checkStateInvariant(t, s)
	if len(s.Filtered) != 0 || len(s.Forms) != 0 {
		t.Errorf("after ToggleAll(false) filtered = %d, forms = %d, want 0", len(s.Filtered), len(s.Forms))
	}
	if s.Selection.Len() != 0 {
		t.Errorf("selection len = %d, want 0", s.Selection.Len())
	}
	if s.Mode() != SelectionNone {
		t.Errorf("Mode() = %s, want none", s.Mode())
	}
	if (s.Counters != Counters{}) {
		t.Errorf("counters = %+v, want zero", s.Counters)
	}
}

func TestStateRefetchKeepsSelection(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	if _, err := s.ToggleOne(1, false); err != nil {
		t.Fatal(err)
	}

	// new objects, new campaign 3
	campaigns := append(exampleCampaigns(), Campaign{ID: 3})
	all := append(exampleResults(), Result{ID: 12, CampaignID: 3, Status: StatusClicked})
	s.ApplyFetch(campaigns, all, time.Now())

	checkStateInvariant(t, s)
	if s.Campaigns[0].State {
		t.Error("deselected campaign 1 selected again after refetch")
	}
	if !s.Campaigns[1].State {
		t.Error("selected campaign 2 lost after refetch")
	}
	if s.Campaigns[2].State {
		t.Error("campaign 3 appeared while campaigns were selected and should not be selected")
	}
	if diff := cmp.Diff([]int64{11}, resultIDs(s.Filtered)); diff != "" {
		t.Errorf("filtered mismatch (-want +got):\n%s", diff)
	}
}

func TestStateRefetchAfterDeselectAllSelectsAll(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	s.ToggleAll(false)

	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	checkStateInvariant(t, s)
	if s.Mode() != SelectionAll {
		t.Errorf("Mode() = %s, want all", s.Mode())
	}
	if diff := cmp.Diff([]int64{1, 2}, s.Selection.IDs()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if len(s.Filtered) != 2 {
		t.Errorf("filtered = %d after refetch, want 2", len(s.Filtered))
	}
}

func TestStateRefetchAfterLastToggleOffSelectsAll(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	for _, id := range []int64{1, 2} {
		if _, err := s.ToggleOne(id, false); err != nil {
			t.Fatal(err)
		}
	}
	if s.Mode() != SelectionNone {
		t.Fatalf("Mode() = %s before refetch, want none", s.Mode())
	}

	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	checkStateInvariant(t, s)
	if s.Mode() != SelectionAll {
		t.Errorf("Mode() = %s, want all", s.Mode())
	}
	if len(s.Filtered) != 2 {
		t.Errorf("filtered = %d after refetch, want 2", len(s.Filtered))
	}
}

func TestStateEmptyFetchKeepsSelectionEmpty(t *testing.T) {
	s := NewState()
	s.ApplyFetch(nil, nil, time.Now())
	if s.Selection.Len() != 0 {
		t.Fatalf("selection len = %d after empty fetch, want 0", s.Selection.Len())
	}

	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	if s.Mode() != SelectionAll {
		t.Errorf("Mode() = %s, want all", s.Mode())
	}
}

func TestStateLookups(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())

	email, err := s.ResultEmail(11)
	if err != nil || email != "bob@example.com" {
		t.Errorf("ResultEmail(11) = %q, %v", email, err)
	}
	cid, err := s.CampaignIDForResult(10)
	if err != nil || cid != 1 {
		t.Errorf("CampaignIDForResult(10) = %d, %v", cid, err)
	}

	if _, err := s.ResultEmail(404); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("ResultEmail(404) error = %v, want ErrResultNotFound", err)
	}

	// lookups only see the filtered view
	if _, err := s.ToggleOne(2, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CampaignIDForResult(11); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("CampaignIDForResult(11) error = %v, want ErrResultNotFound", err)
	}
}

func TestStateFormRows(t *testing.T) {
	all := []Result{
		{ID: 10, CampaignID: 1, Status: StatusSubmitted, Person: Person{Email: "alice@example.com"},
			Events: []Event{
				{ResultID: 10, Action: "Clicked"},
				{ResultID: 10, Action: ActionSubmitted, FormData: []byte(`{"password":"hunter2"}`)},
			}},
		{ID: 11, CampaignID: 2, Status: StatusSubmitted, Person: Person{Email: "bob@example.com"},
			Events: []Event{{ResultID: 11, Action: ActionSubmitted}}},
		// event points at a result that is not in view
		{ID: 12, CampaignID: 2, Status: StatusSubmitted,
			Events: []Event{{ResultID: 999, Action: ActionSubmitted}}},
	}
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), all, time.Now())

	rows := s.FormRows()
	if len(rows) != 2 {
		t.Fatalf("FormRows() = %d rows, want 2", len(rows))
	}
	if rows[0].CampaignID != 1 || rows[0].Email != "alice@example.com" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].CampaignID != 2 || rows[1].Email != "bob@example.com" {
		t.Errorf("rows[1] = %+v", rows[1])
	}

	if _, err := s.ToggleOne(1, false); err != nil {
		t.Fatal(err)
	}
	if rows := s.FormRows(); len(rows) != 1 || rows[0].CampaignID != 2 {
		t.Errorf("after deselecting campaign 1 FormRows() = %+v", rows)
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	s.ApplyFetch(exampleCampaigns(), exampleResults(), time.Now())
	c := s.Clone()

	if _, err := s.ToggleOne(1, false); err != nil {
		t.Fatal(err)
	}
	if !c.Campaigns[0].State || !c.Selection.Has(1) {
		t.Error("clone changed when original was toggled")
	}
	if len(c.Filtered) != 2 {
		t.Errorf("clone filtered = %d, want 2", len(c.Filtered))
	}
}

func TestSelectionJSON(t *testing.T) {
	s := selectionOf(3, 1, 2)
	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"ids":[1,2,3]}` {
		t.Errorf("MarshalJSON() = %s", data)
	}

	var got Selection
	if err := got.UnmarshalJSON([]byte(`{"ids":[4,5]}`)); err != nil {
		t.Fatal(err)
	}
	if got.Len() != 2 || !got.Has(4) || !got.Has(5) {
		t.Errorf("decoded selection = %v", got.IDs())
	}
}
