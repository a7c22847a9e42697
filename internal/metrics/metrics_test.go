package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/foxzi/phishdash/internal/results"
)

var _ results.Observer = (*Metrics)(nil)

func TestNew(t *testing.T) {
	m := New()
	if m.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}

	m.CommandApplied("ws", "fetch")
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "phishdash_commands_total" {
			found = true
		}
	}
	if !found {
		t.Error("phishdash_commands_total not registered")
	}
}

func TestFetchFinished(t *testing.T) {
	m := New()

	m.FetchFinished("ws1", 150*time.Millisecond, nil)
	m.FetchFinished("ws1", 20*time.Millisecond, nil)
	m.FetchFinished("ws1", time.Second, errors.New("timeout"))

	if got := testutil.ToFloat64(m.PollsTotal.WithLabelValues("ws1", "success")); got != 2 {
		t.Errorf("success polls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PollsTotal.WithLabelValues("ws1", "error")); got != 1 {
		t.Errorf("error polls = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.PollDurationSeconds); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestStateChanged(t *testing.T) {
	m := New()

	st := results.NewState()
	st.ApplyFetch(
		[]results.Campaign{{ID: 1}, {ID: 2}},
		[]results.Result{
			{ID: 1, CampaignID: 1, Status: results.StatusSent},
			{ID: 2, CampaignID: 1, Status: results.StatusClicked},
			{ID: 3, CampaignID: 2, Status: results.StatusSubmitted, Events: []results.Event{
				{ResultID: 3, Action: results.ActionSubmitted},
			}},
		},
		time.Unix(1700000000, 0),
	)
	if _, err := st.ToggleOne(2, false); err != nil {
		t.Fatal(err)
	}

	m.StateChanged("ws1", st)

	tests := []struct {
		bucket string
		want   float64
	}{
		{"sent", 2},
		{"unopened", 1},
		{"clicked", 1},
		{"submitted", 0},
		{"scheduled", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.Results.WithLabelValues("ws1", tt.bucket)); got != tt.want {
			t.Errorf("bucket %s = %v, want %v", tt.bucket, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.SelectedCampaigns.WithLabelValues("ws1")); got != 1 {
		t.Errorf("selected campaigns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Campaigns.WithLabelValues("ws1")); got != 2 {
		t.Errorf("campaigns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SubmittedForms.WithLabelValues("ws1")); got != 0 {
		t.Errorf("submitted forms = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.LastPollTimestamp.WithLabelValues("ws1")); got != 1700000000 {
		t.Errorf("last poll = %v", got)
	}
}

func TestCommandApplied(t *testing.T) {
	m := New()
	m.CommandApplied("ws1", "toggle_one")
	m.CommandApplied("ws1", "toggle_one")
	m.CommandApplied("ws2", "toggle_all")

	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("ws1", "toggle_one")); got != 2 {
		t.Errorf("toggle_one = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("ws2", "toggle_all")); got != 1 {
		t.Errorf("toggle_all = %v, want 1", got)
	}
}

func TestCollector(t *testing.T) {
	m := New()
	c := NewCollector(m, "", time.Hour)
	c.collect()

	if got := testutil.ToFloat64(m.Goroutines); got < 1 {
		t.Errorf("goroutines = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(m.UptimeSeconds); got < 0 {
		t.Errorf("uptime = %v", got)
	}
}
