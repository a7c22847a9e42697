package results

import (
	"errors"
	"time"
)

var (
	// ErrResultNotFound is returned by lookups when no result in the filtered view has the ID
	ErrResultNotFound = errors.New("result not found")

	// ErrCampaignNotFound is returned when toggling a campaign that is not in the current fetch
	ErrCampaignNotFound = errors.New("campaign not found")
)

// SelectionMode summarizes how many campaigns are selected
type SelectionMode string

const (
	SelectionAll     SelectionMode = "all"
	SelectionNone    SelectionMode = "none"
	SelectionPartial SelectionMode = "partial"
)

// State is the aggregate for one workspace. It has a single owner; the
// derived fields are recomputed from All and Selection after every change.
type State struct {
	Campaigns []Campaign
	All       []Result

	Filtered []Result
	Forms    []Event
	Counters Counters

	Selection *Selection

	FetchedAt time.Time
	LastError string
	Loading   bool
}

// NewState returns an empty state with an empty selection
func NewState() *State {
	return &State{Selection: NewSelection()}
}

// ApplyFetch replaces campaigns and results with a fresh fetch and restores
// each campaign's state from the selection. An empty selection selects every
// campaign.
func (s *State) ApplyFetch(campaigns []Campaign, all []Result, at time.Time) {
	NormalizeCampaigns(campaigns)
	s.Campaigns = campaigns
	s.All = all
	s.FetchedAt = at
	s.LastError = ""

	if s.Selection.Len() == 0 {
		for _, c := range campaigns {
			s.Selection.Add(c.ID)
		}
	}
	s.syncCampaignState()
	s.derive()
}

// ToggleAll selects or deselects every campaign
func (s *State) ToggleAll(checked bool) {
	if checked {
		for _, c := range s.Campaigns {
			s.Selection.Add(c.ID)
		}
	} else {
		s.Selection.Clear()
	}
	s.syncCampaignState()
	s.derive()
}

// ToggleOne sets one campaign's membership in the selection. It reports
// whether anything changed.
func (s *State) ToggleOne(campaignID int64, checked bool) (bool, error) {
	idx := s.campaignIndex(campaignID)
	if idx < 0 {
		return false, ErrCampaignNotFound
	}
	if s.Selection.Has(campaignID) == checked {
		return false, nil
	}

	if checked {
		s.Selection.Add(campaignID)
	} else {
		s.Selection.Remove(campaignID)
	}
	s.Campaigns[idx].State = checked
	s.derive()
	return true, nil
}

// Mode reports whether all, none or some campaigns are selected
func (s *State) Mode() SelectionMode {
	selected := 0
	for _, c := range s.Campaigns {
		if c.State {
			selected++
		}
	}
	switch {
	case selected == 0:
		return SelectionNone
	case selected == len(s.Campaigns):
		return SelectionAll
	default:
		return SelectionPartial
	}
}

// ResultEmail returns the target e-mail of a result in the filtered view
func (s *State) ResultEmail(resultID int64) (string, error) {
	r, err := s.findFiltered(resultID)
	if err != nil {
		return "", err
	}
	return r.Person.Email, nil
}

// CampaignIDForResult returns the campaign a result in the filtered view belongs to
func (s *State) CampaignIDForResult(resultID int64) (int64, error) {
	r, err := s.findFiltered(resultID)
	if err != nil {
		return 0, err
	}
	return r.CampaignID, nil
}

// FormRow is a submitted form joined with the result it came from
type FormRow struct {
	CampaignID int64  `json:"campaign_id"`
	Email      string `json:"email"`
	Event      Event  `json:"event"`
}

// FormRows returns the submitted forms with campaign and e-mail resolved.
// Forms whose result is no longer in view are skipped.
func (s *State) FormRows() []FormRow {
	rows := make([]FormRow, 0, len(s.Forms))
	for _, ev := range s.Forms {
		r, err := s.findFiltered(ev.ResultID)
		if err != nil {
			continue
		}
		rows = append(rows, FormRow{CampaignID: r.CampaignID, Email: r.Person.Email, Event: ev})
	}
	return rows
}

// Clone returns a copy that is safe to read while the original keeps changing.
// Result slices are shared: they are replaced, never modified, on change.
func (s *State) Clone() *State {
	c := *s
	c.Campaigns = make([]Campaign, len(s.Campaigns))
	copy(c.Campaigns, s.Campaigns)
	c.Selection = s.Selection.Clone()
	return &c
}

func (s *State) findFiltered(resultID int64) (*Result, error) {
	for i := range s.Filtered {
		if s.Filtered[i].ID == resultID {
			return &s.Filtered[i], nil
		}
	}
	return nil, ErrResultNotFound
}

func (s *State) campaignIndex(id int64) int {
	for i := range s.Campaigns {
		if s.Campaigns[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) syncCampaignState() {
	for i := range s.Campaigns {
		s.Campaigns[i].State = s.Selection.Has(s.Campaigns[i].ID)
	}
}

func (s *State) derive() {
	s.Filtered = FilterResults(s.All, s.Selection)
	s.Forms = SubmittedForms(s.Filtered)
	s.Counters = CountStatuses(s.Filtered)
}
