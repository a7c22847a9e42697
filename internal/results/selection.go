package results

import (
	"encoding/json"
	"slices"
)

// Selection tracks which campaign IDs are included in the aggregate view.
//
// An empty selection is filled with every campaign on the next fetch; a
// non-empty one is kept across fetches.
type Selection struct {
	ids map[int64]struct{}
}

// NewSelection returns an empty selection
func NewSelection() *Selection {
	return &Selection{ids: make(map[int64]struct{})}
}

// Has reports whether the campaign is selected
func (s *Selection) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Add selects a campaign
func (s *Selection) Add(id int64) {
	s.ids[id] = struct{}{}
}

// Remove deselects a campaign
func (s *Selection) Remove(id int64) {
	delete(s.ids, id)
}

// Clear deselects everything
func (s *Selection) Clear() {
	clear(s.ids)
}

// Len returns the number of selected campaigns
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected campaign IDs in ascending order
func (s *Selection) IDs() []int64 {
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns an independent copy
func (s *Selection) Clone() *Selection {
	c := &Selection{ids: make(map[int64]struct{}, len(s.ids))}
	for id := range s.ids {
		c.ids[id] = struct{}{}
	}
	return c
}

type selectionJSON struct {
	IDs []int64 `json:"ids"`
}

// MarshalJSON implements json.Marshaler
func (s *Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(selectionJSON{IDs: s.IDs()})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Selection) UnmarshalJSON(data []byte) error {
	var v selectionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.ids = make(map[int64]struct{}, len(v.IDs))
	for _, id := range v.IDs {
		s.ids[id] = struct{}{}
	}
	return nil
}
