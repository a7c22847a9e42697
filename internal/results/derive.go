package results

// Counters holds the status buckets of a result set
type Counters struct {
	Errored    int `json:"errored"`
	Scheduled  int `json:"scheduled"`
	Sent       int `json:"sent"`
	Unopened   int `json:"unopened"`
	Opened     int `json:"opened"`
	Clicked    int `json:"clicked"`
	Downloaded int `json:"downloaded"`
	Submitted  int `json:"submitted"`
}

// Funnel returns the series plotted by the results graphs:
// unopened, opened, clicked, downloaded, submitted.
func (c Counters) Funnel() []int {
	return []int{c.Unopened, c.Opened, c.Clicked, c.Downloaded, c.Submitted}
}

// FilterResults returns the results of selected campaigns in source order
func FilterResults(all []Result, sel *Selection) []Result {
	filtered := make([]Result, 0, len(all))
	for _, r := range all {
		if sel.Has(r.CampaignID) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// SubmittedForms flattens the event histories of the given results and keeps
// only form submissions
func SubmittedForms(results []Result) []Event {
	var forms []Event
	for _, r := range results {
		for _, ev := range r.Events {
			if ev.Action == ActionSubmitted {
				forms = append(forms, ev)
			}
		}
	}
	return forms
}

// CountStatuses computes the status buckets of a result set.
//
// Sent counts everything that is no longer scheduled. Unopened is the remainder
// after the terminal buckets and scheduled results are taken out, so any stored
// status other than those five (Sent, Error) lands there. It cannot go negative
// as long as each result carries exactly one status.
func CountStatuses(results []Result) Counters {
	var c Counters
	for _, r := range results {
		switch r.Status {
		case StatusError:
			c.Errored++
		case StatusScheduled:
			c.Scheduled++
		case StatusOpened:
			c.Opened++
		case StatusClicked:
			c.Clicked++
		case StatusDownloaded:
			c.Downloaded++
		case StatusSubmitted:
			c.Submitted++
		}
	}

	total := len(results)
	c.Sent = total - c.Scheduled
	c.Unopened = total - c.Opened - c.Clicked - c.Downloaded - c.Submitted - c.Scheduled
	return c
}

// Drilldown returns the results behind a counter label.
// "Sent" means every result that is not scheduled; "Unopened" selects stored
// status Sent; any other label matches the stored status exactly.
func Drilldown(results []Result, label string) []Result {
	var match func(Result) bool
	switch label {
	case string(StatusSent):
		match = func(r Result) bool { return r.Status != StatusScheduled }
	case VirtualUnopened:
		match = func(r Result) bool { return r.Status == StatusSent }
	default:
		status := Status(label)
		match = func(r Result) bool { return r.Status == status }
	}

	out := make([]Result, 0)
	for _, r := range results {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}
