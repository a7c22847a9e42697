package results

import "encoding/json"

// Status is the stored outcome of a result as reported by the platform
type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusError      Status = "Error"
	StatusSent       Status = "Sent"
	StatusOpened     Status = "Opened"
	StatusClicked    Status = "Clicked"
	StatusDownloaded Status = "Downloaded"
	StatusSubmitted  Status = "Submitted"
)

// VirtualUnopened is a display label, not a stored status. It names the results
// that were sent but reached none of the terminal buckets; drilling into it
// selects stored status Sent.
const VirtualUnopened = "Unopened"

// ActionSubmitted marks events that carry captured form data
const ActionSubmitted = "Submitted"

// DeletedPlaceholder is shown instead of a server or domain removed upstream
const DeletedPlaceholder = "[Deleted]"

// ServerRef is the sending server a campaign ran through
type ServerRef struct {
	ID    int64  `json:"id,omitempty"`
	Alias string `json:"alias"`
	IP    string `json:"ip,omitempty"`
}

// DomainRef is the phishing domain a campaign used
type DomainRef struct {
	ID     int64  `json:"id,omitempty"`
	Domain string `json:"domain"`
}

// Campaign is a campaign row as returned by the Results API.
// State mirrors membership in the selection and is not sent by the platform.
type Campaign struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Server    *ServerRef `json:"server"`
	Domain    *DomainRef `json:"domain"`
	StartDate string     `json:"start_date,omitempty"`
	EndDate   string     `json:"end_date,omitempty"`
	State     bool       `json:"state"`
}

// Person is the target a result belongs to
type Person struct {
	ID        int64  `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Event is one entry of a result's event history
type Event struct {
	ID        int64           `json:"id,omitempty"`
	ResultID  int64           `json:"result_id"`
	Action    string          `json:"action"`
	Time      string          `json:"time,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	FormData  json.RawMessage `json:"form_data,omitempty"`
}

// Result is the per-recipient outcome of one campaign
type Result struct {
	ID         int64   `json:"id"`
	CampaignID int64   `json:"campaign_id"`
	Status     Status  `json:"status"`
	Person     Person  `json:"person"`
	Events     []Event `json:"events"`
}

// NormalizeCampaigns replaces missing server and domain references with
// placeholders so every campaign can be rendered. It modifies the slice in place.
func NormalizeCampaigns(campaigns []Campaign) {
	for i := range campaigns {
		if campaigns[i].Server == nil {
			campaigns[i].Server = &ServerRef{Alias: DeletedPlaceholder}
		}
		if campaigns[i].Domain == nil {
			campaigns[i].Domain = &DomainRef{Domain: DeletedPlaceholder}
		}
	}
}
