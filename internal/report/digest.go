package report

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/foxzi/phishdash/internal/results"
)

// Digest is a point-in-time summary of one workspace's selected campaigns
type Digest struct {
	Workspace   string
	GeneratedAt time.Time
	FetchedAt   time.Time
	Campaigns   []results.Campaign
	Counters    results.Counters
	Forms       []results.FormRow
	LastError   string
}

// NewDigest builds a digest from a published state
func NewDigest(workspaceID string, st *results.State, now time.Time) Digest {
	d := Digest{
		Workspace:   workspaceID,
		GeneratedAt: now,
		FetchedAt:   st.FetchedAt,
		Counters:    st.Counters,
		Forms:       st.FormRows(),
		LastError:   st.LastError,
	}
	for _, c := range st.Campaigns {
		if c.State {
			d.Campaigns = append(d.Campaigns, c)
		}
	}
	return d
}

// Subject returns the mail subject line
func (d Digest) Subject() string {
	return fmt.Sprintf("[phishdash] %s: %d submitted of %d sent", d.Workspace, d.Counters.Submitted, d.Counters.Sent)
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"pct": percent,
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC1123)
	},
}).Parse(`Phishing results for workspace {{.Workspace}}
Generated {{ts .GeneratedAt}}, data fetched {{ts .FetchedAt}}
{{- if .LastError}}
Last fetch failed: {{.LastError}}
{{- end}}

Campaigns ({{len .Campaigns}}):
{{- range .Campaigns}}
  - {{.Name}} [{{.Status}}] via {{.Server.Alias}} / {{.Domain.Domain}}
{{- else}}
  (none selected)
{{- end}}

Sent        {{.Counters.Sent}}
Scheduled   {{.Counters.Scheduled}}
Errored     {{.Counters.Errored}}
Unopened    {{.Counters.Unopened}}
Opened      {{.Counters.Opened}} ({{pct .Counters.Opened .Counters.Sent}})
Clicked     {{.Counters.Clicked}} ({{pct .Counters.Clicked .Counters.Sent}})
Downloaded  {{.Counters.Downloaded}} ({{pct .Counters.Downloaded .Counters.Sent}})
Submitted   {{.Counters.Submitted}} ({{pct .Counters.Submitted .Counters.Sent}})
{{- if .Forms}}

Submitted forms:
{{- range .Forms}}
  - {{.Email}} (campaign {{.CampaignID}}) at {{.Event.Time}}
{{- end}}
{{- end}}
`))

// Render writes the plain-text digest
func (d Digest) Render(w io.Writer) error {
	return digestTemplate.Execute(w, d)
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
