package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/foxzi/phishdash/internal/config"
	"github.com/foxzi/phishdash/internal/results"
)

func testState(t *testing.T) *results.State {
	t.Helper()
	st := results.NewState()
	st.ApplyFetch(
		[]results.Campaign{
			{ID: 1, Name: "Payroll", Status: "In progress", Server: &results.ServerRef{Alias: "mx1"}},
			{ID: 2, Name: "VPN reset"},
		},
		[]results.Result{
			{ID: 10, CampaignID: 1, Status: results.StatusSent, Person: results.Person{Email: "a@example.com"}},
			{ID: 11, CampaignID: 1, Status: results.StatusSubmitted, Person: results.Person{Email: "b@example.com"},
				Events: []results.Event{{ResultID: 11, Action: results.ActionSubmitted, Time: "2024-03-01T10:00:00Z"}}},
			{ID: 20, CampaignID: 2, Status: results.StatusOpened, Person: results.Person{Email: "c@example.com"}},
		},
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	)
	if _, err := st.ToggleOne(2, false); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestNewDigest(t *testing.T) {
	d := NewDigest("acme", testState(t), time.Now())

	if len(d.Campaigns) != 1 || d.Campaigns[0].Name != "Payroll" {
		t.Errorf("Campaigns = %+v, want only Payroll", d.Campaigns)
	}
	if d.Counters.Sent != 2 || d.Counters.Submitted != 1 {
		t.Errorf("Counters = %+v", d.Counters)
	}
	if len(d.Forms) != 1 || d.Forms[0].Email != "b@example.com" {
		t.Errorf("Forms = %+v", d.Forms)
	}
	if got, want := d.Subject(), "[phishdash] acme: 1 submitted of 2 sent"; got != want {
		t.Errorf("Subject() = %q, want %q", got, want)
	}
}

func TestDigestRender(t *testing.T) {
	d := NewDigest("acme", testState(t), time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"workspace acme",
		"Payroll [In progress] via mx1 / [Deleted]",
		"Submitted   1 (50.0%)",
		"Opened      0 (0.0%)",
		"b@example.com (campaign 1) at 2024-03-01T10:00:00Z",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("digest missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "VPN reset") {
		t.Error("digest lists a deselected campaign")
	}
	if strings.Contains(out, "Last fetch failed") {
		t.Error("digest reports a failure that did not happen")
	}
}

func TestDigestRenderEmpty(t *testing.T) {
	d := NewDigest("empty", results.NewState(), time.Now())
	d.LastError = "HTTP 502"

	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"(none selected)", "data fetched never", "Last fetch failed: HTTP 502"} {
		if !strings.Contains(out, want) {
			t.Errorf("digest missing %q:\n%s", want, out)
		}
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		n, total int
		want     string
	}{
		{0, 0, "0.0%"},
		{1, 3, "33.3%"},
		{2, 2, "100.0%"},
	}
	for _, tt := range tests {
		if got := percent(tt.n, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %q, want %q", tt.n, tt.total, got, tt.want)
		}
	}
}

func TestMailerSend(t *testing.T) {
	cfg := config.ReportConfig{
		SMTPAddr: "smtp.example.com:587",
		Username: "reports",
		Password: "secret",
		From:     "Phishdash <reports@example.com>",
		To:       []string{"SOC <soc@example.com>", "ciso@example.com"},
	}
	m := NewMailer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotAuth sasl.Client
		gotFrom string
		gotTo   []string
		gotData []byte
	)
	m.send = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		gotData, _ = io.ReadAll(r)
		return nil
	}

	if err := m.Send(context.Background(), NewDigest("acme", testState(t), time.Now())); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotAddr != cfg.SMTPAddr {
		t.Errorf("addr = %q, want %q", gotAddr, cfg.SMTPAddr)
	}
	if gotAuth == nil {
		t.Fatal("no SASL client for configured username")
	}
	mech, ir, err := gotAuth.Start()
	if err != nil || mech != sasl.Plain || string(ir) != "\x00reports\x00secret" {
		t.Errorf("auth start = %q %q %v", mech, ir, err)
	}
	if gotFrom != "reports@example.com" {
		t.Errorf("envelope from = %q", gotFrom)
	}
	if len(gotTo) != 2 || gotTo[0] != "soc@example.com" || gotTo[1] != "ciso@example.com" {
		t.Errorf("envelope to = %v", gotTo)
	}

	msg := string(gotData)
	for _, want := range []string{
		"From: Phishdash <reports@example.com>\r\n",
		"To: SOC <soc@example.com>, ciso@example.com\r\n",
		"Subject: [phishdash] acme: 1 submitted of 2 sent\r\n",
		"Date: Fri, 01 Mar 2024 13:00:00 +0000\r\n",
		"@example.com>\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"\r\n\r\nPhishing results for workspace acme\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestMailerSendErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDigest("acme", results.NewState(), time.Now())

	m := NewMailer(config.ReportConfig{}, logger)
	if err := m.Send(context.Background(), d); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send() unconfigured error = %v, want ErrNotConfigured", err)
	}

	m = NewMailer(config.ReportConfig{SMTPAddr: "relay:25", From: "a@example.com", To: []string{"b@example.com"}}, logger)
	relayErr := errors.New("554 rejected")
	m.send = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		if a != nil {
			t.Error("SASL client set without username")
		}
		return relayErr
	}
	if err := m.Send(context.Background(), d); !errors.Is(err, relayErr) {
		t.Errorf("Send() error = %v, want wrapped relay error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, d); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() with cancelled ctx error = %v", err)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"reports@example.com", "example.com"},
		{"Phishdash <r@corp.example>", "corp.example"},
		{"nobody", "localhost"},
	}
	for _, tt := range tests {
		if got := extractDomain(tt.in); got != tt.want {
			t.Errorf("extractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
