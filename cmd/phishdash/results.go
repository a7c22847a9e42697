package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdash/internal/config"
	"github.com/foxzi/phishdash/internal/platform"
	"github.com/foxzi/phishdash/internal/results"
)

var (
	resultsWorkspace string
	resultsExclude   []int64
	resultsDrilldown string
	resultsForms     bool
	resultsJSON      bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Fetch results once and print counters",
	Long: `Fetch one workspace's campaigns and results, apply the campaign
selection and print the counters.

Examples:
  phishdash results -c config.yaml -w acme
  phishdash results -c config.yaml -w acme --exclude 3,4
  phishdash results -c config.yaml -w acme --drilldown Clicked`,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsWorkspace, "workspace", "w", "", "Workspace ID (default: first configured)")
	resultsCmd.Flags().Int64SliceVar(&resultsExclude, "exclude", nil, "Campaign IDs to deselect")
	resultsCmd.Flags().StringVar(&resultsDrilldown, "drilldown", "", "List results in a status bucket (Sent, Unopened, Opened, ...)")
	resultsCmd.Flags().BoolVar(&resultsForms, "forms", false, "List submitted forms")
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "Print counters as JSON")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ws := workspaceOrDefault(cfg, resultsWorkspace)
	st, err := fetchState(cmd.Context(), cfg, ws, resultsExclude)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case resultsJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st.Counters)
	case resultsDrilldown != "":
		printResults(out, results.Drilldown(st.Filtered, resultsDrilldown))
	case resultsForms:
		printForms(out, st.FormRows())
	default:
		printCampaigns(out, st)
		fmt.Fprintln(out)
		printCounters(out, st.Counters)
	}
	return nil
}

func workspaceOrDefault(cfg *config.Config, ws string) string {
	if ws != "" {
		return ws
	}
	return cfg.Workspaces[0]
}

// fetchState fetches a workspace once and deselects the excluded campaigns
func fetchState(ctx context.Context, cfg *config.Config, ws string, exclude []int64) (*results.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.Platform.Timeout)

	campaigns, all, err := client.FetchResults(ctx, ws)
	if err != nil {
		return nil, err
	}

	st := results.NewState()
	st.ApplyFetch(campaigns, all, time.Now())
	for _, id := range exclude {
		if _, err := st.ToggleOne(id, false); err != nil {
			return nil, fmt.Errorf("exclude campaign %d: %w", id, err)
		}
	}
	return st, nil
}

func printCampaigns(out io.Writer, st *results.State) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SELECTED\tID\tNAME\tSTATUS\tSERVER\tDOMAIN")
	for _, c := range st.Campaigns {
		mark := " "
		if c.State {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s]\t%d\t%s\t%s\t%s\t%s\n", mark, c.ID, c.Name, c.Status, c.Server.Alias, c.Domain.Domain)
	}
	w.Flush()
	fmt.Fprintf(out, "Selection: %s\n", st.Mode())
}

func printCounters(out io.Writer, c results.Counters) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Sent:\t%d\n", c.Sent)
	fmt.Fprintf(w, "Scheduled:\t%d\n", c.Scheduled)
	fmt.Fprintf(w, "Errored:\t%d\n", c.Errored)
	fmt.Fprintf(w, "Unopened:\t%d\n", c.Unopened)
	fmt.Fprintf(w, "Opened:\t%d\n", c.Opened)
	fmt.Fprintf(w, "Clicked:\t%d\n", c.Clicked)
	fmt.Fprintf(w, "Downloaded:\t%d\n", c.Downloaded)
	fmt.Fprintf(w, "Submitted:\t%d\n", c.Submitted)
	w.Flush()
}

func printResults(out io.Writer, rs []results.Result) {
	if len(rs) == 0 {
		fmt.Fprintln(out, "No results")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAMPAIGN\tEMAIL\tNAME\tSTATUS")
	for _, r := range rs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s %s\t%s\n", r.ID, r.CampaignID, r.Person.Email, r.Person.FirstName, r.Person.LastName, r.Status)
	}
	w.Flush()
}

func printForms(out io.Writer, rows []results.FormRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No submitted forms")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPAIGN\tEMAIL\tTIME\tDATA")
	for _, row := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", row.CampaignID, row.Email, row.Event.Time, row.Event.FormData)
	}
	w.Flush()
}

