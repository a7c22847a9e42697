package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdash/internal/app"
	"github.com/foxzi/phishdash/internal/report"
)

var (
	reportWorkspace string
	reportExclude   []int64
	reportDryRun    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Mail a results digest",
	Long: `Fetch one workspace's results and mail a plain-text digest to the
recipients in the report section of the configuration.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportWorkspace, "workspace", "w", "", "Workspace ID (default: first configured)")
	reportCmd.Flags().Int64SliceVar(&reportExclude, "exclude", nil, "Campaign IDs to leave out of the digest")
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "Print the digest instead of sending it")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ws := workspaceOrDefault(cfg, reportWorkspace)
	st, err := fetchState(cmd.Context(), cfg, ws, reportExclude)
	if err != nil {
		return err
	}

	digest := report.NewDigest(ws, st, time.Now())
	if reportDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\n", digest.Subject())
		return digest.Render(cmd.OutOrStdout())
	}

	logger := app.NewLogger(cfg.Logging).With("component", "report")
	mailer := report.NewMailer(cfg.Report, logger)
	if err := mailer.Send(cmd.Context(), digest); err != nil {
		logger.Error("failed to send digest", slog.String("workspace", ws), slog.Any("error", err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Digest for %s sent to %d recipients\n", ws, len(cfg.Report.To))
	return nil
}
