package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdash/internal/platform"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check platform connectivity and workspace access",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Platform: %s\n", cfg.Platform.BaseURL)

	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey, cfg.Platform.Timeout)
	visible, err := client.ListWorkspaces(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] %v\n", err)
		return fmt.Errorf("platform check failed: %w", err)
	}
	fmt.Fprintf(out, "  [OK] API key accepted, %d workspaces visible\n", len(visible))

	missing := reportWorkspaces(out, cfg.Workspaces, visible)
	if missing > 0 {
		return fmt.Errorf("%d configured workspaces are not visible to the API key", missing)
	}
	return nil
}

// reportWorkspaces prints one line per configured workspace and returns how
// many the platform does not list
func reportWorkspaces(out io.Writer, configured []string, visible []platform.Workspace) int {
	names := make(map[string]string, len(visible))
	for _, ws := range visible {
		names[strconv.FormatInt(ws.ID, 10)] = ws.Name
	}

	missing := 0
	for _, id := range configured {
		name, ok := names[id]
		if !ok {
			fmt.Fprintf(out, "  [FAIL] workspace %s: not found\n", id)
			missing++
			continue
		}
		fmt.Fprintf(out, "  [OK] workspace %s: %s\n", id, name)
	}
	return missing
}
