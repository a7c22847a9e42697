package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	initPlatformURL string
	initPlatformKey string
	initWorkspaces  []string
	initOutput      string
	initAPIKey      string
	initDataDir     string
	initMetrics     bool
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize phishdash configuration",
	Long: `Interactive wizard to create a phishdash configuration file.

The dashboard API key is generated unless given and only its bcrypt hash is
written to the file.

Examples:
  # Interactive mode - prompts for missing values
  phishdash init

  # Non-interactive with all flags
  phishdash init --platform-url https://phish.example.com/api --workspace 1 --workspace 2`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPlatformURL, "platform-url", "", "Phishing platform API base URL")
	initCmd.Flags().StringVar(&initPlatformKey, "platform-key", "", "Phishing platform API key (or PHISHDASH_PLATFORM_API_KEY)")
	initCmd.Flags().StringArrayVar(&initWorkspaces, "workspace", nil, "Workspace ID to watch (repeatable)")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "Dashboard API key (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/phishdash", "Data directory for the state database")
	initCmd.Flags().BoolVar(&initMetrics, "metrics", false, "Enable the Prometheus metrics server")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Phishdash Configuration Wizard")
	fmt.Println("==============================")
	fmt.Println()

	if initPlatformURL == "" {
		initPlatformURL = prompt(reader, "Platform API URL (e.g., https://phish.example.com/api)", "")
		if initPlatformURL == "" {
			return fmt.Errorf("platform URL is required")
		}
	}

	if len(initWorkspaces) == 0 {
		answer := prompt(reader, "Workspace IDs (comma separated)", "1")
		for _, ws := range strings.Split(answer, ",") {
			if ws = strings.TrimSpace(ws); ws != "" {
				initWorkspaces = append(initWorkspaces, ws)
			}
		}
	}

	initDataDir = prompt(reader, "Data directory", initDataDir)

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
		fmt.Printf("  Generated API key: %s\n", initAPIKey)
		fmt.Println("  Store it now, only its hash is saved.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(initAPIKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	fmt.Println()
	fmt.Println("Creating configuration...")

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Printf("  Warning: Could not create data directory: %v\n", err)
	}

	if err := os.WriteFile(initOutput, []byte(generateConfig(string(hash))), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("  Configuration saved to: %s\n", initOutput)
	fmt.Println()
	printNextSteps()

	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig(apiKeyHash string) string {
	var workspaces strings.Builder
	for _, ws := range initWorkspaces {
		fmt.Fprintf(&workspaces, "  - %q\n", ws)
	}

	platformKey := `  # api_key is read from PHISHDASH_PLATFORM_API_KEY when unset`
	if initPlatformKey != "" {
		platformKey = fmt.Sprintf(`  api_key: %q`, initPlatformKey)
	}

	return fmt.Sprintf(`# Phishdash configuration
platform:
  base_url: %q
%s
  timeout: 30s

workspaces:
%s
poll:
  interval: 20s

api:
  listen_addr: ":8080"
  api_key_hash: %q
  # allowed_ips:
  #   - "10.0.0.0/8"

storage:
  path: %q

# rate_limit:
#   enabled: true
#   per_workspace:
#     per_minute: 2
#   per_client:
#     per_hour: 60

metrics:
  enabled: %t
  listen_addr: ":9090"
  path: "/metrics"
  allowed_ips:
    - "127.0.0.1"

# report:
#   smtp_addr: "smtp.example.com:587"
#   username: "phishdash"
#   from: "Phishdash <phishdash@example.com>"
#   to:
#     - "soc@example.com"

logging:
  level: "info"
  format: "json"
`, initPlatformURL, platformKey, workspaces.String(), apiKeyHash,
		filepath.Join(initDataDir, "phishdash.db"), initMetrics)
}

func printNextSteps() {
	fmt.Println("Next steps:")
	fmt.Printf("  1. Validate: phishdash config validate -c %s\n", initOutput)
	fmt.Printf("  2. Check platform access: phishdash check -c %s\n", initOutput)
	fmt.Printf("  3. Start: phishdash serve -c %s\n", initOutput)
}
