// Package cli provides command-line interface commands for the portwarden
// port monitor. This file implements API key management commands backed
// directly by the database.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/auth"
	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/store"
)

var (
	apiKeyName      string
	apiKeyExpiresIn string
	apiKeyOutput    string
)

// apiKeysCmd represents the apikeys command group.
var apiKeysCmd = &cobra.Command{
	Use:     "apikeys",
	Aliases: []string{"apikey", "keys"},
	Short:   "Manage API keys for client authentication",
	Long: `Manage API keys for authenticating clients against the portwarden
API server. Keys are stored hashed in the database; the plaintext key is
shown only once, at generation time.

To use a key with CLI commands, set the PORTWARDEN_API_KEY environment
variable.`,
	Example: `  portwarden apikeys generate --name "Dashboard"
  portwarden apikeys generate --name "CI" --expires-in 30d
  portwarden apikeys list
  portwarden apikeys revoke 12345678-1234-1234-1234-123456789012`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// apiKeysGenerateCmd creates a new API key.
var apiKeysGenerateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"create", "gen"},
	Short:   "Generate a new API key",
	Long: `Generate a new API key. The key is displayed once and cannot be
recovered afterwards; store it securely.`,
	Example: `  portwarden apikeys generate --name "Production Dashboard"
  portwarden apikeys generate --name "Testing" --expires-in 7d`,
	Run: runAPIKeysGenerate,
}

// apiKeysListCmd lists stored API keys.
var apiKeysListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List API keys",
	Run:     runAPIKeysList,
}

// apiKeysRevokeCmd revokes an API key.
var apiKeysRevokeCmd = &cobra.Command{
	Use:     "revoke <key-id>",
	Aliases: []string{"delete", "rm"},
	Short:   "Revoke an API key",
	Long: `Revoke an API key by its ID, making it unusable for authentication.
Revoked keys stay in the database for audit purposes. This action cannot
be undone.`,
	Args: cobra.ExactArgs(1),
	Run:  runAPIKeysRevoke,
}

func init() {
	rootCmd.AddCommand(apiKeysCmd)
	apiKeysCmd.AddCommand(apiKeysGenerateCmd)
	apiKeysCmd.AddCommand(apiKeysListCmd)
	apiKeysCmd.AddCommand(apiKeysRevokeCmd)

	apiKeysGenerateCmd.Flags().StringVar(&apiKeyName, "name", "", "descriptive name for the key (required)")
	apiKeysGenerateCmd.Flags().StringVar(&apiKeyExpiresIn, "expires-in", "", "expiration, e.g. 30d, 12h (default: never)")
	_ = apiKeysGenerateCmd.MarkFlagRequired("name")

	apiKeysListCmd.Flags().StringVar(&apiKeyOutput, "output", "table", "output format: table or json")
}

// connectKeyStore opens the database and wraps it in a key store.
func connectKeyStore(ctx context.Context) (*auth.KeyStore, *store.Store, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return nil, nil, fmt.Errorf("API key management requires the database; enable it in the configuration")
	}

	dbConfig := cfg.GetDatabaseConfig()
	st, err := store.Connect(ctx, &dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to database: %w", err)
	}

	keys, err := auth.NewKeyStore(ctx, st.DB())
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("error initializing key store: %w", err)
	}

	return keys, st, nil
}

// parseExpiration parses duration strings like "30d", "12h", "7d".
func parseExpiration(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	var d time.Duration
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return nil, fmt.Errorf("invalid days format: %s", s)
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %s", s)
		}
	}

	if d <= 0 {
		return nil, fmt.Errorf("expiration must be in the future")
	}
	expires := time.Now().UTC().Add(d)
	return &expires, nil
}

func runAPIKeysGenerate(_ *cobra.Command, _ []string) {
	expiresAt, err := parseExpiration(apiKeyExpiresIn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	keys, st, err := connectKeyStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	generated, err := keys.Create(ctx, apiKeyName, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("API key created successfully.")
	fmt.Println()
	fmt.Printf("  Name: %s\n", generated.KeyInfo.Name)
	fmt.Printf("  ID:   %s\n", generated.KeyInfo.ID)
	fmt.Printf("  Key:  %s\n", generated.Key)
	if generated.KeyInfo.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", generated.KeyInfo.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("This key will not be shown again. To use it with the CLI:")
	fmt.Printf("  export PORTWARDEN_API_KEY=%s\n", generated.Key)
}

func runAPIKeysList(_ *cobra.Command, _ []string) {
	ctx := context.Background()
	keys, st, err := connectKeyStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	infos, err := keys.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing API keys: %v\n", err)
		os.Exit(1)
	}

	if apiKeyOutput == "json" {
		printJSON(struct {
			APIKeys []auth.KeyInfo `json:"api_keys"`
			Count   int            `json:"count"`
		}{APIKeys: infos, Count: len(infos)})
		return
	}

	if len(infos) == 0 {
		fmt.Println("No API keys found.")
		fmt.Println("Create one with 'portwarden apikeys generate --name <name>'.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Prefix", "Status", "Created", "Last Used", "Expires")

	for i := range infos {
		key := &infos[i]

		status := "Active"
		if !key.IsActive {
			status = "Revoked"
		} else if key.IsExpired() {
			status = "Expired"
		}

		lastUsed := "Never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format("2006-01-02 15:04")
		}
		expires := "Never"
		if key.ExpiresAt != nil {
			expires = key.ExpiresAt.Format("2006-01-02 15:04")
		}

		displayID := key.ID
		if len(key.ID) > 8 {
			displayID = key.ID[:8] + "..."
		}

		_ = table.Append([]string{
			displayID,
			key.Name,
			key.KeyPrefix,
			status,
			key.CreatedAt.Format("2006-01-02 15:04"),
			lastUsed,
			expires,
		})
	}

	_ = table.Render()
}

func runAPIKeysRevoke(_ *cobra.Command, args []string) {
	ctx := context.Background()
	keys, st, err := connectKeyStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	if err := keys.Revoke(ctx, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error revoking API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key %s revoked.\n", args[0])
}
