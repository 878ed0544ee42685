package main

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/specsync/specsync/internal/pipeline"
	"github.com/specsync/specsync/pkg/authscript"
	"github.com/specsync/specsync/pkg/credentials"
)

const envPrefix = "SPECSYNC"

// loadConfig wires the configuration sources: a local .env file (lowest
// effort for developers), an optional YAML config under the XDG config dir,
// and SPECSYNC_* environment variables. Flags override everything.
func loadConfig() *viper.Viper {
	// A missing .env is fine; it only exists in developer checkouts.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, "specsync"))
	_ = v.ReadInConfig()

	return v
}

func newSyncCmd() *cobra.Command {
	var (
		specPath   string
		exportDir  string
		noExport   bool
		forceSync  bool
		openAfter  bool
		verifyAuth bool
		apiKey     string
		workspace  string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync an OpenAPI spec into the catalog",
		Example: `  specsync sync --spec resources/payment-refund-api-openapi.yaml
  specsync sync --spec spec.yaml --export ./exports --sync
  SPECSYNC_WORKSPACE=abc123 specsync sync --spec spec.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := loadConfig()

			if specPath == "" {
				specPath = v.GetString("spec")
			}
			if specPath == "" {
				return fmt.Errorf("no spec file provided: use --spec or set %s_SPEC", envPrefix)
			}

			key, source, err := credentials.Resolve(apiKey, envPrefix+"_API_KEY", "POSTMAN_API_KEY")
			if err != nil {
				return fmt.Errorf("no API key configured: set %s_API_KEY or run 'specsync auth login'", envPrefix)
			}
			pterm.Debug.Printf("API key resolved from %s\n", source)

			if workspace == "" {
				workspace = v.GetString("workspace")
			}
			if baseURL == "" {
				baseURL = v.GetString("base_url")
			}

			verbose, _ := cmd.Flags().GetBool("verbose")

			result, err := pipeline.Run(cmd.Context(), pipeline.Options{
				SpecPath:    specPath,
				APIKey:      key,
				WorkspaceID: workspace,
				BaseURL:     baseURL,
				ForceSync:   forceSync,
				ExportDir:   exportDir,
				Export:      !noExport,
				VerifyAuth:  verifyAuth,
				VerifyCredentials: authscript.Credentials{
					ClientID:     v.GetString("client_id"),
					ClientSecret: v.GetString("client_secret"),
					TokenURL:     v.GetString("token_url"),
				},
				Verbose: verbose,
			})
			if err != nil {
				return err
			}

			printSummary(result, exportDir, noExport)

			if openAfter {
				if err := open.Run(result.WorkspaceURL()); err != nil {
					pterm.Warning.Printf("Could not open browser: %v\n", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "", "Path to OpenAPI spec file (YAML or JSON)")
	cmd.Flags().StringVar(&exportDir, "export", "./exports", "Export collection and environments to directory")
	cmd.Flags().BoolVar(&noExport, "no-export", false, "Skip exporting collection and environments")
	cmd.Flags().BoolVar(&forceSync, "sync", false, "Force regeneration of the linked collection")
	cmd.Flags().BoolVar(&openAfter, "open", false, "Open the workspace in the browser afterwards")
	cmd.Flags().BoolVar(&verifyAuth, "verify-auth", false, "Probe the token endpoint before installing the auth script")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Catalog API key (overrides env and keyring)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Target workspace ID (created when absent)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Catalog API base URL")

	return cmd
}

func printSummary(result *pipeline.Result, exportDir string, noExport bool) {
	pterm.Println()
	pterm.Success.Println("Complete!")
	pterm.Info.Printf("   Workspace:  %s\n", result.WorkspaceURL())
	pterm.Info.Printf("   Spec:       https://www.postman.com/specs/%s\n", result.Spec.ID)
	pterm.Info.Printf("   Collection: https://www.postman.com/collection/%s\n", result.Collection.ID)

	if !noExport && len(result.ExportedFiles) > 0 {
		pterm.Println()
		pterm.Info.Println("Run tests with Newman:")
		pterm.Info.Printf("   newman run %s \\\n", result.ExportedFiles[0])
		pterm.Info.Printf("       -e %s \\\n", filepath.Join(exportDir, "env-dev.json"))
		pterm.Info.Println("       --reporters cli,junit")
	}
}
