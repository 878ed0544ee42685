package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/specsync/specsync/pkg/authscript"
	"github.com/specsync/specsync/pkg/credentials"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage catalog and token-endpoint credentials",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthVerifyCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the catalog API key in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := apiKey
			if key == "" {
				entered, err := pterm.DefaultInteractiveTextInput.
					WithMask("*").
					Show("Catalog API key")
				if err != nil {
					return fmt.Errorf("failed to read API key: %w", err)
				}
				key = entered
			}
			if err := credentials.Save(key); err != nil {
				return err
			}
			pterm.Success.Println("API key stored in keyring")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to store (prompted when omitted)")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the catalog API key from the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.Delete(); err != nil {
				return err
			}
			pterm.Success.Println("API key removed from keyring")
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the catalog API key resolves from",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, source, err := credentials.Resolve("", envPrefix+"_API_KEY", "POSTMAN_API_KEY")
			if err != nil {
				pterm.Warning.Println("No API key configured")
				return nil
			}
			pterm.Success.Printf("API key available (source: %s)\n", source)
			return nil
		},
	}
}

func newAuthVerifyCmd() *cobra.Command {
	var creds authscript.Credentials

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a client-credentials exchange against the token endpoint",
		Long: `Performs the same token exchange the generated pre-request script
performs, so credential problems surface before the first collection run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := loadConfig()
			if creds.ClientID == "" {
				creds.ClientID = v.GetString("client_id")
			}
			if creds.ClientSecret == "" {
				creds.ClientSecret = v.GetString("client_secret")
			}
			if creds.TokenURL == "" {
				creds.TokenURL = v.GetString("token_url")
			}

			result, err := authscript.Verify(cmd.Context(), creds)
			if err != nil {
				return err
			}
			pterm.Success.Println("Token exchange succeeded")
			if !result.ExpiresAt.IsZero() {
				pterm.Info.Printf("   Token lifetime: %s (expires %s)\n",
					result.Lifetime.Round(time.Second),
					result.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.ClientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&creds.ClientSecret, "client-secret", "", "OAuth2 client secret")
	cmd.Flags().StringVar(&creds.TokenURL, "token-url", "", "OAuth2 token endpoint")

	return cmd
}
