package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/config"
)

func newAuthCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a Google account",
		Long: `Authorize the Google account used by the Gmail source and sender.

  1. Run "inboxagent auth url" and open the printed URL.
  2. Grant access and copy the authorization code.
  3. Run "inboxagent auth save --code <code>".

The token is stored per account (GOOGLE_ACCOUNT) and refreshed automatically.`,
	}

	cmd.AddCommand(newAuthURLCmd(flags))
	cmd.AddCommand(newAuthSaveCmd(flags))

	return cmd
}

// loadGoogleConfig loads the configuration with the Gmail source selected, so
// validation covers the Google credentials.
func (f *globalFlags) loadGoogleConfig() (config.Config, error) {
	return f.loadConfig(func(c *config.Config) {
		c.Source.Type = config.SourceGmail
	})
}

func newAuthURLCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the Google consent URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadGoogleConfig()
			if err != nil {
				return err
			}
			return printAuthURL(cmd.OutOrStdout(), cfg)
		},
	}
}

func printAuthURL(w io.Writer, cfg config.Config) error {
	if cfg.Google.HasToken() {
		fmt.Fprintf(w, "A token already exists at %s; saving a new one replaces it.\n\n", cfg.Google.TokenPath())
	}
	fmt.Fprintf(w, "Open this URL in your browser and grant access:\n\n%s\n", cfg.Google.AuthURL(uuid.NewString()))
	return nil
}

func newAuthSaveCmd(flags *globalFlags) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Exchange an authorization code and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("--code is required")
			}
			cfg, err := flags.loadGoogleConfig()
			if err != nil {
				return err
			}
			if err := cfg.Google.SaveToken(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.Google.TokenPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the consent page")

	return cmd
}
