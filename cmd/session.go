package cmd

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/habedi/tenantctl/auth"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// loginCmd creates a new cobra.Command for starting a session.
func loginCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to the API",
		Long:  "Login to the API with your email and password. The session is kept in the token backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = promptForInput(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			password, err := promptForPassword(cmd, in, "Password: ")
			if err != nil {
				return err
			}
			if !validateCredentials(email, password) {
				return clierr.New(clierr.Validation, "Email and password cannot be empty.", nil)
			}

			pair, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			cmd.Println("Login was successful.")
			if !pair.ExpiresAt.IsZero() {
				cmd.Printf("Session expires at %s\n", pair.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email to login with (prompted when empty)")

	return cmd
}

// validateCredentials checks that email and password are not empty.
func validateCredentials(email, password string) bool {
	return email != "" && password != ""
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

// whoamiCmd shows the claims of the current access token, refreshing it first when it is about to expire.
func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := a.client.Tokens().Get(); !ok {
				return clierr.New(clierr.Auth, "Not logged in. Use `tenantctl login` first.", nil)
			}
			if _, err := a.client.Coordinator().EnsureFresh(cmd.Context(), auth.DefaultRefreshSkew); err != nil {
				return err
			}
			pair, ok := a.client.Tokens().Get()
			if !ok {
				return clierr.New(clierr.Auth, "Not logged in. Use `tenantctl login` first.", nil)
			}

			cmd.Println("Access token:", auth.Redact(pair.AccessToken))
			if pair.ExpiresAt.IsZero() {
				cmd.Println("Expires: unknown")
			} else {
				cmd.Printf("Expires: %s (in %s)\n", pair.ExpiresAt.Local().Format(time.RFC1123),
					time.Until(pair.ExpiresAt).Round(time.Second))
			}

			claims, err := auth.ParseClaims(pair.AccessToken)
			if err != nil {
				log.Debug().Err(err).Msg("Access token carries no readable claims")
				return nil
			}
			keys := make([]string, 0, len(claims))
			for k := range claims {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			table := newTable(cmd.OutOrStdout(), []string{"Claim", "Value"})
			for _, k := range keys {
				table.Append([]string{k, claimValue(claims[k])})
			}
			table.Render()
			return nil
		},
	}
}

// claimValue formats a claim; JSON numbers decode as float64 and are printed without an exponent.
func claimValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
