package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repolens/internal/api"
	"repolens/internal/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.promptMissing(
				field{flag: "email", title: "Email", value: &email, required: true},
				field{flag: "password", title: "Password", value: &password, secret: true, required: true},
			); err != nil {
				return err
			}

			user, err := a.session.Login(cmd.Context(), email, password)
			if err != nil {
				return explain(err, session.AuthFields...)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var email, username, password, confirm string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.promptMissing(
				field{flag: "email", title: "Email", value: &email, required: true},
				field{flag: "username", title: "Username", value: &username, required: true},
				field{flag: "password", title: "Password", value: &password, secret: true, required: true},
				field{flag: "confirm-password", title: "Confirm password", value: &confirm, secret: true, required: true},
			); err != nil {
				return err
			}

			user, err := a.session.Signup(cmd.Context(), email, username, password, confirm)
			if err != nil {
				return explain(err, session.AuthFields...)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. You are signed in.\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm-password", "", "password again")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.requireAuth(cmd.Context())
			if err != nil {
				return explain(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Username:\t%s\n", user.Username)
			fmt.Fprintf(w, "Email:\t%s\n", user.Email)
			fmt.Fprintf(w, "GitHub:\t%s\n", dash(user.GitHubUsername))
			fmt.Fprintf(w, "GitHub token:\t%s\n", yesNo(user.HasGitHubToken))
			if !user.CreatedAt.IsZero() {
				fmt.Fprintf(w, "Member since:\t%s\n", user.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the account profile",
	}
	cmd.AddCommand(newProfileSetCmd(a))
	return cmd
}

func newProfileSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change username, GitHub username or GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd api.ProfileUpdate
			for name, dst := range map[string]**string{
				"username":        &upd.Username,
				"github-username": &upd.GitHubUsername,
				"github-token":    &upd.GitHubToken,
			} {
				if cmd.Flags().Changed(name) {
					v, _ := cmd.Flags().GetString(name)
					*dst = &v
				}
			}
			if upd.Username == nil && upd.GitHubUsername == nil && upd.GitHubToken == nil {
				return fmt.Errorf("nothing to change; pass --username, --github-username or --github-token")
			}

			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}
			user, err := a.session.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return explain(err, "username", "github_username", "github_token")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile updated for %s.\n", user.Username)
			return nil
		},
	}

	cmd.Flags().String("username", "", "new username")
	cmd.Flags().String("github-username", "", "GitHub username")
	cmd.Flags().String("github-token", "", "GitHub personal access token")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Check the GitHub personal access token",
	}

	validate := &cobra.Command{
		Use:   "validate [token]",
		Short: "Validate a GitHub token without saving it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			}
			if err := a.promptMissing(field{flag: "token", title: "GitHub token", value: &token, secret: true}); err != nil {
				return err
			}
			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}

			check, err := a.session.ValidateGitHubToken(cmd.Context(), token)
			if err != nil {
				return explain(err, "token")
			}
			if !check.Valid {
				return fmt.Errorf("token rejected: %s", dash(check.Message))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token is valid for GitHub user %s.\n", check.Username)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the account has a GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}
			st, err := a.session.GitHubTokenStatus(cmd.Context())
			if err != nil {
				return explain(err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Configured:\t%s\n", yesNo(st.HasToken))
			fmt.Fprintf(w, "GitHub user:\t%s\n", dash(st.GitHubUsername))
			if st.Message != "" {
				fmt.Fprintf(w, "Message:\t%s\n", st.Message)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(validate, status)
	return cmd
}
