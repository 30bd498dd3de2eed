package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"repolens/internal/api"
	"repolens/internal/config"
	"repolens/internal/tui"
)

func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:   "repolens",
		Short: "Repository analytics from the terminal",
		Long: `repolens signs in to a repository analytics service, imports one GitHub
repository for analysis and shows its contributors, timeline, pull requests,
issues and exports.

Run without a subcommand to open the interactive dashboard.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.New()
			}
			if err != nil {
				return err
			}
			return a.init(cfg, debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(cmd.Context(), tui.Deps{
				Session:    a.session,
				Tracker:    a.tracker,
				Picker:     a.newPicker(),
				Poller:     a.newPoller,
				Insights:   a.client,
				ExportsDir: a.cfg.Exports.Dir,
				Logger:     a.logger.Named("tui"),
			})
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $REPOLENS_CONFIG or <config dir>/repolens/config.yaml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newTokenCmd(a),
		newCandidatesCmd(a),
		newReposCmd(a),
		newContributorsCmd(a),
		newTimelineCmd(a),
		newPRsCmd(a),
		newIssuesCmd(a),
		newSummaryCmd(a),
		newStatsCmd(a),
		newBranchesCmd(a),
		newExportsCmd(a),
	)
	return root
}

// Execute runs the command line. A credential the server rejects is
// cleared before the error is returned.
func Execute(ctx context.Context) error {
	a := &app{}
	defer a.close()
	return run(ctx, a, newRootCmd(a))
}

func run(ctx context.Context, a *app, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrAuth) && a.session != nil {
		a.session.Expire()
		return fmt.Errorf("%w; sign in again with `repolens login`", err)
	}
	return err
}

// userError carries the message shown to the user while keeping the API
// error reachable through errors.Is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

// explain replaces an API error's text with its best field message.
func explain(err error, fields ...string) error {
	if err == nil {
		return nil
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return &userError{msg: apiErr.FieldMessage(fields...), err: err}
}
