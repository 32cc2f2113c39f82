package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// DeployCommand opens deployment pull requests for the affected packages.
type DeployCommand struct {
	globals *GlobalFlags
	deps    deps
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(globals *GlobalFlags) *cobra.Command {
	return newDeployCommandWithDeps(globals, defaultDeps())
}

func newDeployCommandWithDeps(globals *GlobalFlags, d deps) *cobra.Command {
	dc := &DeployCommand{globals: globals, deps: d}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Open deployment pull requests for the affected packages",
		Long: `Open one pull request per affected package from the head branch into
"{environment}/{package directory}". A package that already has an open
pull request between the same branches is skipped.

The head branch is --ref with refs/heads/ removed (GITHUB_REF inside a
workflow). Requires a hosted repository token.`,
		Args: cobra.NoArgs,
		RunE: dc.run,
	}

	addDiffFlags(cmd.Flags())
	cmd.Flags().String("environment", "", "deployment environment, the base branch prefix")
	cmd.Flags().String("ref", "", "triggering ref or head branch")
	cmd.Flags().String("repository", "", "hosted repository as owner/name")
	cmd.Flags().Bool("dry-run", false, "check open pull requests and report without opening")

	return cmd
}

func (dc *DeployCommand) run(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cmd, dc.globals, dc.deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	client, err := sess.hostedClient()
	if err != nil {
		return err
	}

	strategy := &release.PullRequestStrategy{
		Client:      client,
		Head:        release.HeadBranch(sess.cfg.Deploy.Ref),
		Environment: sess.cfg.Deploy.Environment,
		DryRun:      sess.cfg.DryRun,
		Workers:     sess.cfg.Packages.Workers,
		Logger:      sess.logger,
	}

	return sess.runStrategy(cmd, strategy, false)
}
