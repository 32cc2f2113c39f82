package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monorel/pkg/changeset"
	"github.com/Sumatoshi-tech/monorel/pkg/config"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// ChangesetCommand records a pending release for the affected packages.
type ChangesetCommand struct {
	globals *GlobalFlags
	deps    deps
}

// NewChangesetCommand creates the changeset command.
func NewChangesetCommand(globals *GlobalFlags) *cobra.Command {
	return newChangesetCommandWithDeps(globals, defaultDeps())
}

func newChangesetCommandWithDeps(globals *GlobalFlags, d deps) *cobra.Command {
	cc := &ChangesetCommand{globals: globals, deps: d}

	cmd := &cobra.Command{
		Use:   "changeset",
		Short: "Record a pending release for the affected packages",
		Long: `Classify the release intent and, unless it is "none", write one
changeset file naming every affected package with the same bump kind.

The intent is --intent, or the message of --commit (GITHUB_SHA inside a
workflow), read through the hosted API when a token is configured and from
the local repository otherwise.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	addDiffFlags(cmd.Flags())
	cmd.Flags().String("dir", config.DefaultChangesetDir, "changesets directory relative to the repository root")
	cmd.Flags().String("intent", "", "release intent text, e.g. a pull request title")
	cmd.Flags().String("commit", "", "commit whose message is the release intent")
	cmd.Flags().Bool("dry-run", false, "classify and report without writing")

	return cmd
}

func (cc *ChangesetCommand) run(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cmd, cc.globals, cc.deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	dir, err := sess.underRoot(sess.cfg.Changeset.Dir)
	if err != nil {
		return err
	}

	strategy := &release.RecordStrategy{
		Writer: changeset.NewWriter(dir),
		DryRun: sess.cfg.DryRun,
		Logger: sess.logger,
	}

	return sess.runStrategy(cmd, strategy, false)
}
