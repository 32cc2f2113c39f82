package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// StrategyAffected names the report of the affected command.
const StrategyAffected = "affected"

// AffectedCommand prints the affected package set without acting on it.
type AffectedCommand struct {
	globals *GlobalFlags
	deps    deps
}

// NewAffectedCommand creates the affected command.
func NewAffectedCommand(globals *GlobalFlags) *cobra.Command {
	return newAffectedCommandWithDeps(globals, defaultDeps())
}

func newAffectedCommandWithDeps(globals *GlobalFlags, d deps) *cobra.Command {
	ac := &AffectedCommand{globals: globals, deps: d}

	cmd := &cobra.Command{
		Use:   "affected",
		Short: "List the packages touched by a change",
		Long: `List the packages owning the changed paths.

Changed paths come from the diff between --base and --head, or from --paths.
Each path is attributed to the nearest directory above it holding a manifest.

Examples:
  monorel affected --base origin/main
  monorel affected --paths pkgs/a/index.ts,pkgs/b/src/x.ts --format json`,
		Args: cobra.NoArgs,
		RunE: ac.run,
	}

	addDiffFlags(cmd.Flags())

	return cmd
}

func (ac *AffectedCommand) run(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cmd, ac.globals, ac.deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	affectedFn, err := sess.affectedFunc()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	result, err := affectedFn(ctx)
	if err != nil {
		sess.logger.ErrorContext(ctx, "monorel: affected set failed", "error", err)

		return err
	}

	sess.metrics.RecordAffected(ctx, StrategyAffected, len(result.Packages))

	rep := &release.Report{Strategy: StrategyAffected, Packages: append([]affected.Package{}, result.Packages...)}
	for _, w := range result.Warnings {
		rep.Warnings = append(rep.Warnings, release.Warning{Subject: w.Path, Message: w.Message})
	}

	return sess.emit(cmd, rep)
}
