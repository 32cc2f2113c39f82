package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monorel/pkg/config"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// TagCommand tags the current version of every affected package.
type TagCommand struct {
	globals *GlobalFlags
	deps    deps
}

// NewTagCommand creates the tag command.
func NewTagCommand(globals *GlobalFlags) *cobra.Command {
	return newTagCommandWithDeps(globals, defaultDeps())
}

func newTagCommandWithDeps(globals *GlobalFlags, d deps) *cobra.Command {
	tc := &TagCommand{globals: globals, deps: d}

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Tag the current version of each affected package",
		Long: `Create one tag per affected package from its manifest version.

Tag names are "{name}/{version}" (--tag-format slash) or "{name}v{version}"
(--tag-format v), where the name has the --scope prefix removed. Existing
tags are left alone, so reruns are safe.

Tags are created through the hosted API (--backend hosted) or as
refs/tags/* in the local repository (--backend local).`,
		Args: cobra.NoArgs,
		RunE: tc.run,
	}

	addDiffFlags(cmd.Flags())
	cmd.Flags().String("scope", "", "package scope stripped from tag names, e.g. acme for @acme/*")
	cmd.Flags().String("tag-format", config.DefaultTagFormat, "tag name format: slash or v")
	cmd.Flags().String("backend", config.DefaultTagBackend, "where tags are created: hosted or local")
	cmd.Flags().String("repository", "", "hosted repository as owner/name")
	cmd.Flags().String("target", "", "commit the tags point at (default: local HEAD)")
	cmd.Flags().Bool("require-bump", false, "skip tagging when the intent classifies as none")
	cmd.Flags().String("intent", "", "release intent text, used with --require-bump")
	cmd.Flags().String("commit", "", "commit whose message is the release intent")
	cmd.Flags().Bool("dry-run", false, "check existing tags and report without creating")

	return cmd
}

func (tc *TagCommand) run(cmd *cobra.Command, _ []string) error {
	sess, err := newSession(cmd, tc.globals, tc.deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	format, err := release.ParseTagFormat(sess.cfg.Tag.Format)
	if err != nil {
		return err
	}

	store, err := tc.store(sess)
	if err != nil {
		return err
	}

	target, err := tc.target(sess)
	if err != nil {
		return err
	}

	strategy := &release.TagStrategy{
		Store:   store,
		Namer:   release.TagNamer{Scope: sess.cfg.Tag.Scope, Format: format},
		Target:  target,
		DryRun:  sess.cfg.DryRun,
		Workers: sess.cfg.Packages.Workers,
		Logger:  sess.logger,
	}

	return sess.runStrategy(cmd, strategy, sess.cfg.Tag.RequireBump)
}

func (tc *TagCommand) store(sess *session) (release.TagStore, error) {
	if sess.cfg.Tag.Backend == config.TagBackendLocal {
		repo, err := sess.repository()
		if err != nil {
			return nil, err
		}

		return repo, nil
	}

	client, err := sess.hostedClient()
	if err != nil {
		return nil, err
	}

	return client, nil
}

func (tc *TagCommand) target(sess *session) (string, error) {
	if sess.cfg.Tag.Target != "" {
		return sess.cfg.Tag.Target, nil
	}

	repo, err := sess.repository()
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve tag target: %w", err)
	}

	return head.String(), nil
}
