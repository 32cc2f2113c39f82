// Package release drives the per-package downstream actions of a run: writing
// a pending release record, creating tags, or opening deployment pull requests.
//
// Every mutating action is preceded by an existence check. The check is
// advisory; two concurrent runs can both pass it, and the remote side's
// uniqueness enforcement decides the winner.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/bump"
)

const tracerName = "monorel/release"

// Sentinel errors for systemic failures.
var (
	// ErrIntent is returned when the intent text cannot be obtained.
	ErrIntent = errors.New("obtain change intent")
	// ErrAffected is returned when the affected set cannot be computed.
	ErrAffected = errors.New("compute affected packages")
	// ErrNoIntentSource is returned when classification is required but no source is set.
	ErrNoIntentSource = errors.New("intent source required for classification")
)

// Plan is the input handed to a strategy.
type Plan struct {
	Summary  string
	Bump     bump.Kind
	Packages []affected.Package
}

// Strategy performs one kind of downstream action for every package of a plan.
type Strategy interface {
	// Name identifies the strategy in reports and metrics.
	Name() string
	// RequiresBump reports whether a none classification skips the run.
	RequiresBump() bool
	// Apply performs the actions. Per-package failures are returned as
	// failed outcomes; an error aborts the run.
	Apply(ctx context.Context, plan Plan) ([]Outcome, error)
}

// IntentSource yields the text classified into a bump kind.
type IntentSource interface {
	Intent(ctx context.Context) (string, error)
}

// AffectedFunc computes the affected set. It is called at most once per run
// and not at all when classification short-circuits.
type AffectedFunc func(ctx context.Context) (*affected.Result, error)

// Metrics receives run measurements.
type Metrics interface {
	RecordAffected(ctx context.Context, strategy string, count int)
	RecordAction(ctx context.Context, strategy string, status Status)
	RecordRun(ctx context.Context, strategy string, duration time.Duration)
}

// Options configures an Orchestrator.
type Options struct {
	// RequireBump skips the run on a none classification even when the
	// strategy itself does not require a bump.
	RequireBump bool
	Logger      *slog.Logger
	Metrics     Metrics
}

// Orchestrator runs exactly one strategy over the affected set.
type Orchestrator struct {
	strategy Strategy
	intent   IntentSource
	affected AffectedFunc
	opts     Options
}

// NewOrchestrator creates an Orchestrator. intent may be nil when neither the
// strategy nor the options require classification.
func NewOrchestrator(strategy Strategy, intent IntentSource, affectedFn AffectedFunc, opts Options) *Orchestrator {
	return &Orchestrator{strategy: strategy, intent: intent, affected: affectedFn, opts: opts}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.opts.Logger != nil {
		return o.opts.Logger
	}

	return slog.Default()
}

func (o *Orchestrator) gated() bool {
	return o.strategy.RequiresBump() || o.opts.RequireBump
}

// Run classifies the intent, computes the affected set and applies the strategy.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	name := o.strategy.Name()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "monorel.release.run",
		trace.WithAttributes(attribute.String("release.strategy", name)))
	defer span.End()

	start := time.Now()

	report, err := o.run(ctx)

	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(ctx, name, time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(
		attribute.String("release.bump", report.Bump.String()),
		attribute.Bool("release.skipped", report.Skipped),
		attribute.Int("release.packages", len(report.Packages)),
	)

	return report, nil
}

func (o *Orchestrator) run(ctx context.Context) (*Report, error) {
	name := o.strategy.Name()
	report := &Report{Strategy: name, Packages: []affected.Package{}}

	var summary string

	if o.intent != nil {
		text, err := o.intent.Intent(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIntent, err)
		}

		summary = text
		report.Bump = bump.Classify(text)
	} else if o.gated() {
		return nil, ErrNoIntentSource
	}

	if o.gated() && !report.Bump.Releases() {
		o.logger().InfoContext(ctx, "release: no release intent, skipping", "strategy", name)

		report.Skipped = true

		return report, nil
	}

	result, err := o.affected(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAffected, err)
	}

	report.Packages = append(report.Packages, result.Packages...)

	for _, w := range result.Warnings {
		report.Warnings = append(report.Warnings, Warning{Subject: w.Path, Message: w.Message})
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordAffected(ctx, name, len(result.Packages))
	}

	o.logger().InfoContext(ctx, "release: affected set computed",
		"strategy", name, "bump", report.Bump, "packages", len(result.Packages))

	outcomes, err := o.strategy.Apply(ctx, Plan{Summary: summary, Bump: report.Bump, Packages: result.Packages})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	report.Outcomes = outcomes

	for _, out := range outcomes {
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordAction(ctx, name, out.Status)
		}

		if out.Warns() {
			report.Warnings = append(report.Warnings, Warning{Subject: out.Package, Message: out.Detail})
		}
	}

	return report, nil
}

// eachPackage runs fn for every package with at most workers in flight and
// returns the outcomes in package order. Only context cancellation is an error.
func eachPackage(
	ctx context.Context, workers int, pkgs []affected.Package,
	fn func(ctx context.Context, pkg affected.Package) Outcome,
) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	outcomes := make([]Outcome, len(pkgs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, pkg := range pkgs {
		group.Go(func() error {
			ctxErr := groupCtx.Err()
			if ctxErr != nil {
				return ctxErr
			}

			outcomes[i] = fn(groupCtx, pkg)

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

func failed(pkg, target string, err error) Outcome {
	return Outcome{Package: pkg, Target: target, Status: StatusFailed, Detail: err.Error()}
}
