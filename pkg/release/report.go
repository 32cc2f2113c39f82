package release

import (
	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/bump"
)

// Status is the result of one downstream action.
type Status string

// Action statuses.
const (
	// StatusCreated means the tag or pull request was created.
	StatusCreated Status = "created"
	// StatusWritten means the pending release record was written.
	StatusWritten Status = "written"
	// StatusExists means the tag already existed.
	StatusExists Status = "exists"
	// StatusSkipped means an open pull request was already present, or the
	// package has no deploy branch.
	StatusSkipped Status = "skipped"
	// StatusPlanned means the action would run but dry-run is enabled.
	StatusPlanned Status = "planned"
	// StatusFailed means the action failed; the run continues.
	StatusFailed Status = "failed"
)

// Outcome is the result of the action taken for one package.
type Outcome struct {
	// Package is the package name. Empty for run-level actions such as an
	// empty pending release record.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
	// Target is the tag name, branch pair or file path the action touched.
	Target string `json:"target" yaml:"target"`
	Status Status `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Failed reports whether the action failed.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Warns reports whether the outcome belongs in the report warnings: failures,
// and skips that carry a reason.
func (o Outcome) Warns() bool {
	return o.Failed() || (o.Status == StatusSkipped && o.Detail != "")
}

// Warning is a recoverable per-item or per-action problem.
type Warning struct {
	// Subject is the changed path or package the warning is about.
	Subject string `json:"subject" yaml:"subject"`
	Message string `json:"message" yaml:"message"`
}

// Report is the run output.
type Report struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	// Bump is the classified intent. None when the strategy does not classify.
	Bump bump.Kind `json:"bump" yaml:"bump"`
	// Skipped is true when classification short-circuited the run.
	Skipped  bool               `json:"skipped" yaml:"skipped"`
	Packages []affected.Package `json:"packages" yaml:"packages"`
	Outcomes []Outcome          `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Warnings []Warning          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Count returns how many outcomes have status.
func (r *Report) Count(status Status) int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}

	return n
}
