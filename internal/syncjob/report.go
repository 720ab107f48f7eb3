package syncjob

import (
	"time"

	"github.com/imamik/sgsync/internal/metrics"
	"github.com/imamik/sgsync/internal/reconcile"
	"github.com/imamik/sgsync/internal/secgroup"
)

// TargetReport is the outcome of one target within a pass.
type TargetReport struct {
	Target  secgroup.Target
	Summary reconcile.Summary

	// Started is false when shutdown came before the target was reached.
	Started bool
	// NotFound is set when the group does not exist and was skipped.
	NotFound bool
	Err      error
}

// OK reports whether every planned change on the target went through. In a
// dry run that means every change validated.
func (r TargetReport) OK() bool {
	return r.Started && !r.NotFound && r.Err == nil && r.Summary.Failed == 0 && !r.Summary.Interrupted
}

// Result maps the report to a metrics result label.
func (r TargetReport) Result() string {
	switch {
	case r.OK():
		return metrics.ResultSuccess
	case r.NotFound || !r.Started:
		return metrics.ResultSkipped
	case r.Summary.Interrupted:
		return metrics.ResultInterrupted
	default:
		return metrics.ResultPartial
	}
}

// PassReport is the outcome of one pass over all targets.
type PassReport struct {
	Started  time.Time
	Finished time.Time
	DryRun   bool
	Entries  int

	// Err is set when the pass was skipped before any target was touched,
	// either because the list could not be fetched or it was too short.
	Err         error
	Targets     []TargetReport
	Interrupted bool
}

// Duration is the wall time of the pass.
func (r PassReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Result maps the report to a metrics result label.
func (r PassReport) Result() string {
	if r.Err != nil {
		return metrics.ResultSkipped
	}
	if r.Interrupted {
		return metrics.ResultInterrupted
	}
	for _, t := range r.Targets {
		if !t.OK() {
			return metrics.ResultPartial
		}
	}
	return metrics.ResultSuccess
}
