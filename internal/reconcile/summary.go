package reconcile

import (
	"fmt"

	"github.com/imamik/sgsync/internal/secgroup"
)

// Summary counts what a reconciliation did to one group.
type Summary struct {
	Target    secgroup.Target
	Added     int
	Removed   int
	Unchanged int
	DryRun    int
	Failed    int

	// Interrupted is set when shutdown stopped the pass before every planned
	// change was attempted.
	Interrupted bool
}

// Converged reports whether every planned change was applied.
func (s Summary) Converged() bool {
	return s.Failed == 0 && s.DryRun == 0 && !s.Interrupted
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d added, %d removed, %d unchanged, %d dry-run, %d failed",
		s.Target, s.Added, s.Removed, s.Unchanged, s.DryRun, s.Failed)
}
