package reconcile

import (
	"sort"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/secgroup"
)

// Plan is the set of changes that makes one group match the desired list.
type Plan struct {
	// Revoke holds every current rule whose CIDR is not desired, whatever its
	// protocol or ports.
	Revoke []secgroup.IngressRule
	// Authorize holds desired CIDRs with no rule on the group.
	Authorize []string
	// Unchanged holds desired CIDRs that already have at least one rule.
	Unchanged []string
}

// NewPlan diffs desired against current. CIDRs are compared as exact strings,
// so desired must come from iplist.NewList.
func NewPlan(desired iplist.List, current []secgroup.IngressRule) Plan {
	var p Plan
	kept := make(map[string]struct{})
	for _, rule := range current {
		if desired.Contains(rule.CIDR) {
			kept[rule.CIDR] = struct{}{}
			continue
		}
		p.Revoke = append(p.Revoke, rule)
	}

	for _, cidr := range desired {
		if _, ok := kept[cidr]; ok {
			p.Unchanged = append(p.Unchanged, cidr)
			continue
		}
		p.Authorize = append(p.Authorize, cidr)
	}

	sort.SliceStable(p.Revoke, func(i, j int) bool { return p.Revoke[i].CIDR < p.Revoke[j].CIDR })
	return p
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Revoke) == 0 && len(p.Authorize) == 0
}
