package iplist

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// ErrListTooShort is returned by CheckMinLength.
var ErrListTooShort = errors.New("ip list is shorter than the configured minimum")

// List is a sorted, deduplicated set of canonical CIDR strings.
type List []string

// NewList trims, canonicalizes, deduplicates and sorts entries. Blank entries
// are dropped. Host bits are cleared, so 10.0.0.5/24 and 10.0.0.0/24 collapse
// into one 10.0.0.0/24 entry.
func NewList(entries []string) List {
	seen := make(map[string]struct{}, len(entries))
	out := make(List, 0, len(entries))
	for _, e := range entries {
		e = canonical(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether cidr is in the list.
func (l List) Contains(cidr string) bool {
	i := sort.SearchStrings(l, cidr)
	return i < len(l) && l[i] == cidr
}

// canonical returns cidr with its host bits cleared, the form providers store
// and report back. Entries that do not parse are returned unchanged.
func canonical(cidr string) string {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return cidr
	}
	return p.Masked().String()
}

// CheckMinLength rejects lists shorter than min. A list that short usually
// means the upstream source is broken; applying it would revoke access that
// is still wanted.
func CheckMinLength(l List, min int) error {
	if len(l) < min {
		return fmt.Errorf("%w: got %d entries, need at least %d", ErrListTooShort, len(l), min)
	}
	return nil
}
