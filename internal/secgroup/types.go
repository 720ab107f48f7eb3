package secgroup

import (
	"fmt"
	"strings"
)

// ProtocolAll is the protocol value meaning "all protocols and ports".
const ProtocolAll = "-1"

// ProviderAWS and ProviderHCloud identify the firewall backend of a Target.
const (
	ProviderAWS    = "aws"
	ProviderHCloud = "hcloud"
)

// Target identifies one firewall policy to reconcile.
type Target struct {
	Provider string
	Region   string
	GroupID  string
}

// String returns the target in its configuration form, region:group-id.
func (t Target) String() string {
	return t.Region + ":" + t.GroupID
}

// ParseTarget parses a "region:group-id" target. The pseudo region
// "hcloud" selects a Hetzner Cloud firewall, identified by name or ID.
func ParseTarget(spec string) (Target, error) {
	region, groupID, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || region == "" || groupID == "" || strings.Contains(groupID, ":") {
		return Target{}, fmt.Errorf("invalid target %q: expected region:group-id", spec)
	}
	provider := ProviderAWS
	if region == ProviderHCloud {
		provider = ProviderHCloud
	}
	return Target{Provider: provider, Region: region, GroupID: groupID}, nil
}

// ParseTargets parses a whitespace-separated list of targets.
// Duplicate targets are collapsed, keeping the first occurrence.
func ParseTargets(specs string) ([]Target, error) {
	fields := strings.Fields(specs)
	targets := make([]Target, 0, len(fields))
	seen := make(map[Target]bool, len(fields))
	for _, f := range fields {
		t, err := ParseTarget(f)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}
	return targets, nil
}

// IngressRule is one CIDR currently authorized on a group.
// FromPort and ToPort are only meaningful when Protocol is not ProtocolAll.
type IngressRule struct {
	CIDR        string
	Protocol    string
	FromPort    int32
	ToPort      int32
	Description string
	GroupID     string
	Region      string
}

// AllProtocols reports whether the rule allows all protocols and ports.
func (r IngressRule) AllProtocols() bool {
	return r.Protocol == ProtocolAll
}

func (r IngressRule) String() string {
	if r.AllProtocols() {
		return r.CIDR + " (all)"
	}
	return fmt.Sprintf("%s (%s %d-%d)", r.CIDR, r.Protocol, r.FromPort, r.ToPort)
}

// GroupMetadata is what a provider reports about an existing group.
type GroupMetadata struct {
	ID   string
	Name string
}
