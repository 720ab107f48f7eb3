package hcloud

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/secgroup"
	"github.com/imamik/sgsync/internal/util/ptr"
	"github.com/imamik/sgsync/internal/util/retry"
)

const (
	portAny = "any"

	// dryRunMessage matches the wording EC2 uses for dry-run calls.
	dryRunMessage = "Request would have succeeded, but DryRun flag is set."
)

// managedRules are the inbound rules an all-protocols grant expands to.
var managedRules = []struct {
	protocol hcloud.FirewallRuleProtocol
	port     *string
}{
	{hcloud.FirewallRuleProtocolTCP, ptr.String(portAny)},
	{hcloud.FirewallRuleProtocolUDP, ptr.String(portAny)},
	{hcloud.FirewallRuleProtocolICMP, nil},
}

// FirewallClient manages the inbound source IPs of one Hetzner firewall.
type FirewallClient struct {
	firewalls FirewallAPI
	actions   ActionWaiter
	target    secgroup.Target
	log       zerolog.Logger
	retryOpts []retry.Option

	// mu serializes read-modify-write cycles on the rule set.
	mu sync.Mutex
}

// Ensure FirewallClient implements secgroup.GroupClient.
var _ secgroup.GroupClient = (*FirewallClient)(nil)

// DescribeGroup checks that the firewall exists.
func (c *FirewallClient) DescribeGroup(ctx context.Context) (secgroup.GroupMetadata, error) {
	fw, err := c.get(ctx)
	if err != nil {
		return secgroup.GroupMetadata{}, err
	}
	return secgroup.GroupMetadata{ID: strconv.FormatInt(fw.ID, 10), Name: fw.Name}, nil
}

// ListIngressRules reports one rule per IPv4 source of every inbound rule.
func (c *FirewallClient) ListIngressRules(ctx context.Context) ([]secgroup.IngressRule, error) {
	fw, err := c.get(ctx)
	if err != nil {
		return nil, err
	}

	var rules []secgroup.IngressRule
	for _, fr := range fw.Rules {
		if fr.Direction != hcloud.FirewallRuleDirectionIn {
			continue
		}
		from, to := portRange(fr.Port)
		for _, src := range fr.SourceIPs {
			if src.IP.To4() == nil {
				continue
			}
			rules = append(rules, secgroup.IngressRule{
				CIDR:        src.String(),
				Protocol:    string(fr.Protocol),
				FromPort:    from,
				ToPort:      to,
				Description: ptr.Deref(fr.Description),
				GroupID:     c.target.GroupID,
				Region:      c.target.Region,
			})
		}
	}
	return rules, nil
}

// Revoke removes rule.CIDR from the inbound rules matching its protocol and
// ports. Rules left without sources are deleted.
func (c *FirewallClient) Revoke(ctx context.Context, rule secgroup.IngressRule, dryRun bool) secgroup.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	fw, err := c.get(ctx)
	if err != nil {
		return secgroup.APIError(fmt.Errorf("failed to revoke %s from %s: %w", rule, c.target, err))
	}

	found := false
	rules := make([]hcloud.FirewallRule, 0, len(fw.Rules))
	for _, fr := range fw.Rules {
		if fr.Direction == hcloud.FirewallRuleDirectionIn && string(fr.Protocol) == rule.Protocol && portsMatch(fr.Port, rule) {
			kept := slices.DeleteFunc(slices.Clone(fr.SourceIPs), func(n net.IPNet) bool {
				return n.String() == rule.CIDR
			})
			if len(kept) != len(fr.SourceIPs) {
				found = true
			}
			if len(kept) == 0 {
				continue
			}
			fr.SourceIPs = kept
		}
		rules = append(rules, fr)
	}
	if !found {
		return secgroup.APIError(fmt.Errorf("failed to revoke %s from %s: no matching inbound rule", rule, c.target))
	}
	if dryRun {
		return secgroup.DryRun(dryRunMessage)
	}

	if err := c.setRules(ctx, fw, rules); err != nil {
		return secgroup.APIError(fmt.Errorf("failed to revoke %s from %s: %w", rule, c.target, err))
	}
	return secgroup.OK()
}

// Authorize adds cidr to the TCP, UDP and ICMP rules carrying description,
// creating the rules that do not exist yet.
func (c *FirewallClient) Authorize(ctx context.Context, cidr, description string, dryRun bool) secgroup.Result {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return secgroup.APIError(fmt.Errorf("failed to authorize %s on %s: %w", cidr, c.target, err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fw, err := c.get(ctx)
	if err != nil {
		return secgroup.APIError(fmt.Errorf("failed to authorize %s on %s: %w", cidr, c.target, err))
	}

	rules := slices.Clone(fw.Rules)
	changed := false
	for _, m := range managedRules {
		if covered(rules, m.protocol, m.port, network.String()) {
			continue
		}
		changed = true

		idx := slices.IndexFunc(rules, func(fr hcloud.FirewallRule) bool {
			return fr.Direction == hcloud.FirewallRuleDirectionIn &&
				fr.Protocol == m.protocol &&
				ptr.Deref(fr.Port) == ptr.Deref(m.port) &&
				ptr.Deref(fr.Description) == description
		})
		if idx >= 0 {
			rules[idx].SourceIPs = append(slices.Clone(rules[idx].SourceIPs), *network)
			continue
		}
		rules = append(rules, hcloud.FirewallRule{
			Description: ptr.String(description),
			Direction:   hcloud.FirewallRuleDirectionIn,
			Protocol:    m.protocol,
			Port:        m.port,
			SourceIPs:   []net.IPNet{*network},
		})
	}
	if !changed {
		return secgroup.APIError(fmt.Errorf("failed to authorize %s on %s: the specified rule already exists", cidr, c.target))
	}
	if dryRun {
		return secgroup.DryRun(dryRunMessage)
	}

	if err := c.setRules(ctx, fw, rules); err != nil {
		return secgroup.APIError(fmt.Errorf("failed to authorize %s on %s: %w", cidr, c.target, err))
	}
	return secgroup.OK()
}

func (c *FirewallClient) get(ctx context.Context) (*hcloud.Firewall, error) {
	fw, _, err := c.firewalls.Get(ctx, c.target.GroupID)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w", c.target, secgroup.ErrGroupNotFound)
		}
		return nil, fmt.Errorf("failed to get firewall %s: %w", c.target, err)
	}
	if fw == nil {
		return nil, fmt.Errorf("%s: %w", c.target, secgroup.ErrGroupNotFound)
	}
	return fw, nil
}

// setRules replaces the firewall's rules and waits for the resulting actions.
func (c *FirewallClient) setRules(ctx context.Context, fw *hcloud.Firewall, rules []hcloud.FirewallRule) error {
	opts := append([]retry.Option{
		retry.WithOnRetry(func(attempt int, err error) {
			c.log.Warn().Err(err).Int("attempt", attempt).Bool("rate_limited", IsRateLimited(err)).
				Msg("Firewall busy, retrying set_rules")
		}),
	}, c.retryOpts...)

	return retry.Do(ctx, func(ctx context.Context) error {
		actions, _, err := c.firewalls.SetRules(ctx, fw, hcloud.FirewallSetRulesOpts{Rules: rules})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		if len(actions) == 0 {
			return nil
		}
		if err := c.actions.WaitFor(ctx, actions...); err != nil {
			return retry.Permanent(fmt.Errorf("failed to wait for set_rules: %w", err))
		}
		return nil
	}, opts...)
}

// covered reports whether an inbound rule for protocol and port already
// allows cidr.
func covered(rules []hcloud.FirewallRule, protocol hcloud.FirewallRuleProtocol, port *string, cidr string) bool {
	for _, fr := range rules {
		if fr.Direction != hcloud.FirewallRuleDirectionIn || fr.Protocol != protocol {
			continue
		}
		if ptr.Deref(fr.Port) != ptr.Deref(port) {
			continue
		}
		for _, src := range fr.SourceIPs {
			if src.String() == cidr {
				return true
			}
		}
	}
	return false
}

// portRange parses a Hetzner port value ("80", "80-85" or "any").
func portRange(port *string) (int32, int32) {
	p := ptr.Deref(port)
	switch p {
	case "":
		return 0, 0
	case portAny:
		return 1, 65535
	}
	lo, hi, _ := strings.Cut(p, "-")
	from, err := strconv.ParseInt(lo, 10, 32)
	if err != nil {
		return 0, 0
	}
	if hi == "" {
		return int32(from), int32(from)
	}
	to, err := strconv.ParseInt(hi, 10, 32)
	if err != nil {
		return int32(from), int32(from)
	}
	return int32(from), int32(to)
}

func portsMatch(port *string, rule secgroup.IngressRule) bool {
	from, to := portRange(port)
	return from == rule.FromPort && to == rule.ToPort
}
