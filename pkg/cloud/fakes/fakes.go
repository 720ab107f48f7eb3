// Package fakes provides in-memory implementations of the secgroup contracts
// that behave like a real provider, for use in tests.
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/sgsync/internal/secgroup"
)

// FakeGroupClient simulates one provider security group.
type FakeGroupClient struct {
	mu sync.Mutex

	Name    string
	Missing bool
	Rules   []secgroup.IngressRule

	// Error injection, keyed by CIDR for the mutating calls.
	DescribeErr  error
	ListErr      error
	RevokeErr    map[string]error
	AuthorizeErr map[string]error

	// Calls records every mutating call in order, as "revoke <cidr>" or
	// "authorize <cidr>", including dry runs.
	Calls []string

	// OnCall, when set, runs before each mutating call is applied.
	OnCall func(op, cidr string)

	target secgroup.Target
}

// NewFakeGroupClient creates a fake group for target holding rules.
func NewFakeGroupClient(target secgroup.Target, rules ...secgroup.IngressRule) *FakeGroupClient {
	f := &FakeGroupClient{
		Name:         "fake-" + target.GroupID,
		RevokeErr:    make(map[string]error),
		AuthorizeErr: make(map[string]error),
		target:       target,
	}
	for _, r := range rules {
		r.GroupID = target.GroupID
		r.Region = target.Region
		f.Rules = append(f.Rules, r)
	}
	return f
}

// AllRule builds an all-protocols rule for cidr.
func AllRule(cidr string) secgroup.IngressRule {
	return secgroup.IngressRule{CIDR: cidr, Protocol: secgroup.ProtocolAll}
}

func (f *FakeGroupClient) DescribeGroup(_ context.Context) (secgroup.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DescribeErr != nil {
		return secgroup.GroupMetadata{}, f.DescribeErr
	}
	if f.Missing {
		return secgroup.GroupMetadata{}, fmt.Errorf("group %s: %w", f.target.GroupID, secgroup.ErrGroupNotFound)
	}
	return secgroup.GroupMetadata{ID: f.target.GroupID, Name: f.Name}, nil
}

func (f *FakeGroupClient) ListIngressRules(_ context.Context) ([]secgroup.IngressRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]secgroup.IngressRule, len(f.Rules))
	copy(out, f.Rules)
	return out, nil
}

func (f *FakeGroupClient) Revoke(_ context.Context, rule secgroup.IngressRule, dryRun bool) secgroup.Result {
	if f.OnCall != nil {
		f.OnCall("revoke", rule.CIDR)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "revoke "+rule.CIDR)
	if err := f.RevokeErr[rule.CIDR]; err != nil {
		return secgroup.APIError(err)
	}
	idx := -1
	for i, r := range f.Rules {
		if r.CIDR == rule.CIDR && r.Protocol == rule.Protocol && r.FromPort == rule.FromPort && r.ToPort == rule.ToPort {
			idx = i
			break
		}
	}
	if idx < 0 {
		return secgroup.APIError(fmt.Errorf("rule %s does not exist", rule))
	}
	if dryRun {
		return secgroup.DryRun("Request would have succeeded, but DryRun flag is set.")
	}
	f.Rules = append(f.Rules[:idx], f.Rules[idx+1:]...)
	return secgroup.OK()
}

func (f *FakeGroupClient) Authorize(_ context.Context, cidr, description string, dryRun bool) secgroup.Result {
	if f.OnCall != nil {
		f.OnCall("authorize", cidr)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "authorize "+cidr)
	if err := f.AuthorizeErr[cidr]; err != nil {
		return secgroup.APIError(err)
	}
	for _, r := range f.Rules {
		if r.CIDR == cidr && r.AllProtocols() {
			return secgroup.APIError(fmt.Errorf("the specified rule %s already exists", r))
		}
	}
	if dryRun {
		return secgroup.DryRun("Request would have succeeded, but DryRun flag is set.")
	}
	f.Rules = append(f.Rules, secgroup.IngressRule{
		CIDR:        cidr,
		Protocol:    secgroup.ProtocolAll,
		Description: description,
		GroupID:     f.target.GroupID,
		Region:      f.target.Region,
	})
	return secgroup.OK()
}

// CIDRs returns the CIDRs currently on the group, in rule order.
func (f *FakeGroupClient) CIDRs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Rules))
	for _, r := range f.Rules {
		out = append(out, r.CIDR)
	}
	return out
}

// ResetCalls clears the recorded calls.
func (f *FakeGroupClient) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

// FakeResolver serves FakeGroupClients by target.
type FakeResolver struct {
	mu     sync.Mutex
	Groups map[secgroup.Target]*FakeGroupClient
}

// NewFakeResolver creates a resolver over groups.
func NewFakeResolver(groups ...*FakeGroupClient) *FakeResolver {
	r := &FakeResolver{Groups: make(map[secgroup.Target]*FakeGroupClient)}
	for _, g := range groups {
		r.Groups[g.target] = g
	}
	return r
}

func (r *FakeResolver) ClientFor(_ context.Context, target secgroup.Target) (secgroup.GroupClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.Groups[target]
	if !ok {
		return nil, fmt.Errorf("no client for target %s", target)
	}
	return g, nil
}
