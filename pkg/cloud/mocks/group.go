// Package mocks provides function-field implementations of the secgroup
// contracts for tests that need full control over each call.
package mocks

import (
	"context"

	"github.com/imamik/sgsync/internal/secgroup"
)

type MockGroupClient struct {
	DescribeGroupFunc    func(ctx context.Context) (secgroup.GroupMetadata, error)
	ListIngressRulesFunc func(ctx context.Context) ([]secgroup.IngressRule, error)
	RevokeFunc           func(ctx context.Context, rule secgroup.IngressRule, dryRun bool) secgroup.Result
	AuthorizeFunc        func(ctx context.Context, cidr, description string, dryRun bool) secgroup.Result
}

func (m *MockGroupClient) DescribeGroup(ctx context.Context) (secgroup.GroupMetadata, error) {
	return m.DescribeGroupFunc(ctx)
}

func (m *MockGroupClient) ListIngressRules(ctx context.Context) ([]secgroup.IngressRule, error) {
	return m.ListIngressRulesFunc(ctx)
}

func (m *MockGroupClient) Revoke(ctx context.Context, rule secgroup.IngressRule, dryRun bool) secgroup.Result {
	return m.RevokeFunc(ctx, rule, dryRun)
}

func (m *MockGroupClient) Authorize(ctx context.Context, cidr, description string, dryRun bool) secgroup.Result {
	return m.AuthorizeFunc(ctx, cidr, description, dryRun)
}

type MockResolver struct {
	ClientForFunc func(ctx context.Context, target secgroup.Target) (secgroup.GroupClient, error)
}

func (m *MockResolver) ClientFor(ctx context.Context, target secgroup.Target) (secgroup.GroupClient, error) {
	return m.ClientForFunc(ctx, target)
}
