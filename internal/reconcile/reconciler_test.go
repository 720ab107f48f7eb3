package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/secgroup"
	"github.com/imamik/sgsync/pkg/cloud/fakes"
	"github.com/imamik/sgsync/pkg/cloud/mocks"
)

var testTarget = secgroup.Target{Provider: secgroup.ProviderAWS, Region: "us-east-1", GroupID: "sg-0123"}

func fixedClock() time.Time {
	return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)
}

func sorted(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

type recordedChange struct {
	action string
	status secgroup.Status
}

type fakeRecorder struct {
	changes []recordedChange
}

func (f *fakeRecorder) RuleChange(_ secgroup.Target, action string, status secgroup.Status) {
	f.changes = append(f.changes, recordedChange{action, status})
}

func TestReconcile_Example(t *testing.T) {
	t.Parallel()

	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("203.0.113.1/32"), fakes.AllRule("198.51.100.0/24"))
	rec := &fakeRecorder{}
	r := New(WithClock(fixedClock), WithRecorder(rec))

	sum, err := r.Reconcile(context.Background(), testTarget, group, iplist.NewList([]string{"203.0.113.1/32", "203.0.113.2/32"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"revoke 198.51.100.0/24", "authorize 203.0.113.2/32"}, group.Calls)
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 1, sum.Unchanged)
	assert.True(t, sum.Converged())
	assert.Equal(t, []string{"203.0.113.1/32", "203.0.113.2/32"}, sorted(group.CIDRs()))
	assert.Equal(t, []recordedChange{{ActionRevoke, secgroup.StatusOK}, {ActionAuthorize, secgroup.StatusOK}}, rec.changes)

	added := group.Rules[len(group.Rules)-1]
	assert.Equal(t, "synced 2026-10-14 by sync-security-groups", added.Description)
	assert.Equal(t, secgroup.ProtocolAll, added.Protocol)
}

func TestReconcile_Idempotent(t *testing.T) {
	t.Parallel()

	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.1/32"), fakes.AllRule("10.9.9.9/32"))
	desired := iplist.NewList([]string{"10.0.0.1/32", "10.0.0.2/32", "10.0.0.3/32"})
	r := New()

	_, err := r.Reconcile(context.Background(), testTarget, group, desired)
	require.NoError(t, err)
	group.ResetCalls()

	sum, err := r.Reconcile(context.Background(), testTarget, group, desired)
	require.NoError(t, err)
	assert.Empty(t, group.Calls)
	assert.Equal(t, 0, sum.Added)
	assert.Equal(t, 0, sum.Removed)
	assert.Equal(t, 3, sum.Unchanged)
}

func TestApply_EmptyPlanMakesNoCalls(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.1/32"))
	desired := iplist.NewList([]string{"10.0.0.1/32"})
	plan := NewPlan(desired, group.Rules)
	require.True(t, plan.Empty())

	sum := New(WithLogger(zerolog.New(&buf))).Apply(context.Background(), testTarget, group, plan)
	assert.Empty(t, group.Calls)
	assert.Equal(t, 1, sum.Unchanged)
	assert.True(t, sum.Converged())
	assert.Contains(t, buf.String(), "Group already matches the list")
}

func TestReconcile_HostBitsMatchStoredNetwork(t *testing.T) {
	t.Parallel()

	// Providers store networks with host bits cleared.
	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.0/24"))
	desired := iplist.NewList([]string{"10.0.0.5/24"})

	for pass := 1; pass <= 2; pass++ {
		sum, err := New().Reconcile(context.Background(), testTarget, group, desired)
		require.NoError(t, err)
		assert.Empty(t, group.Calls, "pass %d", pass)
		assert.Equal(t, 0, sum.Removed, "pass %d", pass)
		assert.Equal(t, 0, sum.Added, "pass %d", pass)
		assert.Equal(t, 1, sum.Unchanged, "pass %d", pass)
	}
}

func TestReconcile_Convergence(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	pool := make([]string, 40)
	for i := range pool {
		pool[i] = fmt.Sprintf("198.51.100.%d/32", i)
	}
	pick := func() []string {
		var out []string
		for _, c := range pool {
			if rng.Intn(2) == 0 {
				out = append(out, c)
			}
		}
		return out
	}

	for i := 0; i < 50; i++ {
		var rules []secgroup.IngressRule
		for _, c := range pick() {
			rules = append(rules, fakes.AllRule(c))
		}
		group := fakes.NewFakeGroupClient(testTarget, rules...)
		desired := iplist.NewList(pick())

		sum, err := New().Reconcile(context.Background(), testTarget, group, desired)
		require.NoError(t, err)
		require.True(t, sum.Converged())
		require.Equal(t, []string(desired), sorted(group.CIDRs()), "iteration %d", i)
	}
}

func TestReconcile_DropThenAdd(t *testing.T) {
	t.Parallel()

	desired := iplist.NewList([]string{"10.0.0.1/32", "10.0.0.2/32"})
	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.1/32"), fakes.AllRule("10.0.0.8/32"), fakes.AllRule("10.0.0.9/32"))

	authorizing := false
	group.OnCall = func(op, cidr string) {
		switch op {
		case "revoke":
			assert.False(t, desired.Contains(cidr), "desired CIDR %s revoked", cidr)
			assert.False(t, authorizing, "revoke issued after an authorize")
		case "authorize":
			authorizing = true
		}
	}

	_, err := New().Reconcile(context.Background(), testTarget, group, desired)
	require.NoError(t, err)
	assert.Equal(t, []string{"revoke 10.0.0.8/32", "revoke 10.0.0.9/32", "authorize 10.0.0.2/32"}, group.Calls)
}

func TestReconcile_DryRunDoesNotMutate(t *testing.T) {
	t.Parallel()

	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.1/32"), fakes.AllRule("10.0.0.9/32"))
	before, err := group.ListIngressRules(context.Background())
	require.NoError(t, err)

	r := New(WithDryRun(true))
	assert.True(t, r.DryRun())
	sum, err := r.Reconcile(context.Background(), testTarget, group, iplist.NewList([]string{"10.0.0.1/32", "10.0.0.2/32"}))
	require.NoError(t, err)

	after, err := group.ListIngressRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 2, sum.DryRun)
	assert.Equal(t, 0, sum.Added)
	assert.Equal(t, 0, sum.Removed)
	assert.Equal(t, 0, sum.Failed)
	assert.False(t, sum.Converged())
}

func TestReconcile_IsolatesRuleFailures(t *testing.T) {
	t.Parallel()

	group := fakes.NewFakeGroupClient(testTarget, fakes.AllRule("10.0.0.8/32"), fakes.AllRule("10.0.0.9/32"))
	group.RevokeErr["10.0.0.8/32"] = errors.New("UnauthorizedOperation")
	group.AuthorizeErr["10.0.0.1/32"] = errors.New("RulesPerSecurityGroupLimitExceeded")

	rec := &fakeRecorder{}
	sum, err := New(WithRecorder(rec)).Reconcile(context.Background(), testTarget, group,
		iplist.NewList([]string{"10.0.0.1/32", "10.0.0.2/32"}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"revoke 10.0.0.8/32", "revoke 10.0.0.9/32",
		"authorize 10.0.0.1/32", "authorize 10.0.0.2/32",
	}, group.Calls)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, []string{"10.0.0.2/32", "10.0.0.8/32"}, sorted(group.CIDRs()))
	assert.Len(t, rec.changes, 4)
}

func TestReconcile_ListError(t *testing.T) {
	t.Parallel()

	group := fakes.NewFakeGroupClient(testTarget)
	group.ListErr = errors.New("throttled")
	_, err := New().Reconcile(context.Background(), testTarget, group, iplist.NewList([]string{"10.0.0.1/32"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "us-east-1:sg-0123")
	assert.Empty(t, group.Calls)
}

func TestApply_CallTimeoutIsAPIError(t *testing.T) {
	t.Parallel()

	client := &mocks.MockGroupClient{
		RevokeFunc: func(ctx context.Context, _ secgroup.IngressRule, _ bool) secgroup.Result {
			<-ctx.Done()
			return secgroup.APIError(ctx.Err())
		},
		AuthorizeFunc: func(context.Context, string, string, bool) secgroup.Result {
			return secgroup.OK()
		},
	}

	r := New(WithCallTimeout(10 * time.Millisecond))
	sum := r.Apply(context.Background(), testTarget, client, Plan{
		Revoke:    []secgroup.IngressRule{all("10.0.0.9/32")},
		Authorize: []string{"10.0.0.1/32"},
	})
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Added)
}

func TestApply_StopsAfterCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	client := &mocks.MockGroupClient{
		RevokeFunc: func(callCtx context.Context, rule secgroup.IngressRule, _ bool) secgroup.Result {
			calls = append(calls, rule.CIDR)
			cancel()
			// The in-flight call keeps a live context.
			assert.NoError(t, callCtx.Err())
			return secgroup.OK()
		},
		AuthorizeFunc: func(_ context.Context, cidr, _ string, _ bool) secgroup.Result {
			calls = append(calls, cidr)
			return secgroup.OK()
		},
	}

	sum := New().Apply(ctx, testTarget, client, Plan{
		Revoke:    []secgroup.IngressRule{all("10.0.0.8/32"), all("10.0.0.9/32")},
		Authorize: []string{"10.0.0.1/32"},
	})
	assert.Equal(t, []string{"10.0.0.8/32"}, calls)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 1, sum.Removed)
	assert.False(t, sum.Converged())
}

func TestDescription(t *testing.T) {
	t.Parallel()
	r := New(WithSystemName("edge-sync"))
	assert.Equal(t, "synced 2026-10-14 by edge-sync", r.Description(fixedClock()))
}

func TestSummary_String(t *testing.T) {
	t.Parallel()
	s := Summary{Target: testTarget, Added: 1, Removed: 2, Unchanged: 3}
	assert.Equal(t, "us-east-1:sg-0123: 1 added, 2 removed, 3 unchanged, 0 dry-run, 0 failed", s.String())
}
