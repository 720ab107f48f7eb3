package ec2

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/sgsync/internal/secgroup"
)

var target = secgroup.Target{Provider: secgroup.ProviderAWS, Region: "us-east-1", GroupID: "sg-0123"}

type fakeAPI struct {
	describeOut *ec2.DescribeSecurityGroupsOutput
	describeErr error
	revokeErr   error
	authErr     error

	revokeIn *ec2.RevokeSecurityGroupIngressInput
	authIn   *ec2.AuthorizeSecurityGroupIngressInput
}

func (f *fakeAPI) DescribeSecurityGroups(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return f.describeOut, f.describeErr
}

func (f *fakeAPI) RevokeSecurityGroupIngress(_ context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	f.revokeIn = in
	return &ec2.RevokeSecurityGroupIngressOutput{}, f.revokeErr
}

func (f *fakeAPI) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.authIn = in
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, f.authErr
}

func group(perms ...types.IpPermission) *ec2.DescribeSecurityGroupsOutput {
	return &ec2.DescribeSecurityGroupsOutput{
		SecurityGroups: []types.SecurityGroup{{
			GroupId:       aws.String("sg-0123"),
			GroupName:     aws.String("edge"),
			IpPermissions: perms,
		}},
	}
}

func TestGroupClient_DescribeGroup(t *testing.T) {
	t.Parallel()

	c := NewGroupClient(&fakeAPI{describeOut: group()}, target, zerolog.Nop())
	meta, err := c.DescribeGroup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, secgroup.GroupMetadata{ID: "sg-0123", Name: "edge"}, meta)
}

func TestGroupClient_DescribeGroup_NotFound(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{describeErr: &smithy.GenericAPIError{
		Code:    "InvalidGroup.NotFound",
		Message: "The security group 'sg-0123' does not exist",
	}}
	_, err := NewGroupClient(api, target, zerolog.Nop()).DescribeGroup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, secgroup.ErrGroupNotFound)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = NewGroupClient(&fakeAPI{describeOut: &ec2.DescribeSecurityGroupsOutput{}}, target, zerolog.Nop()).DescribeGroup(context.Background())
	assert.ErrorIs(t, err, secgroup.ErrGroupNotFound)
}

func TestGroupClient_DescribeGroup_OtherError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{describeErr: &smithy.GenericAPIError{Code: "UnauthorizedOperation"}}
	_, err := NewGroupClient(api, target, zerolog.Nop()).DescribeGroup(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, secgroup.ErrGroupNotFound)
}

func TestGroupClient_ListIngressRules(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{describeOut: group(
		types.IpPermission{
			IpProtocol: aws.String("-1"),
			IpRanges: []types.IpRange{
				{CidrIp: aws.String("203.0.113.1/32"), Description: aws.String("synced 2026-01-01 by sync-security-groups")},
				{CidrIp: aws.String("198.51.100.0/24")},
			},
		},
		types.IpPermission{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(443),
			ToPort:     aws.Int32(443),
			IpRanges:   []types.IpRange{{CidrIp: aws.String("192.0.2.0/24")}},
			Ipv6Ranges: []types.Ipv6Range{{CidrIpv6: aws.String("2001:db8::/32")}},
		},
		types.IpPermission{
			IpProtocol:       aws.String("tcp"),
			FromPort:         aws.Int32(22),
			ToPort:           aws.Int32(22),
			UserIdGroupPairs: []types.UserIdGroupPair{{GroupId: aws.String("sg-bastion")}},
		},
	)}

	rules, err := NewGroupClient(api, target, zerolog.Nop()).ListIngressRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, secgroup.IngressRule{
		CIDR: "203.0.113.1/32", Protocol: "-1", Description: "synced 2026-01-01 by sync-security-groups",
		GroupID: "sg-0123", Region: "us-east-1",
	}, rules[0])
	assert.Equal(t, "198.51.100.0/24", rules[1].CIDR)
	assert.Equal(t, secgroup.IngressRule{
		CIDR: "192.0.2.0/24", Protocol: "tcp", FromPort: 443, ToPort: 443,
		GroupID: "sg-0123", Region: "us-east-1",
	}, rules[2])
}

func TestGroupClient_Revoke(t *testing.T) {
	t.Parallel()

	t.Run("all protocols omits ports", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{}
		res := NewGroupClient(api, target, zerolog.Nop()).Revoke(context.Background(),
			secgroup.IngressRule{CIDR: "198.51.100.0/24", Protocol: "-1"}, false)
		assert.Equal(t, secgroup.StatusOK, res.Status)

		require.NotNil(t, api.revokeIn)
		assert.Equal(t, "sg-0123", aws.ToString(api.revokeIn.GroupId))
		assert.False(t, aws.ToBool(api.revokeIn.DryRun))
		require.Len(t, api.revokeIn.IpPermissions, 1)
		perm := api.revokeIn.IpPermissions[0]
		assert.Equal(t, "-1", aws.ToString(perm.IpProtocol))
		assert.Nil(t, perm.FromPort)
		assert.Nil(t, perm.ToPort)
		assert.Equal(t, "198.51.100.0/24", aws.ToString(perm.IpRanges[0].CidrIp))
	})

	t.Run("port rule sends ports", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{}
		NewGroupClient(api, target, zerolog.Nop()).Revoke(context.Background(),
			secgroup.IngressRule{CIDR: "192.0.2.0/24", Protocol: "tcp", FromPort: 80, ToPort: 443}, true)

		perm := api.revokeIn.IpPermissions[0]
		assert.Equal(t, int32(80), aws.ToInt32(perm.FromPort))
		assert.Equal(t, int32(443), aws.ToInt32(perm.ToPort))
		assert.True(t, aws.ToBool(api.revokeIn.DryRun))
	})
}

func TestGroupClient_Authorize(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	res := NewGroupClient(api, target, zerolog.Nop()).Authorize(context.Background(),
		"203.0.113.2/32", "synced 2026-10-14 by sync-security-groups", true)
	assert.Equal(t, secgroup.StatusOK, res.Status)

	require.NotNil(t, api.authIn)
	assert.True(t, aws.ToBool(api.authIn.DryRun))
	perm := api.authIn.IpPermissions[0]
	assert.Equal(t, "-1", aws.ToString(perm.IpProtocol))
	assert.Equal(t, "203.0.113.2/32", aws.ToString(perm.IpRanges[0].CidrIp))
	assert.Equal(t, "synced 2026-10-14 by sync-security-groups", aws.ToString(perm.IpRanges[0].Description))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	dryRun := &smithy.GenericAPIError{Code: "DryRunOperation", Message: "Request would have succeeded, but DryRun flag is set."}
	res := classify(dryRun, "revoke")
	assert.Equal(t, secgroup.StatusDryRun, res.Status)
	assert.Equal(t, "Request would have succeeded, but DryRun flag is set.", res.Message)
	assert.NoError(t, res.Err)

	denied := &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "You are not authorized"}
	res = classify(denied, "revoke 10.0.0.1/32")
	assert.Equal(t, secgroup.StatusAPIError, res.Status)
	assert.ErrorIs(t, res.Err, denied)
	assert.Contains(t, res.Err.Error(), "revoke 10.0.0.1/32")

	res = classify(context.DeadlineExceeded, "authorize")
	assert.Equal(t, secgroup.StatusAPIError, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	assert.Equal(t, secgroup.StatusOK, classify(nil, "noop").Status)
}

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		dryRun   bool
		notFound bool
	}{
		{"nil", nil, false, false},
		{"plain", errors.New("boom"), false, false},
		{"dry run", &smithy.GenericAPIError{Code: "DryRunOperation"}, true, false},
		{"not found", &smithy.GenericAPIError{Code: "InvalidGroup.NotFound"}, false, true},
		{"malformed id", &smithy.GenericAPIError{Code: "InvalidGroupId.Malformed"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.dryRun, IsDryRun(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
		})
	}
}

func TestResolver_ClientFor(t *testing.T) {
	t.Parallel()

	r := NewResolverFromConfig(aws.Config{Region: "us-east-1"}, zerolog.Nop())
	a, err := r.ClientFor(context.Background(), target)
	require.NoError(t, err)
	b, err := r.ClientFor(context.Background(), secgroup.Target{Provider: secgroup.ProviderAWS, Region: "us-east-1", GroupID: "sg-other"})
	require.NoError(t, err)

	assert.Same(t, a.(*GroupClient).api, b.(*GroupClient).api, "one EC2 client per region")
	assert.Len(t, r.clients, 1)

	_, err = r.ClientFor(context.Background(), secgroup.Target{Provider: secgroup.ProviderHCloud, Region: "hcloud", GroupID: "fw"})
	assert.Error(t, err)
}

// TestGroupClient_QueryProtocol drives the real SDK client against a local
// server speaking the EC2 query protocol.
func TestGroupClient_QueryProtocol(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "text/xml;charset=UTF-8")
		switch r.Form.Get("Action") {
		case "DescribeSecurityGroups":
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<DescribeSecurityGroupsResponse xmlns="http://ec2.amazonaws.com/doc/2016-11-15/">
  <requestId>req-1</requestId>
  <securityGroupInfo>
    <item>
      <groupId>sg-0123</groupId>
      <groupName>edge</groupName>
      <ipPermissions>
        <item>
          <ipProtocol>-1</ipProtocol>
          <ipRanges><item><cidrIp>203.0.113.1/32</cidrIp></item></ipRanges>
        </item>
      </ipPermissions>
    </item>
  </securityGroupInfo>
</DescribeSecurityGroupsResponse>`))
		case "AuthorizeSecurityGroupIngress":
			assert.Equal(t, "true", r.Form.Get("DryRun"))
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Response><Errors><Error><Code>DryRunOperation</Code><Message>Request would have succeeded, but DryRun flag is set.</Message></Error></Errors><RequestID>req-2</RequestID></Response>`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	api := ec2.New(ec2.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(server.URL),
		Credentials:      credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		RetryMaxAttempts: 1,
	})
	c := NewGroupClient(api, target, zerolog.Nop())

	rules, err := c.ListIngressRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "203.0.113.1/32", rules[0].CIDR)

	res := c.Authorize(context.Background(), "203.0.113.2/32", "synced", true)
	assert.Equal(t, secgroup.StatusDryRun, res.Status)
	assert.Contains(t, res.Message, "DryRun flag is set")
}
