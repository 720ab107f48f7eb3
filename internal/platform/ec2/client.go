// Package ec2 implements secgroup.GroupClient over AWS EC2 security groups.
package ec2

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/secgroup"
)

// API is the subset of the EC2 client used here.
type API interface {
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
}

// GroupClient manages the ingress rules of one security group.
type GroupClient struct {
	api    API
	target secgroup.Target
	log    zerolog.Logger
}

// Ensure GroupClient implements secgroup.GroupClient.
var _ secgroup.GroupClient = (*GroupClient)(nil)

// NewGroupClient creates a client for target over api.
func NewGroupClient(api API, target secgroup.Target, log zerolog.Logger) *GroupClient {
	return &GroupClient{api: api, target: target, log: log}
}

// DescribeGroup checks that the group exists.
func (c *GroupClient) DescribeGroup(ctx context.Context) (secgroup.GroupMetadata, error) {
	sg, err := c.describe(ctx)
	if err != nil {
		return secgroup.GroupMetadata{}, err
	}
	return secgroup.GroupMetadata{
		ID:   aws.ToString(sg.GroupId),
		Name: aws.ToString(sg.GroupName),
	}, nil
}

// ListIngressRules flattens the group's IPv4 ranges into one rule per CIDR.
func (c *GroupClient) ListIngressRules(ctx context.Context) ([]secgroup.IngressRule, error) {
	sg, err := c.describe(ctx)
	if err != nil {
		return nil, err
	}

	var rules []secgroup.IngressRule
	for _, perm := range sg.IpPermissions {
		c.log.Debug().Str("protocol", aws.ToString(perm.IpProtocol)).Int("ranges", len(perm.IpRanges)).Msg("Existing inbound rule")
		for _, r := range perm.IpRanges {
			rules = append(rules, c.toRule(perm, r))
		}
	}
	return rules, nil
}

// Revoke removes one CIDR rule. Ports are only sent for rules that are not
// all-protocol rules.
func (c *GroupClient) Revoke(ctx context.Context, rule secgroup.IngressRule, dryRun bool) secgroup.Result {
	_, err := c.api.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
		GroupId:       aws.String(c.target.GroupID),
		IpPermissions: []types.IpPermission{revokePermission(rule)},
		DryRun:        aws.Bool(dryRun),
	})
	return classify(err, fmt.Sprintf("failed to revoke %s from %s", rule, c.target))
}

// Authorize allows all protocols from cidr.
func (c *GroupClient) Authorize(ctx context.Context, cidr, description string, dryRun bool) secgroup.Result {
	_, err := c.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(c.target.GroupID),
		IpPermissions: []types.IpPermission{{
			IpProtocol: aws.String(secgroup.ProtocolAll),
			IpRanges: []types.IpRange{{
				CidrIp:      aws.String(cidr),
				Description: aws.String(description),
			}},
		}},
		DryRun: aws.Bool(dryRun),
	})
	return classify(err, fmt.Sprintf("failed to authorize %s on %s", cidr, c.target))
}

func (c *GroupClient) describe(ctx context.Context) (types.SecurityGroup, error) {
	out, err := c.api.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{c.target.GroupID},
	})
	if err != nil {
		if IsNotFound(err) {
			return types.SecurityGroup{}, fmt.Errorf("%s: %s: %w", c.target, errorMessage(err), secgroup.ErrGroupNotFound)
		}
		return types.SecurityGroup{}, fmt.Errorf("failed to describe security group %s: %w", c.target, err)
	}
	for _, sg := range out.SecurityGroups {
		if aws.ToString(sg.GroupId) == c.target.GroupID {
			return sg, nil
		}
	}
	return types.SecurityGroup{}, fmt.Errorf("%s: %w", c.target, secgroup.ErrGroupNotFound)
}

func (c *GroupClient) toRule(perm types.IpPermission, r types.IpRange) secgroup.IngressRule {
	rule := secgroup.IngressRule{
		CIDR:        aws.ToString(r.CidrIp),
		Protocol:    aws.ToString(perm.IpProtocol),
		Description: aws.ToString(r.Description),
		GroupID:     c.target.GroupID,
		Region:      c.target.Region,
	}
	if !rule.AllProtocols() {
		rule.FromPort = aws.ToInt32(perm.FromPort)
		rule.ToPort = aws.ToInt32(perm.ToPort)
	}
	return rule
}

func revokePermission(rule secgroup.IngressRule) types.IpPermission {
	perm := types.IpPermission{
		IpProtocol: aws.String(rule.Protocol),
		IpRanges:   []types.IpRange{{CidrIp: aws.String(rule.CIDR)}},
	}
	if !rule.AllProtocols() {
		perm.FromPort = aws.Int32(rule.FromPort)
		perm.ToPort = aws.Int32(rule.ToPort)
	}
	return perm
}

// classify turns an EC2 call error into a tagged result.
func classify(err error, what string) secgroup.Result {
	switch {
	case err == nil:
		return secgroup.OK()
	case IsDryRun(err):
		return secgroup.DryRun(errorMessage(err))
	default:
		return secgroup.APIError(fmt.Errorf("%s: %w", what, err))
	}
}

// Resolver creates one EC2 client per region on first use and shares it
// between the groups of that region.
type Resolver struct {
	cfg    aws.Config
	optFns []func(*ec2.Options)
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[string]API
}

// Ensure Resolver implements secgroup.Resolver.
var _ secgroup.Resolver = (*Resolver)(nil)

// NewResolver loads the default AWS configuration (environment, shared files,
// instance roles) and returns a Resolver over it.
func NewResolver(ctx context.Context, appID string, log zerolog.Logger, optFns ...func(*ec2.Options)) (*Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithAppID(appID))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewResolverFromConfig(cfg, log, optFns...), nil
}

// NewResolverFromConfig returns a Resolver over an already loaded config.
func NewResolverFromConfig(cfg aws.Config, log zerolog.Logger, optFns ...func(*ec2.Options)) *Resolver {
	return &Resolver{
		cfg:     cfg,
		optFns:  optFns,
		log:     log,
		clients: make(map[string]API),
	}
}

// ClientFor returns a GroupClient for target.
func (r *Resolver) ClientFor(_ context.Context, target secgroup.Target) (secgroup.GroupClient, error) {
	if target.Provider != secgroup.ProviderAWS {
		return nil, fmt.Errorf("target %s is not an AWS security group", target)
	}
	return NewGroupClient(r.regionClient(target.Region), target, r.log.With().Str("target", target.String()).Logger()), nil
}

func (r *Resolver) regionClient(region string) API {
	r.mu.Lock()
	defer r.mu.Unlock()

	if api, ok := r.clients[region]; ok {
		return api
	}
	opts := append([]func(*ec2.Options){func(o *ec2.Options) { o.Region = region }}, r.optFns...)
	api := ec2.NewFromConfig(r.cfg, opts...)
	r.clients[region] = api
	return api
}
