package hcloud

import (
	"context"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/secgroup"
	"github.com/imamik/sgsync/internal/util/retry"
)

// FirewallAPI is the subset of hcloud.FirewallClient used here.
type FirewallAPI interface {
	Get(ctx context.Context, idOrName string) (*hcloud.Firewall, *hcloud.Response, error)
	SetRules(ctx context.Context, firewall *hcloud.Firewall, opts hcloud.FirewallSetRulesOpts) ([]*hcloud.Action, *hcloud.Response, error)
}

// ActionWaiter waits for hcloud actions to finish.
type ActionWaiter interface {
	WaitFor(ctx context.Context, actions ...*hcloud.Action) error
}

// Resolver hands out firewall clients backed by one hcloud.Client.
type Resolver struct {
	firewalls FirewallAPI
	actions   ActionWaiter
	log       zerolog.Logger

	retries      int
	initialDelay time.Duration
}

// Ensure Resolver implements secgroup.Resolver.
var _ secgroup.Resolver = (*Resolver)(nil)

// ClientOption configures a Resolver.
type ClientOption func(*Resolver)

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) ClientOption {
	return func(r *Resolver) {
		r.firewalls = &hc.Firewall
		r.actions = &hc.Action
	}
}

// WithRetry sets how often set_rules is retried while the firewall is locked.
func WithRetry(retries int, initialDelay time.Duration) ClientOption {
	return func(r *Resolver) {
		r.retries = retries
		r.initialDelay = initialDelay
	}
}

// WithLogger sets the logger handed to firewall clients.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(r *Resolver) {
		r.log = log
	}
}

// NewResolver creates a Resolver authenticating with token.
func NewResolver(token, appVersion string, opts ...ClientOption) *Resolver {
	r := &Resolver{
		log:          zerolog.Nop(),
		retries:      5,
		initialDelay: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.firewalls == nil {
		hc := hcloud.NewClient(
			hcloud.WithToken(token),
			hcloud.WithApplication("sgsync", appVersion),
		)
		r.firewalls = &hc.Firewall
		r.actions = &hc.Action
	}
	return r
}

// ClientFor returns a FirewallClient for target.
func (r *Resolver) ClientFor(_ context.Context, target secgroup.Target) (secgroup.GroupClient, error) {
	if target.Provider != secgroup.ProviderHCloud {
		return nil, fmt.Errorf("target %s is not a Hetzner Cloud firewall", target)
	}
	return &FirewallClient{
		firewalls: r.firewalls,
		actions:   r.actions,
		target:    target,
		log:       r.log.With().Str("target", target.String()).Logger(),
		retryOpts: []retry.Option{
			retry.WithRetries(r.retries),
			retry.WithInitialDelay(r.initialDelay),
		},
	}, nil
}
