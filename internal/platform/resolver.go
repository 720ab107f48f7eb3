// Package platform routes security group targets to their cloud provider.
package platform

import (
	"context"
	"fmt"

	"github.com/imamik/sgsync/internal/secgroup"
)

// Router dispatches ClientFor to the resolver registered for a target's
// provider.
type Router struct {
	resolvers map[string]secgroup.Resolver
}

// Ensure Router implements secgroup.Resolver.
var _ secgroup.Resolver = (*Router)(nil)

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{resolvers: make(map[string]secgroup.Resolver)}
}

// Register sets the resolver for provider, replacing any earlier one.
func (r *Router) Register(provider string, resolver secgroup.Resolver) *Router {
	r.resolvers[provider] = resolver
	return r
}

// Has reports whether a resolver is registered for provider.
func (r *Router) Has(provider string) bool {
	_, ok := r.resolvers[provider]
	return ok
}

// ClientFor returns a client from the resolver of target.Provider.
func (r *Router) ClientFor(ctx context.Context, target secgroup.Target) (secgroup.GroupClient, error) {
	resolver, ok := r.resolvers[target.Provider]
	if !ok {
		return nil, fmt.Errorf("no provider configured for %s (provider %q)", target, target.Provider)
	}
	return resolver.ClientFor(ctx, target)
}
