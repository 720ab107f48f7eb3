package secgroup

import (
	"context"
	"errors"
)

// ErrGroupNotFound is returned by DescribeGroup when the group does not exist.
var ErrGroupNotFound = errors.New("security group not found")

// Status tags the outcome of a mutating GroupClient call.
type Status int

const (
	// StatusOK means the change was applied.
	StatusOK Status = iota
	// StatusDryRun means the provider validated the change without applying it.
	StatusDryRun
	// StatusAPIError means the provider rejected or failed the call.
	StatusAPIError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDryRun:
		return "dry_run"
	case StatusAPIError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of Revoke or Authorize.
// Message carries the provider's explanation for dry-run outcomes; Err is set
// only when Status is StatusAPIError.
type Result struct {
	Status  Status
	Message string
	Err     error
}

// OK returns a successful Result.
func OK() Result { return Result{Status: StatusOK} }

// DryRun returns a dry-run Result carrying the provider message.
func DryRun(msg string) Result { return Result{Status: StatusDryRun, Message: msg} }

// APIError returns a failed Result wrapping err.
func APIError(err error) Result { return Result{Status: StatusAPIError, Err: err} }

// Failed reports whether the call failed.
func (r Result) Failed() bool { return r.Status == StatusAPIError }

// GroupClient is the capability surface over one provider firewall policy.
type GroupClient interface {
	// DescribeGroup checks that the group exists. It returns an error wrapping
	// ErrGroupNotFound when it does not.
	DescribeGroup(ctx context.Context) (GroupMetadata, error)

	// ListIngressRules returns every CIDR ingress rule on the group.
	ListIngressRules(ctx context.Context) ([]IngressRule, error)

	// Revoke removes one rule.
	Revoke(ctx context.Context, rule IngressRule, dryRun bool) Result

	// Authorize allows all protocols from cidr.
	Authorize(ctx context.Context, cidr, description string, dryRun bool) Result
}

// Resolver hands out a GroupClient for a target.
type Resolver interface {
	ClientFor(ctx context.Context, target Target) (GroupClient, error)
}
