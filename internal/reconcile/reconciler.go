// Package reconcile computes and applies the changes that make a group's CIDR
// ingress rules match the desired list.
//
// Planning (NewPlan) is a pure diff. Application (Reconciler.Apply) revokes
// obsolete rules first and then authorizes missing CIDRs, one call per rule.
// A failed call is logged and counted but never stops the remaining calls.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imamik/sgsync/internal/iplist"
	"github.com/imamik/sgsync/internal/secgroup"
)

// DefaultSystemName is embedded in the description of authorized rules.
const DefaultSystemName = "sync-security-groups"

// Actions reported to a Recorder.
const (
	ActionRevoke    = "revoke"
	ActionAuthorize = "authorize"
)

// Recorder observes individual rule changes.
type Recorder interface {
	RuleChange(target secgroup.Target, action string, status secgroup.Status)
}

// Reconciler applies plans through a GroupClient.
type Reconciler struct {
	dryRun      bool
	systemName  string
	callTimeout time.Duration
	now         func() time.Time
	recorder    Recorder
	log         zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDryRun makes every mutating call a dry run.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

// WithSystemName sets the name used in rule descriptions.
func WithSystemName(name string) Option {
	return func(r *Reconciler) { r.systemName = name }
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.callTimeout = d }
}

// WithClock sets the time source for rule descriptions.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithRecorder reports each rule change to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// New creates a Reconciler. Dry run is off unless WithDryRun(true) is given.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		systemName:  DefaultSystemName,
		callTimeout: 30 * time.Second,
		now:         time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DryRun reports whether mutating calls are dry runs.
func (r *Reconciler) DryRun() bool {
	return r.dryRun
}

// Description returns the description attached to rules authorized at t.
func (r *Reconciler) Description(t time.Time) string {
	return fmt.Sprintf("synced %s by %s", t.Format(time.DateOnly), r.systemName)
}

// Reconcile reads the group's current rules, plans against desired and
// applies the plan. Only a failure to read the current rules is returned as
// an error; per-rule failures are reported in the Summary.
func (r *Reconciler) Reconcile(ctx context.Context, target secgroup.Target, client secgroup.GroupClient, desired iplist.List) (Summary, error) {
	callCtx, cancel := r.callContext(ctx)
	current, err := client.ListIngressRules(callCtx)
	cancel()
	if err != nil {
		return Summary{Target: target}, fmt.Errorf("failed to list ingress rules of %s: %w", target, err)
	}

	plan := NewPlan(desired, current)
	return r.Apply(ctx, target, client, plan), nil
}

// Apply executes plan against client. Revokes run before authorizes. Once ctx
// is cancelled no further call is started; a call already in flight runs to
// completion within the call timeout.
func (r *Reconciler) Apply(ctx context.Context, target secgroup.Target, client secgroup.GroupClient, plan Plan) Summary {
	log := r.log.With().Str("target", target.String()).Bool("dry_run", r.dryRun).Logger()
	sum := Summary{Target: target, Unchanged: len(plan.Unchanged)}

	for _, cidr := range plan.Unchanged {
		log.Debug().Str("cidr", cidr).Msg("CIDR is allowed")
	}
	if plan.Empty() {
		log.Info().Int("unchanged", sum.Unchanged).Msg("Group already matches the list")
		return sum
	}

	for _, rule := range plan.Revoke {
		if ctx.Err() != nil {
			sum.Interrupted = true
			return sum
		}
		log.Info().Str("cidr", rule.CIDR).Str("protocol", rule.Protocol).Msg("CIDR will be removed")

		callCtx, cancel := r.callContext(ctx)
		res := client.Revoke(callCtx, rule, r.dryRun)
		cancel()

		r.record(log, &sum, target, ActionRevoke, rule.CIDR, res)
		if res.Status == secgroup.StatusOK {
			sum.Removed++
		}
	}

	description := r.Description(r.now())
	for _, cidr := range plan.Authorize {
		if ctx.Err() != nil {
			sum.Interrupted = true
			return sum
		}
		log.Info().Str("cidr", cidr).Msg("CIDR will be added")

		callCtx, cancel := r.callContext(ctx)
		res := client.Authorize(callCtx, cidr, description, r.dryRun)
		cancel()

		r.record(log, &sum, target, ActionAuthorize, cidr, res)
		if res.Status == secgroup.StatusOK {
			sum.Added++
		}
	}

	return sum
}

func (r *Reconciler) record(log zerolog.Logger, sum *Summary, target secgroup.Target, action, cidr string, res secgroup.Result) {
	switch res.Status {
	case secgroup.StatusDryRun:
		sum.DryRun++
		msg := res.Message
		if msg == "" {
			msg = "Dry run validated the change"
		}
		log.Warn().Str("cidr", cidr).Str("action", action).Msg(msg)
	case secgroup.StatusAPIError:
		sum.Failed++
		log.Error().Err(res.Err).Str("cidr", cidr).Str("action", action).
			Bool("timeout", isTimeout(res.Err)).Msg("Rule change failed")
	}
	if r.recorder != nil {
		r.recorder.RuleChange(target, action, res.Status)
	}
}

// callContext detaches from cancellation so shutdown lets an in-flight call
// finish, bounded by the call timeout.
func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
