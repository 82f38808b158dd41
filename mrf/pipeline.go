package mrf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("mrf")

// Receives notice of rejected activities (eg, to alert operators). Errors are logged and do not change the outcome.
type Notifier interface {
	SendReject(ctx context.Context, act activity.Object, rej *RejectError) error
}

// Runs activities through an ordered chain of policies.
//
// The zero value is not usable: Config must be set. Safe for concurrent use, as long as the policies are.
type Pipeline struct {
	Logger   *slog.Logger
	Config   config.Provider
	Policies []Policy
	// optional
	Notifier Notifier
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Runs the activity through every policy, in order, and returns the resulting activity.
//
// Configuration is fetched once, at the start of the run, and the same snapshot is handed to every policy. A rejection (matching ErrReject, see AsReject) or any other policy error stops the chain and is returned; the output activity is nil in that case. The input activity is never modified.
func (p *Pipeline) Filter(ctx context.Context, act activity.Object) (out activity.Object, err error) {
	ctx, span := tracer.Start(ctx, "mrf.Filter")
	defer span.End()
	span.SetAttributes(attribute.String("activity.type", act.Type()))

	start := time.Now()
	logger := p.logger().With("id", act.ID(), "type", act.Type())
	if actor, ok := act.String("actor"); ok {
		logger = logger.With("actor", actor)
	}

	defer func() {
		result := "accept"
		if err != nil {
			result = "error"
			if _, ok := AsReject(err); ok {
				result = "reject"
			}
			span.SetStatus(codes.Error, err.Error())
		}
		activitiesProcessed.WithLabelValues(result).Inc()
		pipelineDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		logger.Info("mrf canonical", "result", result, "duration", time.Since(start), "err", err)
	}()

	cfg, err := p.Config.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading MRF config: %w", err)
	}

	out = act
	for _, pol := range p.Policies {
		next, err := p.runPolicy(ctx, pol, cfg, out)
		if err != nil {
			if rej, ok := AsReject(err); ok {
				if rej.Policy == "" {
					rej.Policy = pol.Name()
				}
				policyResults.WithLabelValues(pol.Name(), "reject").Inc()
				p.notify(ctx, logger, act, rej)
				return nil, err
			}
			policyResults.WithLabelValues(pol.Name(), "error").Inc()
			return nil, fmt.Errorf("MRF policy %s: %w", pol.Name(), err)
		}
		if next == nil {
			policyResults.WithLabelValues(pol.Name(), "error").Inc()
			return nil, fmt.Errorf("MRF policy %s: %w", pol.Name(), ErrNilActivity)
		}
		policyResults.WithLabelValues(pol.Name(), "pass").Inc()
		out = next
	}
	return out, nil
}

// Returned when a policy returns neither an activity nor an error.
var ErrNilActivity = errors.New("policy returned nil activity")

// Returned (wrapped) when a policy panics.
var ErrPolicyPanic = errors.New("policy panicked")

func (p *Pipeline) runPolicy(ctx context.Context, pol Policy, cfg *config.Config, act activity.Object) (out activity.Object, err error) {
	ctx, span := tracer.Start(ctx, "mrf.Policy")
	defer span.End()
	span.SetAttributes(attribute.String("policy", pol.Name()))

	// a panicking policy must never let the activity through
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error("MRF policy execution exception", "policy", pol.Name(), "err", r)
			out = nil
			err = fmt.Errorf("%w: %v", ErrPolicyPanic, r)
		}
	}()
	return pol.Filter(ctx, cfg, act)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, act activity.Object, rej *RejectError) {
	if p.Notifier == nil {
		return
	}
	if err := p.Notifier.SendReject(ctx, act, rej); err != nil {
		logger.Warn("failed to send MRF reject notification", "err", err)
	}
}

// Returns the merged describe output of all policies, plus the list of active policy names under "mrf_policies".
func (p *Pipeline) Describe(ctx context.Context) (map[string]any, error) {
	cfg, err := p.Config.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading MRF config: %w", err)
	}
	names := make([]string, 0, len(p.Policies))
	out := map[string]any{}
	for _, pol := range p.Policies {
		names = append(names, pol.Name())
		desc, err := pol.Describe(cfg)
		if err != nil {
			return nil, fmt.Errorf("describing MRF policy %s: %w", pol.Name(), err)
		}
		for k, v := range desc {
			out[k] = v
		}
	}
	out["mrf_policies"] = names
	return out, nil
}

// Collects configuration schemas from the policies which provide one.
func (p *Pipeline) ConfigDescriptions() []ConfigDescription {
	out := []ConfigDescription{}
	for _, pol := range p.Policies {
		if cd, ok := pol.(ConfigDescriber); ok {
			out = append(out, cd.ConfigDescription())
		}
	}
	return out
}
