package mrf

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf/config"
)

// A single moderation policy in the MRF chain.
//
// Implementations must not keep per-call state, and must not modify the activity passed in: a mutated activity is returned as a new value. Configuration is passed on every call and must not be cached.
type Policy interface {
	// Short stable identifier, used in logs, metrics, and describe output.
	Name() string

	// Approves (returning the activity unchanged), rewrites (returning a new activity), or rejects (returning an error matching ErrReject) an activity. Any other error aborts processing of the activity.
	Filter(ctx context.Context, cfg *config.Config, act activity.Object) (activity.Object, error)

	// Returns an operator-facing snapshot of the active configuration for this policy.
	Describe(cfg *config.Config) (map[string]any, error)
}

// Optional interface for policies which can describe their configuration options (for admin tooling).
type ConfigDescriber interface {
	ConfigDescription() ConfigDescription
}

// Machine-readable schema for the configuration of one policy.
type ConfigDescription struct {
	Group         string         `json:"group"`
	Key           string         `json:"key"`
	Label         string         `json:"label"`
	Description   string         `json:"description"`
	RelatedPolicy string         `json:"related_policy"`
	Children      []ConfigOption `json:"children"`
}

type ConfigOption struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Suggestions []any  `json:"suggestions,omitempty"`
}

// Matches (with errors.Is) any rejection returned by a policy.
var ErrReject = errors.New("activity rejected by MRF policy")

// Rejection of an activity by a policy, with a short diagnostic message.
type RejectError struct {
	// Name of the rejecting policy; filled in by the Pipeline if empty.
	Policy string
	Reason string
}

// Returns a rejection error with the given diagnostic.
func Reject(reason string) error {
	return &RejectError{Reason: reason}
}

func (e *RejectError) Error() string {
	if e.Policy == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected by %s: %s", e.Policy, e.Reason)
}

func (e *RejectError) Is(target error) bool {
	return target == ErrReject
}

// Returns the RejectError wrapped in err, if any.
func AsReject(err error) (*RejectError, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
