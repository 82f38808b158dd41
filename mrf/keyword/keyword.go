package keyword

import (
	"context"
	"strings"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"
	"github.com/fedimod/mrf/mrf/pattern"
)

const RejectReason = "[KeywordPolicy] Matches with rejected keyword"

// Rejects, delists (removes from the federated timeline), or rewrites activities based on keyword and regex matches against the text fields of the object.
type Policy struct{}

var _ mrf.Policy = Policy{}
var _ mrf.ConfigDescriber = Policy{}

func (Policy) Name() string {
	return "keyword"
}

// Text fields which are checked and rewritten, in replacement order.
var textFields = []string{"content", "name", "summary"}

// Joins the text fields which are present, in content/summary/name order, with newlines.
func objectPayload(obj activity.Object) string {
	parts := make([]string, 0, 3)
	for _, field := range []string{"content", "summary", "name"} {
		if s, ok := obj.String(field); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (Policy) Filter(ctx context.Context, cfg *config.Config, act activity.Object) (activity.Object, error) {
	switch act.Type() {
	case "Create", "Update":
	default:
		return act, nil
	}
	obj, ok := act.Map("object")
	if !ok || obj["content"] == nil {
		return act, nil
	}
	kc := cfg.Keyword

	if err := checkReject(obj, kc.Reject); err != nil {
		return nil, err
	}
	act = checkFederatedTimelineRemoval(act, obj, kc.FederatedTimelineRemoval)
	return checkReplace(act, obj, kc.Replace)
}

// Rejects if the current object, or any revision in its history, matches a reject pattern.
func checkReject(obj activity.Object, patterns []pattern.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}
	_, err := activity.WithHistory(obj, func(o activity.Object) (activity.Object, error) {
		if pattern.MatchAny(objectPayload(o), patterns) {
			return nil, mrf.Reject(RejectReason)
		}
		return o, nil
	})
	return err
}

// Moves the public address from "to" to "cc" of public Create activities matching a pattern. Only the current object is checked.
func checkFederatedTimelineRemoval(act, obj activity.Object, patterns []pattern.Pattern) activity.Object {
	if len(patterns) == 0 || act.Type() != "Create" || !act.AddressedTo("to", activity.Public) {
		return act
	}
	if !pattern.MatchAny(objectPayload(obj), patterns) {
		return act
	}
	to := activity.Without(act.Addresses("to"), activity.Public)
	cc := act.Addresses("cc")
	if !act.AddressedTo("cc", activity.Public) {
		cc = activity.Prepend(activity.Public, cc)
	}
	return act.SetAll(map[string]any{
		"to": to,
		"cc": cc,
	})
}

// Applies replacements, in order, to the text fields of the object and every revision in its history.
func checkReplace(act, obj activity.Object, replacements []config.Replacement) (activity.Object, error) {
	if len(replacements) == 0 {
		return act, nil
	}
	out, err := activity.WithHistory(obj, func(o activity.Object) (activity.Object, error) {
		for _, field := range textFields {
			s, ok := o.String(field)
			if !ok {
				continue
			}
			for _, r := range replacements {
				s = r.Pattern.Replace(s, r.Replacement)
			}
			o = o.Set(field, s)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return act.Set("object", out), nil
}

func (Policy) Describe(cfg *config.Config) (map[string]any, error) {
	kc := cfg.Keyword
	replace := make([]map[string]string, len(kc.Replace))
	for i, r := range kc.Replace {
		replace[i] = map[string]string{
			"pattern":     r.Pattern.String(),
			"replacement": r.Replacement,
		}
	}
	return map[string]any{
		"mrf_keyword": map[string]any{
			"reject":                     pattern.Strings(kc.Reject),
			"federated_timeline_removal": pattern.Strings(kc.FederatedTimelineRemoval),
			"replace":                    replace,
		},
	}, nil
}

func (Policy) ConfigDescription() mrf.ConfigDescription {
	return mrf.ConfigDescription{
		Group:         "mrf",
		Key:           "mrf_keyword",
		Label:         "MRF Keyword",
		Description:   "Reject or Word-Replace messages matching a keyword or regex (written as `~r/PATTERN/FLAGS`).",
		RelatedPolicy: "keyword",
		Children: []mrf.ConfigOption{
			{
				Key:         "reject",
				Type:        "list:pattern",
				Description: "A list of patterns which result in message being rejected.",
				Suggestions: []any{"foo", "~r/foo/iu"},
			},
			{
				Key:         "federated_timeline_removal",
				Type:        "list:pattern",
				Description: "A list of patterns which result in message being removed from federated timelines (a.k.a unlisted).",
				Suggestions: []any{"foo", "~r/foo/iu"},
			},
			{
				Key:         "replace",
				Type:        "list:replacement",
				Description: "Pattern: a string or regex in the format of `~r/PATTERN/`. Replacement: a string, may be empty. Regex replacements may refer to capture groups as `$1`.",
				Suggestions: []any{
					map[string]string{"pattern": "foo", "replacement": "bar"},
					map[string]string{"pattern": "~r/foo/iu", "replacement": "bar"},
				},
			},
		},
	}
}
