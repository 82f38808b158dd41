package nsfwapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf"
	"github.com/fedimod/mrf/mrf/config"
	"github.com/fedimod/mrf/mrf/directory"
)

const RejectReason = "[NsfwApiPolicy] NSFW attachment detected"

// Tag added to objects marked sensitive.
const NSFWTag = "nsfw"

// Returned when an activity to be unlisted lacks the addressing fields needed to do so.
var ErrUnlistAddressing = errors.New("activity is missing addressing required to unlist")

// Rejects, unlists, or marks sensitive activities with media which the classifier scores at or above the configured threshold.
type Policy struct {
	Classifier Classifier
	// Resolves actors to their followers collection, when unlisting
	Directory directory.Directory
	Logger    *slog.Logger
}

var _ mrf.Policy = (*Policy)(nil)
var _ mrf.ConfigDescriber = (*Policy)(nil)

func NewPolicy(classifier Classifier, dir directory.Directory) *Policy {
	return &Policy{
		Classifier: classifier,
		Directory:  dir,
		Logger:     slog.Default().With("policy", "nsfw_api"),
	}
}

func (p *Policy) Name() string {
	return "nsfw_api"
}

func (p *Policy) Filter(ctx context.Context, cfg *config.Config, act activity.Object) (activity.Object, error) {
	nc := cfg.NSFWAPI

	nsfw, err := p.classifyObject(ctx, nc, act)
	if err != nil {
		return nil, err
	}
	if !nsfw {
		verdicts.WithLabelValues("sfw").Inc()
		return act, nil
	}
	verdicts.WithLabelValues("nsfw").Inc()
	p.logger().Info("NSFW media detected", "activity", act.ID(), "actor", act["actor"])

	if nc.Reject {
		return nil, mrf.Reject(RejectReason)
	}
	if nc.Unlist {
		act, err = p.unlist(ctx, act)
		if err != nil {
			return nil, err
		}
	}
	if nc.MarkSensitive {
		act = markSensitive(act)
	}
	return act, nil
}

// Classification failures are logged and treated as safe here, and nowhere else.
func (p *Policy) classifyURL(ctx context.Context, nc config.NSFWAPIConfig, mediaURL string) (bool, error) {
	res, err := p.Classifier.Classify(ctx, nc.URL, mediaURL, nc.Timeout.Std())
	if err != nil {
		var cerr *ClassificationError
		if errors.As(err, &cerr) {
			p.logger().Warn("media classification unavailable, treating as safe", "url", mediaURL, "err", err)
			return false, nil
		}
		return false, err
	}
	return res.Score >= nc.Threshold, nil
}

// An attachment is NSFW if any of its URLs is. URL entries are either strings or maps with an "href" field; anything else is skipped.
func (p *Policy) classifyAttachment(ctx context.Context, nc config.NSFWAPIConfig, att activity.Object) (bool, error) {
	var entries []any
	switch v := att["url"].(type) {
	case []any:
		entries = v
	case nil:
		return false, nil
	default:
		entries = []any{v}
	}

	for _, entry := range entries {
		var mediaURL string
		switch e := entry.(type) {
		case string:
			mediaURL = e
		default:
			link, ok := activity.AsObject(e)
			if !ok {
				continue
			}
			if mediaURL, ok = link.String("href"); !ok {
				continue
			}
		}
		if mediaURL == "" {
			continue
		}
		nsfw, err := p.classifyURL(ctx, nc, mediaURL)
		if err != nil || nsfw {
			return nsfw, err
		}
	}
	return false, nil
}

// Objects with attachments are NSFW if any attachment is. Otherwise a nested object is classified in turn. Anything else is safe.
func (p *Policy) classifyObject(ctx context.Context, nc config.NSFWAPIConfig, obj activity.Object) (bool, error) {
	if atts, ok := obj.List("attachment"); ok {
		for _, a := range atts {
			att, ok := activity.AsObject(a)
			if !ok {
				continue
			}
			nsfw, err := p.classifyAttachment(ctx, nc, att)
			if err != nil || nsfw {
				return nsfw, err
			}
		}
		return false, nil
	}
	if child, ok := obj.Map("object"); ok {
		return p.classifyObject(ctx, nc, child)
	}
	return false, nil
}

// Swaps public and followers-only addressing: the actor's followers collection goes to "to", the public address to "cc".
func (p *Policy) unlist(ctx context.Context, act activity.Object) (activity.Object, error) {
	actor, ok := act.String("actor")
	if !ok || actor == "" || !act.Has("to") || !act.Has("cc") {
		return nil, fmt.Errorf("%w (activity %s)", ErrUnlistAddressing, act.ID())
	}
	if p.Directory == nil {
		return nil, fmt.Errorf("unlisting %s: no user directory configured: %w", act.ID(), directory.ErrActorResolutionFailed)
	}
	user, err := p.Directory.LookupActor(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("unlisting %s: resolving actor %s: %w", act.ID(), actor, err)
	}
	followers := user.FollowerAddress

	to := activity.Dedupe(activity.Without(activity.Prepend(followers, act.Addresses("to")), activity.Public))
	cc := activity.Dedupe(activity.Without(activity.Prepend(activity.Public, act.Addresses("cc")), followers))
	return act.SetAll(map[string]any{
		"to": to,
		"cc": cc,
	}), nil
}

// Marks the payload sensitive: the nested object if there is one, else the activity itself.
func markSensitive(act activity.Object) activity.Object {
	if child, ok := act.Map("object"); ok {
		return act.Set("object", tagSensitive(child))
	}
	return tagSensitive(act)
}

func tagSensitive(obj activity.Object) activity.Object {
	var tags []any
	switch v := obj["tag"].(type) {
	case []any:
		tags = slices.Clone(v)
	case nil:
	default:
		tags = []any{v}
	}
	return obj.SetAll(map[string]any{
		"sensitive": true,
		"tag":       append(tags, NSFWTag),
	})
}

func (p *Policy) Describe(cfg *config.Config) (map[string]any, error) {
	return map[string]any{}, nil
}

func (p *Policy) ConfigDescription() mrf.ConfigDescription {
	return mrf.ConfigDescription{
		Group:         "mrf",
		Key:           "mrf_nsfw_api",
		Label:         "MRF NSFW API",
		Description:   "Detect NSFW media attachments with an external classifier service, and reject, unlist, or mark sensitive the activities carrying them.",
		RelatedPolicy: "nsfw_api",
		Children: []mrf.ConfigOption{
			{
				Key:         "url",
				Type:        "string",
				Description: "Base URL of the classifier. It is called with the media URL in the url query parameter.",
				Suggestions: []any{config.DefaultNSFWAPIURL},
			},
			{
				Key:         "threshold",
				Type:        "float",
				Description: "Lowest score (0 to 1) considered NSFW",
				Suggestions: []any{config.DefaultNSFWAPIThreshold},
			},
			{
				Key:         "mark_sensitive",
				Type:        "boolean",
				Description: "Mark NSFW media as sensitive, and tag the post #nsfw",
			},
			{
				Key:         "unlist",
				Type:        "boolean",
				Description: "Unlist NSFW posts: remove them from public timelines while keeping them visible to followers and recipients",
			},
			{
				Key:         "reject",
				Type:        "boolean",
				Description: "Reject NSFW posts outright. Takes precedence over unlist and mark_sensitive.",
			},
			{
				Key:         "timeout",
				Type:        "duration",
				Description: "Upper bound on the time spent classifying a single media URL",
				Suggestions: []any{config.DefaultNSFWAPITimeout.String()},
			},
		},
	}
}

func (p *Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
