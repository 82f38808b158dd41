// Message Rewrite Facility: an ordered chain of content-moderation policies which every federated activity passes through before being stored, displayed, or relayed.
//
// Each `Policy` may approve, rewrite, or reject an activity. The `Pipeline` runs activities through the configured policies in order, fetching a fresh configuration snapshot for every run, and aggregates policy `Describe` output and configuration schemas for operator tooling.
//
// Policies live in sub-packages: `mrf/keyword` (pattern based reject, delist and replace) and `mrf/nsfwapi` (media classification through an external NSFW detection service). See `cmd/mrfd` for a daemon built on this package.
package mrf
