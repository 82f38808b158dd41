// MRF policy which classifies media attachments with an external NSFW detection service, and then rejects, unlists, or marks sensitive activities carrying NSFW media.
//
// The classifier is a best-effort dependency: any failure to get a score (transport error, bad status, malformed response, timeout, open circuit breaker) is logged and the media is treated as safe. A dead classifier degrades moderation, it never blocks federation.
//
// The HTTP contract is a single GET request with the media URL as a query parameter, answered with a JSON body of the form `{"score": 0.93}`.
package nsfwapi
