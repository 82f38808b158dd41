// Caching of small string values (classifier scores, serialized as text) with a fixed TTL and purging.
//
// Includes an interface and two implementations: in-process memory, and redis (with a local TinyLFU layer in front). The redis store lets several daemon replicas share classifier results.
package cachestore
