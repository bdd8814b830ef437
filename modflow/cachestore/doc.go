// Cache of image classification scores, keyed by content digest, with a fixed TTL.
//
// Includes an interface and implementations using redis and in-process memory.
//
// Triage uses this so that an image re-posted within the TTL is not sent to the classifier again.
package cachestore
