// Package scheduler turns narration tasks into playable items.
// It consults the audio cache, shares identical in-flight requests and caps
// the number of concurrent synthesis calls. Failed tasks are logged and left
// out of the result; the caller decides what an empty result means.
package scheduler
