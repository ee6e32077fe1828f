// Package cache provides the clip cache and in-flight deduplication for
// synthesized audio. Cached entries expire after a fixed lifetime and the
// cache trims its oldest entries when it grows past its bound. Fetched clip
// bytes can be spooled to compressed temp files.
package cache
