// Package queue plays generated clips strictly one after another.
// It fetches each clip's audio, hands it to the player and advances when
// the player reports the natural end of the clip. The next clip is
// preloaded while the current one plays. Every run carries a token, and
// continuations holding an old token are dropped, so a stopped or replaced
// run can never advance.
package queue
