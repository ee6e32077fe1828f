// Package session drives one narration at a time: it validates a batch of
// tasks, generates their clips with the scheduler, plays them through the
// playback queue and keeps the last generated batch for replay.
//
// The Controller is the only place that flips the session-wide playing and
// paused flags. User-facing failures are reported once through a Notifier.
package session
