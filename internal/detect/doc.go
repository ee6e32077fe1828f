// Package detect finds the speakable parts of a chat message and turns them
// into synthesis tasks.
//
// A message is first reduced to plain text (markdown markup is dropped the
// way a rendered chat view would show it) and NFC normalized. The detection
// mode then decides what counts as a part: tagged character lines
// (【name】「line」), emotion tags (〈emotion〉), quoted dialogue with the
// narration around it, only the dialogue, or the whole message.
package detect
